package vectordb

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/qdrant/go-client/qdrant"
)

// markerScanLimit bounds the single-pass scroll used by GetTrackedRelativePaths;
// a repository with more live chunks than this would need real pagination,
// which no caller in this codebase has needed yet.
const markerScanLimit = 100_000

// Client represents a Qdrant vector database client
type Client struct {
	config     *config.VectorDBConfig
	client     *qdrant.Client
	collection string
}

// NewClient creates a new Qdrant client
func NewClient(cfg *config.VectorDBConfig) (*Client, error) {
	// Connect to Qdrant via gRPC (localhost:6334)
	qdrantConfig := &qdrant.Config{
		Host:   "localhost",
		Port:   6334,
		UseTLS: false,
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	c := &Client{
		config:     cfg,
		client:     client,
		collection: cfg.CollectionName,
	}

	return c, nil
}

// Initialize initializes the Qdrant database and creates collections
func (c *Client) Initialize(ctx context.Context) error {
	log.Printf("Initializing Qdrant collection: %s", c.collection)

	// Check if collection exists
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists {
		log.Printf("Collection %s already exists", c.collection)
		return nil
	}

	// Create collection
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(c.config.VectorSize),
					Distance: c.getDistanceMetric(),
				},
			},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("Created collection %s with %d dimensions", c.collection, c.config.VectorSize)
	return nil
}

// UpsertChunks inserts or updates code chunks in the vector database
func (c *Client) UpsertChunks(ctx context.Context, chunks []models.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	log.Printf("Upserting %d chunks to Qdrant...", len(chunks))

	// Convert chunks to Qdrant points
	points := make([]*qdrant.PointStruct, len(chunks))

	for i, chunk := range chunks {
		// Create payload
		payload := map[string]*qdrant.Value{
			"repo_path":      qdrant.NewValueString(chunk.RepoPath),
			"file_path":      qdrant.NewValueString(chunk.FilePath),
			"file_extension": qdrant.NewValueString(fileExtension(chunk.FilePath)),
			"chunk_type":     qdrant.NewValueString(string(chunk.ChunkType)),
			"content":        qdrant.NewValueString(chunk.Content),
			"language":       qdrant.NewValueString(chunk.Language),
			"start_line":     qdrant.NewValueInt(int64(chunk.StartLine)),
			"end_line":       qdrant.NewValueInt(int64(chunk.EndLine)),
			"function_name":  qdrant.NewValueString(chunk.FunctionName),
			"class_name":     qdrant.NewValueString(chunk.ClassName),
			"symbol_id":      qdrant.NewValueString(chunk.SymbolID),
		}

		// Convert embedding to []float32 if needed
		vector := make([]float32, len(chunk.Embedding))
		copy(vector, chunk.Embedding)

		points[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{
					Uuid: chunk.ID,
				},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{
						Data: vector,
					},
				},
			},
			Payload: payload,
		}
	}

	// Upsert points
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         points,
	})

	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	log.Printf("Successfully upserted %d chunks", len(chunks))
	return nil
}

// Search performs a vector similarity search, optionally scoped to repoPath.
// Completion marker documents are excluded unconditionally: search results
// must never surface the sentinel used to prove indexing finished.
func (c *Client) Search(ctx context.Context, embedding []float32, repoPath string, limit int) ([]models.CodeChunk, []float64, error) {
	if limit <= 0 {
		limit = 5
	}

	limitUint := uint64(limit)

	query := qdrant.NewQuery(embedding...)

	queryPoints := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          query,
		Limit:          &limitUint,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		Filter:         c.buildFilter(repoPath),
	}

	// Execute search
	results, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		log.Printf("No results found for query")
		return []models.CodeChunk{}, []float64{}, nil
	}

	// Convert results to CodeChunks
	chunks := make([]models.CodeChunk, len(results))
	scores := make([]float64, len(results))

	for i, result := range results {
		scores[i] = float64(result.Score)

		payload := result.Payload

		chunks[i] = models.CodeChunk{
			ID:           result.Id.GetUuid(),
			RepoPath:     payload["repo_path"].GetStringValue(),
			FilePath:     payload["file_path"].GetStringValue(),
			ChunkType:    models.ChunkType(payload["chunk_type"].GetStringValue()),
			Content:      payload["content"].GetStringValue(),
			Language:     payload["language"].GetStringValue(),
			StartLine:    int(payload["start_line"].GetIntegerValue()),
			EndLine:      int(payload["end_line"].GetIntegerValue()),
			FunctionName: payload["function_name"].GetStringValue(),
			ClassName:    payload["class_name"].GetStringValue(),
			SymbolID:     payload["symbol_id"].GetStringValue(),
		}
	}

	log.Printf("Found %d results for query (top score: %.3f)", len(chunks), scores[0])
	return chunks, scores, nil
}

// buildFilter constructs the standard search filter: optionally scoped to a
// repo, and always excluding completion marker documents.
func (c *Client) buildFilter(repoPath string) *qdrant.Filter {
	filter := &qdrant.Filter{
		MustNot: []*qdrant.Condition{
			keywordCondition("file_extension", models.MarkerReservedExtension),
		},
	}
	if repoPath != "" {
		filter.Must = []*qdrant.Condition{
			keywordCondition("repo_path", repoPath),
		}
	}
	return filter
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

func keywordsCondition(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

// DeleteByRepo deletes all chunks (and the completion marker) for a given repository
func (c *Client) DeleteByRepo(ctx context.Context, repoPath string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{keywordCondition("repo_path", repoPath)},
				},
			},
		},
	})

	return err
}

// DeleteByRelativePaths removes the chunks for a specific set of relative
// paths within repoPath, used by ignore-rule reconciliation's self-healing delete.
func (c *Client) DeleteByRelativePaths(ctx context.Context, repoPath string, relativePaths []string) error {
	if len(relativePaths) == 0 {
		return nil
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						keywordCondition("repo_path", repoPath),
						keywordsCondition("file_path", relativePaths),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points by relative path: %w", err)
	}
	return nil
}

// GetTrackedRelativePaths returns the distinct file_path values currently
// indexed for repoPath, excluding the completion marker document.
func (c *Client) GetTrackedRelativePaths(ctx context.Context, repoPath string) ([]string, error) {
	limit := uint32(markerScanLimit)
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.collection,
		Filter: &qdrant.Filter{
			Must:    []*qdrant.Condition{keywordCondition("repo_path", repoPath)},
			MustNot: []*qdrant.Condition{keywordCondition("file_extension", models.MarkerReservedExtension)},
		},
		Limit: &limit,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Include{
				Include: &qdrant.PayloadIncludeSelector{Fields: []string{"file_path"}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll tracked paths: %w", err)
	}
	if len(points) == int(limit) {
		log.Printf("warning: tracked-path scan for %s hit the %d-point scan limit, result may be truncated", repoPath, limit)
	}

	seen := make(map[string]struct{}, len(points))
	out := make([]string, 0, len(points))
	for _, p := range points {
		path := p.Payload["file_path"].GetStringValue()
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out, nil
}

// markerPointID derives a deterministic point ID for repoPath's completion
// marker, so writing the marker twice for the same codebase is an update,
// not a duplicate document.
func markerPointID(repoPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("completion-marker:"+repoPath)).String()
}

// WriteIndexCompletionMarker upserts the distinguished marker document that
// proves a full index run completed for marker.CodebasePath.
func (c *Client) WriteIndexCompletionMarker(ctx context.Context, marker models.IndexCompletionMarker) error {
	payload := map[string]*qdrant.Value{
		"kind":                 qdrant.NewValueString(marker.Kind),
		"codebase_path":        qdrant.NewValueString(marker.CodebasePath),
		"embedding_provider":   qdrant.NewValueString(marker.Fingerprint.EmbeddingProvider),
		"embedding_model":      qdrant.NewValueString(marker.Fingerprint.EmbeddingModel),
		"embedding_dimension":  qdrant.NewValueInt(int64(marker.Fingerprint.EmbeddingDimension)),
		"vector_store_provider": qdrant.NewValueString(marker.Fingerprint.VectorStoreProvider),
		"schema_version":       qdrant.NewValueString(marker.Fingerprint.SchemaVersion),
		"indexed_files":        qdrant.NewValueInt(int64(marker.IndexedFiles)),
		"total_chunks":         qdrant.NewValueInt(int64(marker.TotalChunks)),
		"completed_at":         qdrant.NewValueString(marker.CompletedAt),
		"run_id":               qdrant.NewValueString(marker.RunID),
		"repo_path":            qdrant.NewValueString(marker.CodebasePath),
		"file_extension":       qdrant.NewValueString(models.MarkerReservedExtension),
	}

	vector := make([]float32, c.config.VectorSize)

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{
			{
				Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: markerPointID(marker.CodebasePath)}},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// GetIndexCompletionMarker retrieves the completion marker for repoPath, if
// any. A nil, nil return means no marker document exists.
func (c *Client) GetIndexCompletionMarker(ctx context.Context, repoPath string) (*models.IndexCompletionMarker, error) {
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.collection,
		Ids: []*qdrant.PointId{
			{PointIdOptions: &qdrant.PointId_Uuid{Uuid: markerPointID(repoPath)}},
		},
		WithPayload: &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completion marker: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	payload := points[0].Payload
	marker := &models.IndexCompletionMarker{
		Kind:         payload["kind"].GetStringValue(),
		CodebasePath: payload["codebase_path"].GetStringValue(),
		Fingerprint: models.IndexFingerprint{
			EmbeddingProvider:   payload["embedding_provider"].GetStringValue(),
			EmbeddingModel:      payload["embedding_model"].GetStringValue(),
			EmbeddingDimension:  int(payload["embedding_dimension"].GetIntegerValue()),
			VectorStoreProvider: payload["vector_store_provider"].GetStringValue(),
			SchemaVersion:       payload["schema_version"].GetStringValue(),
		},
		IndexedFiles: int(payload["indexed_files"].GetIntegerValue()),
		TotalChunks:  int(payload["total_chunks"].GetIntegerValue()),
		CompletedAt:  payload["completed_at"].GetStringValue(),
		RunID:        payload["run_id"].GetStringValue(),
	}
	return marker, nil
}

// ClearIndexCompletionMarker removes the completion marker for repoPath, used
// when a reindex starts so a crash mid-run cannot leave a stale marker behind.
func (c *Client) ClearIndexCompletionMarker(ctx context.Context, repoPath string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{PointIdOptions: &qdrant.PointId_Uuid{Uuid: markerPointID(repoPath)}},
					},
				},
			},
		},
	})
	return err
}

// CountChunks returns the number of chunks for a given repository, excluding
// the completion marker document.
func (c *Client) CountChunks(ctx context.Context, repoPath string) (int, error) {
	count, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.collection,
		Filter: &qdrant.Filter{
			Must:    []*qdrant.Condition{keywordCondition("repo_path", repoPath)},
			MustNot: []*qdrant.Condition{keywordCondition("file_extension", models.MarkerReservedExtension)},
		},
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}

	return int(count), nil
}

// GetStats returns statistics about the vector database
func (c *Client) GetStats(ctx context.Context, repoPath string) (*models.RepoIndex, error) {
	count, err := c.CountChunks(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	return &models.RepoIndex{
		RepoPath:    repoPath,
		TotalChunks: count,
		Languages:   make(map[string]int),
		Status:      models.IndexStatusCompleted,
	}, nil
}

// Close closes the Qdrant client connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// getDistanceMetric returns the Qdrant distance metric
func (c *Client) getDistanceMetric() qdrant.Distance {
	switch c.config.DistanceMetric {
	case "cosine":
		return qdrant.Distance_Cosine
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

// GenerateUUID generates a UUID string for Qdrant
func GenerateUUID() string {
	return uuid.New().String()
}

func fileExtension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
