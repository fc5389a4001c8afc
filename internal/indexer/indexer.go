package indexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamaly87/codebase-semantic-search/internal/cache"
	"github.com/jamaly87/codebase-semantic-search/internal/embeddings"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/vectordb"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

// indexSchemaVersion identifies the shape of documents this build writes to
// the vector store. Bump it whenever the payload fields change in a way that
// makes old and new documents incompatible within the same collection.
const indexSchemaVersion = "1"

// codebaseRuntime is the per-codebase state that varies independently of the
// global config: a scanner bound to that codebase's currently active ignore
// rules (base patterns plus whatever .satoriignore/.gitignore contribute).
type codebaseRuntime struct {
	scanner  *Scanner
	patterns []string
}

// Indexer orchestrates the code indexing process
type Indexer struct {
	config           *config.Config
	chunker          *Chunker
	hashManager      *cache.FileHashManager
	embeddingsClient *embeddings.Client
	batcher          *embeddings.Batcher
	vectorDB         *vectordb.Client
	jobs             map[string]*models.IndexJob
	jobsMux          sync.RWMutex

	codebases    map[string]*codebaseRuntime
	codebasesMux sync.RWMutex
}

// NewIndexer creates a new code indexer
func NewIndexer(cfg *config.Config) (*Indexer, error) {
	// Create cache directory
	hashManager, err := cache.NewFileHashManager(cfg.Cache.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash manager: %w", err)
	}

	// Create chunker
	chunker := NewChunker(&cfg.Chunking)

	// Create embeddings client
	embeddingsClient := embeddings.NewClient(&cfg.Embeddings)

	// Create batcher
	batcher := embeddings.NewBatcher(
		embeddingsClient,
		cfg.Embeddings.BatchSize,
		cfg.Indexing.ParallelWorkers,
	)

	// Create vector database client
	vectorDB, err := vectordb.NewClient(&cfg.VectorDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector DB client: %w", err)
	}

	// Initialize vector DB (create collection if needed)
	ctx := context.Background()
	if err := vectorDB.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize vector DB: %w", err)
	}

	return &Indexer{
		config:           cfg,
		chunker:          chunker,
		hashManager:      hashManager,
		embeddingsClient: embeddingsClient,
		batcher:          batcher,
		vectorDB:         vectorDB,
		jobs:             make(map[string]*models.IndexJob),
		codebases:        make(map[string]*codebaseRuntime),
	}, nil
}

// Close releases the chunker's parser resources. Safe to call once during
// server shutdown.
func (idx *Indexer) Close() {
	idx.chunker.Close()
}

// Fingerprint reports the embedding/vector-store configuration this indexer
// writes with. Two snapshots are only safe to reuse across runs if their
// fingerprints compare equal.
func (idx *Indexer) Fingerprint() models.IndexFingerprint {
	return models.IndexFingerprint{
		EmbeddingProvider:   "ollama",
		EmbeddingModel:      idx.config.Embeddings.Model,
		EmbeddingDimension:  idx.config.Embeddings.Dimensions,
		VectorStoreProvider: idx.config.VectorDB.Type,
		SchemaVersion:       indexSchemaVersion,
	}
}

// loadIgnorePatternsForPath merges the configured base ignore patterns with
// whatever .satoriignore or .gitignore files exist at a codebase's root.
func (idx *Indexer) loadIgnorePatternsForPath(repoPath string) []string {
	patterns := append([]string{}, idx.config.Ignore.Patterns...)
	for _, name := range []string{".satoriignore", ".gitignore"} {
		data, err := os.ReadFile(filepath.Join(repoPath, name))
		if err != nil {
			continue
		}
		patterns = append(patterns, ignore.ParsePatterns(string(data))...)
	}
	return patterns
}

// HasSynchronizerForCodebase reports whether a scanner bound to the
// codebase's current ignore rules has already been built.
func (idx *Indexer) HasSynchronizerForCodebase(path string) bool {
	idx.codebasesMux.RLock()
	defer idx.codebasesMux.RUnlock()
	_, ok := idx.codebases[path]
	return ok
}

// RecreateSynchronizerForCodebase rebuilds the scanner for a codebase from
// its current ignore rules on disk, replacing any previous one.
func (idx *Indexer) RecreateSynchronizerForCodebase(path string) error {
	return idx.RecreateSynchronizerForCodebaseWithExtra(path, nil, nil)
}

// RecreateSynchronizerForCodebaseWithExtra rebuilds the scanner for a
// codebase from its current ignore rules plus caller-supplied extra ignore
// patterns and file extensions, as accepted by manage_index's
// ignorePatterns/customExtensions arguments. The extra extensions are
// registered on the shared chunker's language detector too, since a file the
// scanner picks up still needs to chunk successfully.
func (idx *Indexer) RecreateSynchronizerForCodebaseWithExtra(path string, extraPatterns, extraExtensions []string) error {
	patterns := append(idx.loadIgnorePatternsForPath(path), extraPatterns...)
	scanner := NewScanner(&idx.config.Indexing, patterns)

	for _, ext := range extraExtensions {
		scanner.langDetector.AllowExtension(ext)
		idx.chunker.langDetector.AllowExtension(ext)
	}

	idx.codebasesMux.Lock()
	idx.codebases[path] = &codebaseRuntime{scanner: scanner, patterns: patterns}
	idx.codebasesMux.Unlock()

	return nil
}

// ReloadIgnoreRulesForCodebase re-reads .satoriignore/.gitignore for a
// codebase and rebuilds its scanner to match.
func (idx *Indexer) ReloadIgnoreRulesForCodebase(path string) error {
	return idx.RecreateSynchronizerForCodebase(path)
}

// GetActiveIgnorePatterns returns the ignore patterns currently in effect
// for a codebase, building the default set if none has been loaded yet.
func (idx *Indexer) GetActiveIgnorePatterns(path string) []string {
	idx.codebasesMux.RLock()
	cb, ok := idx.codebases[path]
	idx.codebasesMux.RUnlock()
	if ok {
		return append([]string{}, cb.patterns...)
	}
	return append([]string{}, idx.config.Ignore.Patterns...)
}

// scannerFor returns the scanner bound to a codebase's current ignore rules,
// creating it lazily on first use.
func (idx *Indexer) scannerFor(path string) *Scanner {
	idx.codebasesMux.RLock()
	cb, ok := idx.codebases[path]
	idx.codebasesMux.RUnlock()
	if ok {
		return cb.scanner
	}

	idx.RecreateSynchronizerForCodebase(path)

	idx.codebasesMux.RLock()
	defer idx.codebasesMux.RUnlock()
	return idx.codebases[path].scanner
}

// IndexOptions carries manage_index's per-call overrides on top of a
// codebase's persisted ignore rules and the chunker's default splitter.
type IndexOptions struct {
	Splitter         string
	CustomExtensions []string
	IgnorePatterns   []string
}

// Index indexes a repository using the default line-window splitter and the
// codebase's persisted ignore rules.
func (idx *Indexer) Index(repoPath string, forceReindex bool) (*models.IndexJob, error) {
	return idx.IndexWithOptions(repoPath, forceReindex, IndexOptions{})
}

// IndexWithOptions indexes a repository applying manage_index's splitter,
// customExtensions, and ignorePatterns arguments for this call.
func (idx *Indexer) IndexWithOptions(repoPath string, forceReindex bool, opts IndexOptions) (*models.IndexJob, error) {
	if len(opts.CustomExtensions) > 0 || len(opts.IgnorePatterns) > 0 {
		if err := idx.RecreateSynchronizerForCodebaseWithExtra(repoPath, opts.IgnorePatterns, opts.CustomExtensions); err != nil {
			return nil, fmt.Errorf("failed to apply index options: %w", err)
		}
	}

	// Create job
	job := &models.IndexJob{
		ID:        fmt.Sprintf("job-%d", time.Now().UnixNano()),
		RepoPath:  repoPath,
		Status:    models.IndexStatusRunning,
		StartTime: time.Now(),
		Splitter:  opts.Splitter,
	}

	// Store job
	idx.jobsMux.Lock()
	idx.jobs[job.ID] = job
	idx.jobsMux.Unlock()

	// Run indexing
	if idx.config.Indexing.Background {
		// Run in background
		go idx.doIndex(job, forceReindex)
	} else {
		// Run synchronously
		idx.doIndex(job, forceReindex)
	}

	return job, nil
}

// doIndex performs the actual indexing
func (idx *Indexer) doIndex(job *models.IndexJob, forceReindex bool) {
	defer func() {
		job.EndTime = time.Now()
	}()

	log.Printf("[%s] Starting indexing for %s", job.ID, job.RepoPath)

	// Load file hash cache
	if !forceReindex && idx.config.Indexing.Incremental {
		if err := idx.hashManager.Load(job.RepoPath); err != nil {
			log.Printf("[%s] Warning: Failed to load hash cache: %v", job.ID, err)
		}
	}

	// Scan repository
	log.Printf("[%s] Scanning repository...", job.ID)
	scanResult, err := idx.scannerFor(job.RepoPath).Scan(job.RepoPath)
	if err != nil {
		job.Status = models.IndexStatusFailed
		job.Error = fmt.Sprintf("scan failed: %v", err)
		log.Printf("[%s] Scan failed: %v", job.ID, err)
		return
	}

	job.FilesTotal = len(scanResult.Files)
	log.Printf("[%s] Found %d files to process", job.ID, job.FilesTotal)

	// Process files in parallel using worker pool
	allChunks := idx.processFilesInParallel(job, scanResult.Files, forceReindex)

	job.ChunksTotal = len(allChunks)

	log.Printf("[%s] Generated %d chunks from %d files", job.ID, len(allChunks), job.FilesIndexed)

	// Phase 3: Generate embeddings
	if len(allChunks) > 0 {
		log.Printf("[%s] Generating embeddings for %d chunks...", job.ID, len(allChunks))
		embeddingStart := time.Now()

		chunksWithEmbeddings, err := idx.batcher.ProcessChunks(allChunks)
		if err != nil {
			job.Status = models.IndexStatusFailed
			job.Error = fmt.Sprintf("Embedding generation failed: %v. Cache was NOT updated - files will be reprocessed on next attempt.", err)
			log.Printf("[%s] Embedding generation failed: %v", job.ID, err)
			// DO NOT save cache - let next indexing attempt retry these files
			return
		}

		embeddingDuration := time.Since(embeddingStart)
		log.Printf("[%s] Generated embeddings in %v", job.ID, embeddingDuration)

		// Phase 4: Store in vector database
		log.Printf("[%s] Storing chunks in vector database...", job.ID)
		storageStart := time.Now()

		ctx := context.Background()
		if err := idx.vectorDB.UpsertChunks(ctx, chunksWithEmbeddings); err != nil {
			job.Status = models.IndexStatusFailed
			job.Error = fmt.Sprintf("Vector database storage failed: %v. Cache was NOT updated - files will be reprocessed on next attempt. Check if Qdrant is running: docker-compose ps", err)
			log.Printf("[%s] Vector storage failed: %v", job.ID, err)
			// DO NOT save cache - let next indexing attempt retry these files
			return
		}

		storageDuration := time.Since(storageStart)
		log.Printf("[%s] Stored chunks in %v", job.ID, storageDuration)
	}

	// CRITICAL: Save hash cache ONLY after successful Qdrant storage
	// This prevents false positives where cache says files are indexed but they're not in Qdrant
	if idx.config.Indexing.Incremental {
		if err := idx.hashManager.Save(); err != nil {
			log.Printf("[%s] Warning: Failed to save hash cache: %v", job.ID, err)
			job.Status = models.IndexStatusFailed
			job.Error = fmt.Sprintf("Cache save failed: %v. Chunks are in Qdrant but cache is inconsistent. Run with force_reindex=true to fix.", err)
			return
		}
	}

	// Update job status
	job.Status = models.IndexStatusCompleted
	job.EndTime = time.Now()
	log.Printf("[%s] Indexing completed successfully in %v", job.ID, time.Since(job.StartTime))

	marker := models.IndexCompletionMarker{
		Kind:         models.IndexCompletionMarkerKind,
		CodebasePath: job.RepoPath,
		Fingerprint:  idx.Fingerprint(),
		IndexedFiles: job.FilesIndexed,
		TotalChunks:  job.ChunksTotal,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
		RunID:        job.ID,
	}
	if err := idx.vectorDB.WriteIndexCompletionMarker(context.Background(), marker); err != nil {
		log.Printf("[%s] Warning: failed to write completion marker: %v", job.ID, err)
	}
}

// processFilesInParallel processes files in parallel using a worker pool pattern
func (idx *Indexer) processFilesInParallel(job *models.IndexJob, files []string, forceReindex bool) []models.CodeChunk {
	// Determine number of workers
	numWorkers := idx.config.Indexing.ParallelWorkers
	if numWorkers <= 0 {
		numWorkers = 4 // Default to 4 workers
	}

	// Channel for file paths
	fileChan := make(chan string, len(files))
	for _, filePath := range files {
		fileChan <- filePath
	}
	close(fileChan)

	// Channel for chunks from workers
	chunkChan := make(chan []models.CodeChunk, numWorkers*2)

	// Track progress atomically
	var processedFiles int64
	var allChunks []models.CodeChunk
	var chunksMux sync.Mutex

	// Worker pool
	var wg sync.WaitGroup

	// Start workers
	log.Printf("[%s] Starting %d workers for parallel processing", job.ID, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Printf("[%s] Worker %d started", job.ID, workerID)

			fileCount := 0
			for filePath := range fileChan {
				fileCount++
				log.Printf("[%s] Worker %d: Processing file %d: %s", job.ID, workerID, fileCount, filePath)

				// Check if file needs reindexing
				if !forceReindex && idx.config.Indexing.Incremental {
					needsReindex, err := idx.hashManager.NeedsReindex(filePath)
					if err != nil {
						log.Printf("[%s] Warning: Failed to check hash for %s: %v", job.ID, filePath, err)
					} else if !needsReindex {
						// Skip file, it hasn't changed
						log.Printf("[%s] Worker %d: Skipping unchanged file %s", job.ID, workerID, filePath)
						atomic.AddInt64(&processedFiles, 1)
						current := atomic.LoadInt64(&processedFiles)
						job.FilesIndexed = int(current)
						job.Progress = float64(current) / float64(job.FilesTotal)
						continue
					}
				}

				// Chunk file
				log.Printf("[%s] Worker %d: Chunking file %s", job.ID, workerID, filePath)
				chunks, err := idx.chunker.ChunkFileWithSplitter(job.RepoPath, filePath, Splitter(job.Splitter))
				if err != nil {
					log.Printf("[%s] Warning: Failed to chunk %s: %v", job.ID, filePath, err)
					atomic.AddInt64(&processedFiles, 1)
					current := atomic.LoadInt64(&processedFiles)
					job.FilesIndexed = int(current)
					job.Progress = float64(current) / float64(job.FilesTotal)
					continue
				}
				log.Printf("[%s] Worker %d: Generated %d chunks from %s", job.ID, workerID, len(chunks), filePath)

				// Add timestamp to chunks
				now := time.Now()
				for i := range chunks {
					chunks[i].IndexedAt = now
				}

				// Send chunks to channel
				log.Printf("[%s] Worker %d: Sending %d chunks to channel", job.ID, workerID, len(chunks))
				chunkChan <- chunks
				log.Printf("[%s] Worker %d: Sent chunks to channel", job.ID, workerID)

				// Update hash cache
				if idx.config.Indexing.Incremental {
					if err := idx.hashManager.Update(filePath, len(chunks)); err != nil {
						log.Printf("[%s] Warning: Failed to update hash for %s: %v", job.ID, filePath, err)
					}
				}

				// Update progress
				atomic.AddInt64(&processedFiles, 1)
				current := atomic.LoadInt64(&processedFiles)
				job.FilesIndexed = int(current)
				job.Progress = float64(current) / float64(job.FilesTotal)

				if current%10 == 0 || current == 1 {
					log.Printf("[%s] Progress: %d/%d files (%.1f%%)",
						job.ID, current, job.FilesTotal, job.Progress*100)
				}
				
				log.Printf("[%s] Worker %d: Completed processing %s", job.ID, workerID, filePath)
			}
			log.Printf("[%s] Worker %d: Finished processing all files (processed %d files)", job.ID, workerID, fileCount)
		}(i)
	}

	// Collect chunks in a separate goroutine
	done := make(chan bool)
	chunkCount := int64(0)
	go func() {
		log.Printf("[%s] Chunk collector goroutine started", job.ID)
		for chunks := range chunkChan {
			receivedCount := atomic.AddInt64(&chunkCount, int64(len(chunks)))
			log.Printf("[%s] Chunk collector: Received %d chunks (total: %d)", job.ID, len(chunks), receivedCount)
			chunksMux.Lock()
			allChunks = append(allChunks, chunks...)
			chunksMux.Unlock()
			log.Printf("[%s] Chunk collector: Added chunks to list (total chunks: %d)", job.ID, len(allChunks))
		}
		log.Printf("[%s] Chunk collector: Channel closed, finished collecting", job.ID)
		done <- true
	}()

	// Wait for all workers to finish
	log.Printf("[%s] Waiting for all %d workers to finish...", job.ID, numWorkers)
	wg.Wait()
	log.Printf("[%s] All workers finished, closing chunk channel", job.ID)
	close(chunkChan)

	// Wait for chunk collection to finish
	log.Printf("[%s] Waiting for chunk collector to finish...", job.ID)
	<-done
	log.Printf("[%s] Chunk collector finished", job.ID)

	finalProcessed := atomic.LoadInt64(&processedFiles)
	log.Printf("[%s] Generated %d chunks from %d files", job.ID, len(allChunks), finalProcessed)
	return allChunks
}

// GetJob returns a job by ID
func (idx *Indexer) GetJob(jobID string) (*models.IndexJob, error) {
	idx.jobsMux.RLock()
	defer idx.jobsMux.RUnlock()

	job, ok := idx.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	return job, nil
}

// GetRepoIndex returns index statistics for a repository
// This checks Qdrant for the actual chunk count (source of truth)
// and uses cache for metadata like last indexed time
func (idx *Indexer) GetRepoIndex(repoPath string) (*models.RepoIndex, error) {
	// Check if there's an active indexing job for this repo
	idx.jobsMux.RLock()
	for _, job := range idx.jobs {
		if job.RepoPath == repoPath && job.Status == models.IndexStatusRunning {
			idx.jobsMux.RUnlock()
			return &models.RepoIndex{
				RepoPath:    repoPath,
				TotalFiles:  job.FilesIndexed,
				TotalChunks: job.ChunksTotal,
				Languages:   make(map[string]int),
				LastIndexed: job.StartTime,
				Status:      models.IndexStatusRunning,
			}, nil
		}
	}
	idx.jobsMux.RUnlock()

	// Query Qdrant for actual chunk count (source of truth)
	ctx := context.Background()
	chunkCount, err := idx.vectorDB.CountChunks(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query Qdrant: %w", err)
	}

	// Try to load cache for metadata (last indexed time, file count)
	var lastIndexed time.Time
	var totalFiles int

	if err := idx.hashManager.Load(repoPath); err == nil {
		stats := idx.hashManager.GetStats()
		if files, ok := stats["total_files"].(int); ok {
			totalFiles = files
		}
		if updated, ok := stats["updated_at"].(time.Time); ok {
			lastIndexed = updated
		}
	}

	// If no chunks in Qdrant and no cache, repo is not indexed
	if chunkCount == 0 && totalFiles == 0 {
		return &models.RepoIndex{
			RepoPath:    repoPath,
			TotalFiles:  0,
			TotalChunks: 0,
			Languages:   make(map[string]int),
			LastIndexed: time.Time{},
			Status:      "not_indexed",
		}, nil
	}

	return &models.RepoIndex{
		RepoPath:    repoPath,
		TotalFiles:  totalFiles,
		TotalChunks: chunkCount, // Use Qdrant as source of truth
		Languages:   make(map[string]int),
		LastIndexed: lastIndexed,
		Status:      models.IndexStatusCompleted,
	}, nil
}

// ClearCache clears the cache for a repository
func (idx *Indexer) ClearCache(repoPath string) error {
	return idx.hashManager.Clear(repoPath)
}

// HasIndexedCollection reports whether a codebase currently has any chunks
// stored in the vector database.
func (idx *Indexer) HasIndexedCollection(repoPath string) bool {
	count, err := idx.vectorDB.CountChunks(context.Background(), repoPath)
	if err != nil {
		return false
	}
	return count > 0
}

// GetTrackedRelativePaths returns the distinct file paths currently indexed
// for a codebase. Errors are logged and swallowed: an unreachable vector
// store just means the caller falls back to an empty manifest.
func (idx *Indexer) GetTrackedRelativePaths(repoPath string) []string {
	tracked, err := idx.vectorDB.GetTrackedRelativePaths(context.Background(), repoPath)
	if err != nil {
		log.Printf("GetTrackedRelativePaths(%s): %v", repoPath, err)
		return nil
	}
	return tracked
}

// DeleteIndexedPathsByRelativePaths removes the chunks for a set of files
// that are no longer part of a codebase (deleted, or newly ignored).
func (idx *Indexer) DeleteIndexedPathsByRelativePaths(repoPath string, relativePaths []string) error {
	if len(relativePaths) == 0 {
		return nil
	}
	return idx.vectorDB.DeleteByRelativePaths(context.Background(), repoPath, relativePaths)
}

// WriteIndexCompletionMarker delegates to the vector store.
func (idx *Indexer) WriteIndexCompletionMarker(ctx context.Context, marker models.IndexCompletionMarker) error {
	return idx.vectorDB.WriteIndexCompletionMarker(ctx, marker)
}

// GetIndexCompletionMarker delegates to the vector store.
func (idx *Indexer) GetIndexCompletionMarker(ctx context.Context, repoPath string) (*models.IndexCompletionMarker, error) {
	return idx.vectorDB.GetIndexCompletionMarker(ctx, repoPath)
}

// ClearIndexCompletionMarker delegates to the vector store.
func (idx *Indexer) ClearIndexCompletionMarker(ctx context.Context, repoPath string) error {
	return idx.vectorDB.ClearIndexCompletionMarker(ctx, repoPath)
}

// ReindexByChange performs an incremental resync of a codebase: it rescans
// the tree with the codebase's current ignore rules, re-embeds and upserts
// any file whose content hash changed (or that's new), and deletes chunks
// for files that vanished or became ignored since the last sync.
func (idx *Indexer) ReindexByChange(ctx context.Context, repoPath string) (models.ReindexResult, error) {
	scanner := idx.scannerFor(repoPath)

	if idx.config.Indexing.Incremental {
		if err := idx.hashManager.Load(repoPath); err != nil {
			log.Printf("reindexByChange(%s): failed to load hash cache: %v", repoPath, err)
		}
	}

	scanResult, err := scanner.Scan(repoPath)
	if err != nil {
		return models.ReindexResult{}, fmt.Errorf("scan failed: %w", err)
	}

	previousTracked, err := idx.vectorDB.GetTrackedRelativePaths(ctx, repoPath)
	if err != nil {
		log.Printf("reindexByChange(%s): failed to load tracked paths: %v", repoPath, err)
	}
	previousSet := make(map[string]bool, len(previousTracked))
	for _, p := range previousTracked {
		previousSet[p] = true
	}

	currentSet := make(map[string]bool, len(scanResult.Files))
	var changedFiles []string
	var chunksToUpsert []models.CodeChunk
	added, modified := 0, 0

	for _, filePath := range scanResult.Files {
		relPath, relErr := filepath.Rel(repoPath, filePath)
		if relErr != nil {
			relPath = filePath
		}
		currentSet[relPath] = true

		needsReindex := true
		if idx.config.Indexing.Incremental {
			var hashErr error
			needsReindex, hashErr = idx.hashManager.NeedsReindex(filePath)
			if hashErr != nil {
				log.Printf("reindexByChange(%s): hash check failed for %s: %v", repoPath, filePath, hashErr)
				needsReindex = true
			}
		}
		if !needsReindex {
			continue
		}

		chunks, chunkErr := idx.chunker.ChunkFile(repoPath, filePath)
		if chunkErr != nil {
			log.Printf("reindexByChange(%s): chunk failed for %s: %v", repoPath, filePath, chunkErr)
			continue
		}

		now := time.Now()
		for i := range chunks {
			chunks[i].IndexedAt = now
		}
		chunksToUpsert = append(chunksToUpsert, chunks...)
		changedFiles = append(changedFiles, relPath)
		if previousSet[relPath] {
			modified++
		} else {
			added++
		}

		if idx.config.Indexing.Incremental {
			if err := idx.hashManager.Update(filePath, len(chunks)); err != nil {
				log.Printf("reindexByChange(%s): hash update failed for %s: %v", repoPath, filePath, err)
			}
		}
	}

	var removedPaths []string
	for p := range previousSet {
		if !currentSet[p] {
			removedPaths = append(removedPaths, p)
		}
	}

	if len(chunksToUpsert) > 0 {
		chunksWithEmbeddings, embedErr := idx.batcher.ProcessChunks(chunksToUpsert)
		if embedErr != nil {
			return models.ReindexResult{}, fmt.Errorf("embedding generation failed: %w", embedErr)
		}
		if upsertErr := idx.vectorDB.UpsertChunks(ctx, chunksWithEmbeddings); upsertErr != nil {
			return models.ReindexResult{}, fmt.Errorf("vector storage failed: %w", upsertErr)
		}
	}

	if len(removedPaths) > 0 {
		if delErr := idx.vectorDB.DeleteByRelativePaths(ctx, repoPath, removedPaths); delErr != nil {
			return models.ReindexResult{}, fmt.Errorf("delete removed files failed: %w", delErr)
		}
		changedFiles = append(changedFiles, removedPaths...)
	}

	if idx.config.Indexing.Incremental {
		if err := idx.hashManager.Save(); err != nil {
			log.Printf("reindexByChange(%s): failed to save hash cache: %v", repoPath, err)
		}
	}

	return models.ReindexResult{
		Added:        added,
		Removed:      len(removedPaths),
		Modified:     modified,
		ChangedFiles: changedFiles,
	}, nil
}
