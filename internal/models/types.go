package models

import "time"

// CodeChunk represents a chunk of code stored in the vector database
type CodeChunk struct {
	ID           string                 `json:"id"`
	RepoPath     string                 `json:"repo_path"`
	FilePath     string                 `json:"file_path"`
	ChunkType    ChunkType              `json:"chunk_type"`
	Content      string                 `json:"content"`
	Language     string                 `json:"language"`
	StartLine    int                    `json:"start_line"`
	EndLine      int                    `json:"end_line"`
	FunctionName string                 `json:"function_name,omitempty"`
	ClassName    string                 `json:"class_name,omitempty"`
	SymbolID     string                 `json:"symbol_id,omitempty"`
	ParentChunkID string                `json:"parent_chunk_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Embedding    []float32              `json:"embedding,omitempty"`
	IndexedAt    time.Time              `json:"indexed_at"`
}

// ChunkType defines the type of code chunk
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeFile     ChunkType = "file"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeMethod   ChunkType = "method"
)

// SearchResult represents a search result with score
type SearchResult struct {
	Chunk         CodeChunk `json:"chunk"`
	Score         float64   `json:"score"`
	SemanticScore float64   `json:"semantic_score"`
	ExactScore    float64   `json:"exact_score"`
	Preview       string    `json:"preview"`
	LineRange     string    `json:"line_range"`
}

// RepoIndex represents the index status of a repository
type RepoIndex struct {
	RepoPath      string         `json:"repo_path"`
	TotalFiles    int            `json:"total_files"`
	TotalChunks   int            `json:"total_chunks"`
	Languages     map[string]int `json:"languages"`
	LastIndexed   time.Time      `json:"last_indexed"`
	IndexDuration time.Duration  `json:"index_duration"`
	Status        IndexStatus    `json:"status"`
}

// IndexStatus represents the current status of an indexing job
type IndexStatus string

const (
	IndexStatusPending   IndexStatus = "pending"
	IndexStatusRunning   IndexStatus = "running"
	IndexStatusCompleted IndexStatus = "completed"
	IndexStatusFailed    IndexStatus = "failed"
)

// IndexJob represents a background indexing job
type IndexJob struct {
	ID           string      `json:"id"`
	RepoPath     string      `json:"repo_path"`
	Status       IndexStatus `json:"status"`
	Progress     float64     `json:"progress"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time,omitempty"`
	FilesTotal   int         `json:"files_total"`
	FilesIndexed int         `json:"files_indexed"`
	ChunksTotal  int         `json:"chunks_total"`
	Error        string      `json:"error,omitempty"`
	Splitter     string      `json:"splitter,omitempty"`
}

// FileHash tracks file hashes for incremental indexing
type FileHash struct {
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	LastIndexed time.Time `json:"last_indexed"`
	ChunkCount  int       `json:"chunk_count"`
}

// FileHashCache stores all file hashes for a repository
type FileHashCache struct {
	RepoPath  string              `json:"repo_path"`
	Hashes    map[string]FileHash `json:"hashes"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SearchQuery represents a semantic search query
type SearchQuery struct {
	Query     string    `json:"query"`
	RepoPath  string    `json:"repo_path"`
	ChunkType ChunkType `json:"chunk_type,omitempty"`
	Limit     int       `json:"limit"`
}

// SearchResponse contains search results
type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Query     string         `json:"query"`
	TotalTime int64          `json:"total_time_ms"`
}

// Language represents a supported programming language
type Language struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Parser     string   `json:"parser"`
}

// CodebaseStatus is the tagged state of a tracked codebase.
type CodebaseStatus string

const (
	StatusNotFound        CodebaseStatus = "not_found"
	StatusIndexing        CodebaseStatus = "indexing"
	StatusIndexed         CodebaseStatus = "indexed"
	StatusSyncCompleted   CodebaseStatus = "sync_completed"
	StatusRequiresReindex CodebaseStatus = "requires_reindex"
	StatusIndexFailed     CodebaseStatus = "indexfailed"
)

// FingerprintSource records whether a fingerprint was read back from the
// vector store or merely assumed from the indexer's runtime configuration.
type FingerprintSource string

const (
	FingerprintVerified FingerprintSource = "verified"
	FingerprintAssumed  FingerprintSource = "assumed"
)

// ReindexReason enumerates why a codebase was pushed into requires_reindex.
type ReindexReason string

const (
	ReindexFingerprintMismatch ReindexReason = "fingerprint_mismatch"
	ReindexMissingMarkerDoc    ReindexReason = "missing_marker_doc"
	ReindexProbeFailed         ReindexReason = "probe_failed"
	ReindexManual              ReindexReason = "manual"
)

// IndexFingerprint identifies the embedding/vector-store configuration an
// index was built with. Two indexes are mutually usable only if their
// fingerprints are field-wise equal.
type IndexFingerprint struct {
	EmbeddingProvider  string `json:"embeddingProvider"`
	EmbeddingModel     string `json:"embeddingModel"`
	EmbeddingDimension int    `json:"embeddingDimension"`
	VectorStoreProvider string `json:"vectorStoreProvider"`
	SchemaVersion      string `json:"schemaVersion"`
}

// Equal compares two fingerprints field-wise.
func (f IndexFingerprint) Equal(other IndexFingerprint) bool {
	return f.EmbeddingProvider == other.EmbeddingProvider &&
		f.EmbeddingModel == other.EmbeddingModel &&
		f.EmbeddingDimension == other.EmbeddingDimension &&
		f.VectorStoreProvider == other.VectorStoreProvider &&
		f.SchemaVersion == other.SchemaVersion
}

// SyncCounters tracks file-level deltas from the most recent sync or reconcile.
type SyncCounters struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// CodebaseInfo is the full persisted state for one tracked codebase path.
type CodebaseInfo struct {
	Path   string         `json:"path"`
	Status CodebaseStatus `json:"status"`

	// indexing
	IndexingPercentage int `json:"indexingPercentage,omitempty"`

	// indexed
	IndexedFiles      int               `json:"indexedFiles,omitempty"`
	TotalChunks       int               `json:"totalChunks,omitempty"`
	IndexStatusDetail string            `json:"indexStatus,omitempty"` // completed | limit_reached
	IndexFingerprint  *IndexFingerprint `json:"indexFingerprint,omitempty"`
	FingerprintSource FingerprintSource `json:"fingerprintSource,omitempty"`

	// sync_completed
	LastDelta SyncCounters `json:"lastDelta,omitempty"`

	// requires_reindex
	Message       string        `json:"message,omitempty"`
	ReindexReason ReindexReason `json:"reindexReason,omitempty"`

	// indexfailed
	ErrorMessage            string `json:"errorMessage,omitempty"`
	LastAttemptedPercentage *int   `json:"lastAttemptedPercentage,omitempty"`

	// cross-variant
	LastUpdated            time.Time `json:"lastUpdated"`
	IndexManifest          []string  `json:"indexManifest,omitempty"`
	IgnoreRulesVersion     int       `json:"ignoreRulesVersion"`
	IgnoreControlSignature string    `json:"ignoreControlSignature,omitempty"`

	// internal bookkeeping, not part of the state machine proper
	LastSyncAt time.Time `json:"lastSyncAt,omitempty"`
}

// IndexCompletionMarkerKind is the fixed kind tag for completion markers.
const IndexCompletionMarkerKind = "index_completion_v1"

// MarkerReservedExtension is the sentinel fileExtension value reserved for
// completion marker documents; real source chunks never carry it, and every
// hybrid search filter excludes it explicitly.
const MarkerReservedExtension = "__marker__"

// IndexCompletionMarker is the distinguished document written to a
// codebase's vector collection as proof that a full index completed.
type IndexCompletionMarker struct {
	Kind         string           `json:"kind"`
	CodebasePath string           `json:"codebasePath"`
	Fingerprint  IndexFingerprint `json:"fingerprint"`
	IndexedFiles int              `json:"indexedFiles"`
	TotalChunks  int              `json:"totalChunks"`
	CompletedAt  string           `json:"completedAt"` // ISO-8601 UTC
	RunID        string           `json:"runId"`
}

// Valid checks the marker's validity predicate: known kind, non-empty
// codebasePath, non-negative counters, parseable completedAt, non-empty runId.
func (m *IndexCompletionMarker) Valid() bool {
	if m == nil {
		return false
	}
	if m.Kind != IndexCompletionMarkerKind {
		return false
	}
	if m.CodebasePath == "" {
		return false
	}
	if m.IndexedFiles < 0 || m.TotalChunks < 0 {
		return false
	}
	if m.RunID == "" {
		return false
	}
	if _, err := time.Parse(time.RFC3339, m.CompletedAt); err != nil {
		return false
	}
	return true
}

// FreshnessMode enumerates the outcome of an ensureFreshness call.
type FreshnessMode string

const (
	FreshnessSynced                 FreshnessMode = "synced"
	FreshnessSkippedRecent          FreshnessMode = "skipped_recent"
	FreshnessCoalesced              FreshnessMode = "coalesced"
	FreshnessSkippedIndexing        FreshnessMode = "skipped_indexing"
	FreshnessSkippedRequiresReindex FreshnessMode = "skipped_requires_reindex"
	FreshnessSkippedMissingPath     FreshnessMode = "skipped_missing_path"
	FreshnessReconciledIgnoreChange FreshnessMode = "reconciled_ignore_change"
	FreshnessIgnoreReloadFailed     FreshnessMode = "ignore_reload_failed"
)

// FreshnessDecision is the outcome of a single ensureFreshness call.
type FreshnessDecision struct {
	Mode       FreshnessMode `json:"mode"`
	LastSyncAt time.Time     `json:"lastSyncAt,omitempty"`
	Stats      *SyncCounters `json:"stats,omitempty"`

	// ignore-reconcile specific
	IgnoreRulesVersion    int      `json:"ignoreRulesVersion,omitempty"`
	DeletedFiles          int      `json:"deletedFiles,omitempty"`
	NewlyIgnoredFiles     int      `json:"newlyIgnoredFiles,omitempty"`
	AddedFiles            int      `json:"addedFiles,omitempty"`
	CoalescedEdits        int      `json:"coalescedEdits,omitempty"`
	DurationMs            int64    `json:"durationMs,omitempty"`
	FallbackSyncExecuted  bool     `json:"fallbackSyncExecuted,omitempty"`
	ErrorMessage          string   `json:"errorMessage,omitempty"`
	ChangedFiles          []string `json:"changedFiles,omitempty"`
}

// ReindexResult is the outcome of an indexer's incremental reindexByChange call.
type ReindexResult struct {
	Added        int
	Removed      int
	Modified     int
	ChangedFiles []string
}

// EnsureFreshnessOptions carries the caller's intent into a single
// ensureFreshness call: a synchronous request from a tool handler, or a
// watcher-triggered background one.
type EnsureFreshnessOptions struct {
	// MinIntervalMs overrides the configured freshness threshold for this
	// call; a tool handler passes 0 to force an attempt regardless of age.
	MinIntervalMs int64
	// Reason tags why this call was made, surfaced on the resulting decision
	// for observability; "ignore_change" routes into the reconcile path.
	Reason string
	// CoalescedEdits is the number of debounced filesystem events folded
	// into this call, recorded on the decision for diagnostics.
	CoalescedEdits int
	// SkipIgnoreControlCheck bypasses the ignore-control signature
	// comparison, used by the reconcile algorithm's own follow-up sync.
	SkipIgnoreControlCheck bool
}
