package search

import "github.com/jamaly87/codebase-semantic-search/internal/models"

// Scope constrains which parts of a codebase a search considers.
type Scope string

const (
	ScopeRuntime Scope = "runtime"
	ScopeDocs    Scope = "docs"
	ScopeMixed   Scope = "mixed"
)

// ResultMode selects whether candidates are returned as flat chunks or
// grouped by symbol.
type ResultMode string

const (
	ResultModeRaw     ResultMode = "raw"
	ResultModeGrouped ResultMode = "grouped"
)

// RankingMode selects the candidate ordering policy.
type RankingMode string

const (
	RankingDefault          RankingMode = "default"
	RankingAutoChangedFirst RankingMode = "auto_changed_first"
)

// Options is the full set of inputs to a Pipeline.Run call.
type Options struct {
	Path            string
	Query           string
	Limit           int
	Scope           Scope
	ResultMode      ResultMode
	GroupBy         string
	ExtensionFilter []string
	ExcludePatterns []string
	UseIgnoreFiles  bool
	ReturnRaw       bool
	ShowScores      bool
	UseReranker     *bool
	RankingMode     RankingMode
	Debug           bool
}

// Candidate is one scored chunk flowing through the pipeline before
// grouping/merging.
type Candidate struct {
	Chunk       models.CodeChunk
	Score       float64
	SemanticOf  string // which pass produced the kept (highest-scoring) copy: "primary" or "expanded"
	ExactMatch  bool
}

// RerankInfo records what happened during the optional rerank stage.
type RerankInfo struct {
	Enabled   bool   `json:"enabled"`
	Attempted bool   `json:"attempted"`
	Applied   bool   `json:"applied"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// DiversityClamp records how many candidates were dropped by the per-file
// and per-symbol caps in grouped mode.
type DiversityClamp struct {
	MaxPerFile    int `json:"maxPerFile"`
	MaxPerSymbol  int `json:"maxPerSymbol"`
	DroppedByFile int `json:"droppedByFile"`
}

// NoiseMitigation is the hint emitted when the top results are dominated by
// non-runtime content.
type NoiseMitigation struct {
	Reason                  string             `json:"reason"`
	TopK                     int                `json:"topK"`
	Ratios                   map[string]float64 `json:"ratios"`
	RecommendedScope         string             `json:"recommendedScope"`
	DebounceMs               int                `json:"debounceMs"`
	SuggestedIgnorePatterns  []string           `json:"suggestedIgnorePatterns"`
	NextStep                 string             `json:"nextStep"`
}

// NavigationFallback points a caller at the raw file when a grouped result
// has no resolvable symbol.
type NavigationFallback struct {
	Message          string            `json:"message"`
	Context          NavigationContext `json:"context"`
	ReadSpan         ReadSpan          `json:"readSpan"`
	FileOutlineWindow *FileOutlineWindow `json:"fileOutlineWindow,omitempty"`
}

type NavigationContext struct {
	CodebaseRoot string `json:"codebaseRoot"`
	RelativeFile string `json:"relativeFile"`
	AbsolutePath string `json:"absolutePath"`
}

type ReadSpan struct {
	Tool string       `json:"tool"`
	Args ReadSpanArgs `json:"args"`
}

type ReadSpanArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type FileOutlineWindow struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// ResultItem is one entry in the response, either raw or grouped.
type ResultItem struct {
	Chunk              models.CodeChunk    `json:"chunk"`
	Score              float64             `json:"score,omitempty"`
	GroupID            string              `json:"groupId,omitempty"`
	SymbolLabel        string              `json:"symbolLabel,omitempty"`
	NavigationFallback *NavigationFallback `json:"navigationFallback,omitempty"`
}

// Hints bundles optional guidance attached to a response.
type Hints struct {
	Version         int              `json:"version"`
	NoiseMitigation *NoiseMitigation `json:"noiseMitigation,omitempty"`
}

// Response is the full pipeline result for one search_codebase call.
type Response struct {
	ResultMode ResultMode   `json:"resultMode"`
	Results    []ResultItem `json:"results"`
	Warnings   []string     `json:"warnings,omitempty"`
	Hints      *Hints       `json:"hints,omitempty"`
	Rerank     *RerankInfo  `json:"rerank,omitempty"`
	Clamp      *DiversityClamp `json:"clamp,omitempty"`
}
