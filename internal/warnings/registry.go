// Package warnings defines the closed set of warning codes the search and
// indexing pipelines are allowed to surface to callers. A warning string is
// valid only if its code prefix (before the first ':') is registered here.
package warnings

const (
	// SearchPassFailed is emitted with a ":<passId>" suffix when one of the
	// concurrent semantic search passes errors but the other still returns.
	SearchPassFailed = "SEARCH_PASS_FAILED"

	// FilterMustUnsatisfied is emitted when a must: operator cannot be
	// satisfied by any candidate after the bounded retry ceiling is hit.
	FilterMustUnsatisfied = "FILTER_MUST_UNSATISFIED"

	// RerankerFailed is emitted when a reranker call errors; the pipeline
	// falls back to the unreranked order.
	RerankerFailed = "RERANKER_FAILED"
)

var registered = map[string]bool{
	SearchPassFailed:      true,
	FilterMustUnsatisfied: true,
	RerankerFailed:        true,
}

// Valid reports whether a warning string carries a registered code prefix.
// Codes that take a suffix are matched up to the first ':'.
func Valid(warning string) bool {
	code := warning
	for i, r := range warning {
		if r == ':' {
			code = warning[:i]
			break
		}
	}
	return registered[code]
}

// New builds a warning string for a code with no suffix.
func New(code string) string {
	return code
}

// Newf builds a warning string for a code that takes a suffix, e.g.
// Newf(SearchPassFailed, "expanded") -> "SEARCH_PASS_FAILED:expanded".
func Newf(code, suffix string) string {
	return code + ":" + suffix
}
