// Package capability resolves, at startup and per request, which optional
// features of the search pipeline are actually available.
package capability

import (
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

// Reranker describes the one optional collaborator this resolver currently
// knows about. It is kept as an interface so a real HTTP-backed reranker can
// be swapped in without touching the resolution policy.
type Reranker interface {
	Available() bool
}

// Resolver answers "is X available" and "should X run for this request".
type Resolver struct {
	cfg      config.CapabilitiesConfig
	reranker Reranker
}

// New builds a Resolver. reranker may be nil, meaning no reranker
// collaborator was wired regardless of configuration.
func New(cfg config.CapabilitiesConfig, reranker Reranker) *Resolver {
	return &Resolver{cfg: cfg, reranker: reranker}
}

// RerankerAvailable reports whether a reranker capability exists at all:
// enabled in config, an endpoint configured, and a wired collaborator that
// reports itself available.
func (r *Resolver) RerankerAvailable() bool {
	if !r.cfg.RerankerEnabled || r.cfg.RerankerEndpoint == "" {
		return false
	}
	if r.reranker == nil {
		return false
	}
	return r.reranker.Available()
}

// ShouldRerank applies the per-request policy: scope=docs is a hard skip
// regardless of the flag; without the capability rerank never runs; with it,
// an explicit request flag decides, and absent an explicit request rerank
// does not run.
func (r *Resolver) ShouldRerank(requested *bool, scope string) bool {
	if scope == "docs" {
		return false
	}
	if !r.RerankerAvailable() {
		return false
	}
	if requested != nil {
		return *requested
	}
	return false
}
