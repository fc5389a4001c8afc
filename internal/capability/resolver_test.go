package capability

import (
	"testing"

	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

type fakeReranker struct{ available bool }

func (f fakeReranker) Available() bool { return f.available }

func TestRerankerAvailable(t *testing.T) {
	cases := []struct {
		name     string
		cfg      config.CapabilitiesConfig
		reranker Reranker
		want     bool
	}{
		{"disabled in config", config.CapabilitiesConfig{RerankerEnabled: false, RerankerEndpoint: "http://x"}, fakeReranker{true}, false},
		{"no endpoint", config.CapabilitiesConfig{RerankerEnabled: true}, fakeReranker{true}, false},
		{"nil collaborator", config.CapabilitiesConfig{RerankerEnabled: true, RerankerEndpoint: "http://x"}, nil, false},
		{"collaborator reports unavailable", config.CapabilitiesConfig{RerankerEnabled: true, RerankerEndpoint: "http://x"}, fakeReranker{false}, false},
		{"fully available", config.CapabilitiesConfig{RerankerEnabled: true, RerankerEndpoint: "http://x"}, fakeReranker{true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(tc.cfg, tc.reranker)
			if got := r.RerankerAvailable(); got != tc.want {
				t.Errorf("RerankerAvailable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldRerank(t *testing.T) {
	cfg := config.CapabilitiesConfig{RerankerEnabled: true, RerankerEndpoint: "http://x"}
	r := New(cfg, fakeReranker{true})

	yes, no := true, false

	if r.ShouldRerank(nil, "docs") {
		t.Error("docs scope must never rerank")
	}
	if r.ShouldRerank(&yes, "docs") {
		t.Error("docs scope must never rerank even if requested")
	}
	if !r.ShouldRerank(&yes, "runtime") {
		t.Error("explicit true request with capability present should rerank")
	}
	if r.ShouldRerank(&no, "runtime") {
		t.Error("explicit false request should not rerank")
	}
	if r.ShouldRerank(nil, "runtime") {
		t.Error("no explicit request defaults to not reranking")
	}

	unavailable := New(config.CapabilitiesConfig{}, nil)
	if unavailable.ShouldRerank(&yes, "runtime") {
		t.Error("requesting rerank without capability should not rerank")
	}
}
