package search

import (
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

func TestHashGroupIDIsDeterministicAndDistinct(t *testing.T) {
	id1 := hashGroupID("a.go", 1, 10, "content")
	id2 := hashGroupID("a.go", 1, 10, "content")
	if id1 != id2 {
		t.Fatalf("hashGroupID not deterministic: %q != %q", id1, id2)
	}
	if len(id1) != len("grp_")+16 {
		t.Fatalf("expected 16 hex chars after prefix, got %q", id1)
	}
	if id1 == hashGroupID("a.go", 1, 11, "content") {
		t.Fatal("expected different end line to change the group id")
	}
}

func TestGroupBySymbolUsesSymbolIDWhenPresent(t *testing.T) {
	candidates := []Candidate{
		{Chunk: models.CodeChunk{ID: "1", FilePath: "a.go", SymbolID: "sym-1", StartLine: 1, EndLine: 5}, Score: 0.5},
		{Chunk: models.CodeChunk{ID: "2", FilePath: "a.go", SymbolID: "sym-1", StartLine: 1, EndLine: 5}, Score: 0.9},
	}
	groups := groupBySymbol(candidates)
	if len(groups) != 1 {
		t.Fatalf("expected candidates sharing a symbol id to collapse into one group, got %d", len(groups))
	}
	if groups[0].Best.Chunk.ID != "2" {
		t.Errorf("expected the higher-scoring candidate to be the representative, got chunk %q", groups[0].Best.Chunk.ID)
	}
}

func TestClampDiversityEnforcesMaxPerFile(t *testing.T) {
	groups := []groupedCandidate{
		{GroupID: "g1", File: "a.go", Best: Candidate{Score: 0.9}},
		{GroupID: "g2", File: "a.go", Best: Candidate{Score: 0.8}},
		{GroupID: "g3", File: "a.go", Best: Candidate{Score: 0.7}},
		{GroupID: "g4", File: "b.go", Best: Candidate{Score: 0.6}},
	}
	kept, clamp := clampDiversity(groups, 2, 1)
	if len(kept) != 3 {
		t.Fatalf("expected 3 groups kept (2 from a.go, 1 from b.go), got %d", len(kept))
	}
	if clamp.DroppedByFile != 1 {
		t.Errorf("expected 1 dropped group, got %d", clamp.DroppedByFile)
	}
}
