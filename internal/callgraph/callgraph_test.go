package callgraph

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupGraph(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Helper() int {\n\treturn 1\n}\n\nfunc Caller() int {\n\treturn Helper()\n}\n")
	writeFile(t, dir, "b.go", "package a\n\nfunc OtherCaller() int {\n\treturn Helper() + Caller()\n}\n")
	return dir
}

func TestBuildGraphCallees(t *testing.T) {
	dir := setupGraph(t)
	result, err := BuildGraph(dir, SymbolRef{File: "a.go", SymbolLabel: "Caller"}, DirectionCallees, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusOK {
		t.Fatalf("status = %q, want ok", result.Status)
	}
	foundHelperEdge := false
	for _, e := range result.Edges {
		if e.Kind == "calls" {
			for _, n := range result.Nodes {
				if n.ID == e.To && n.Label == "Helper" {
					foundHelperEdge = true
				}
			}
		}
	}
	if !foundHelperEdge {
		t.Errorf("expected an edge into Helper, got edges=%+v nodes=%+v", result.Edges, result.Nodes)
	}
}

func TestBuildGraphCallers(t *testing.T) {
	dir := setupGraph(t)
	result, err := BuildGraph(dir, SymbolRef{File: "a.go", SymbolLabel: "Helper"}, DirectionCallers, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusOK {
		t.Fatalf("status = %q, want ok", result.Status)
	}
	labels := map[string]bool{}
	for _, n := range result.Nodes {
		labels[n.Label] = true
	}
	if !labels["Caller"] || !labels["OtherCaller"] {
		t.Errorf("expected both callers discovered, got nodes=%+v", result.Nodes)
	}
}

func TestBuildGraphNotFound(t *testing.T) {
	dir := setupGraph(t)
	result, err := BuildGraph(dir, SymbolRef{File: "a.go", SymbolLabel: "DoesNotExist"}, DirectionBoth, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusNotFound {
		t.Fatalf("status = %q, want not_found", result.Status)
	}
}
