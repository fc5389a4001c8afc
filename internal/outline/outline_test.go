package outline

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildOutlineGo(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "widget.go", "package widget\n\nfunc New() *Widget {\n\treturn nil\n}\n\nfunc (w *Widget) Render() string {\n\treturn \"\"\n}\n")

	res, err := BuildOutline(dir, "widget.go", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	if len(res.Outline.Symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d: %+v", len(res.Outline.Symbols), res.Outline.Symbols)
	}
	if res.Outline.Symbols[0].Label != "New" || res.Outline.Symbols[1].Label != "Render" {
		t.Errorf("unexpected symbol labels: %+v", res.Outline.Symbols)
	}
	if res.Outline.Symbols[0].EndLine != res.Outline.Symbols[1].StartLine-1 {
		t.Errorf("expected first symbol to end just before the second starts")
	}
}

func TestBuildOutlineNotFound(t *testing.T) {
	dir := t.TempDir()
	res, err := BuildOutline(dir, "missing.go", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusNotFound {
		t.Fatalf("status = %q, want not_found", res.Status)
	}
}

func TestBuildOutlineUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "data.txt", "hello")
	res, err := BuildOutline(dir, "data.txt", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusUnsupported {
		t.Fatalf("status = %q, want unsupported", res.Status)
	}
}

func TestBuildOutlineLimitSetsHasMore(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "widget.go", "package widget\n\nfunc A() {}\n\nfunc B() {}\n\nfunc C() {}\n")

	res, err := BuildOutline(dir, "widget.go", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outline.Symbols) != 2 {
		t.Fatalf("expected symbols truncated to 2, got %d", len(res.Outline.Symbols))
	}
	if !res.HasMore {
		t.Error("expected HasMore to be true when truncated")
	}
}

func TestFilterByRange(t *testing.T) {
	o := &Outline{Symbols: []Symbol{
		{Label: "New", StartLine: 1, EndLine: 4},
		{Label: "Render", StartLine: 6, EndLine: 10},
		{Label: "Close", StartLine: 12, EndLine: 15},
	}}

	got := FilterByRange(o, 5, 11)
	if len(got.Symbols) != 1 || got.Symbols[0].Label != "Render" {
		t.Fatalf("expected only Render to overlap [5,11], got %+v", got.Symbols)
	}

	got = FilterByRange(o, 1, 15)
	if len(got.Symbols) != 3 {
		t.Fatalf("expected all symbols within [1,15], got %d", len(got.Symbols))
	}
}

func TestResolveExact(t *testing.T) {
	o := &Outline{Symbols: []Symbol{
		{Label: "New", StartLine: 1},
		{Label: "Render", StartLine: 5},
		{Label: "Render", StartLine: 20},
	}}

	if _, ok, ambiguous := ResolveExact(o, "Missing"); ok || ambiguous {
		t.Error("expected not found for missing label")
	}
	if sym, ok, _ := ResolveExact(o, "New"); !ok || sym.StartLine != 1 {
		t.Errorf("expected unique match for New, got %+v ok=%v", sym, ok)
	}
	if _, ok, ambiguous := ResolveExact(o, "Render"); ok || !ambiguous {
		t.Error("expected ambiguous result for duplicate label Render")
	}
}
