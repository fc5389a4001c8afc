package search

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"internal/search/pipeline.go", classifyRuntime},
		{"internal/search/pipeline_test.go", classifyTests},
		{"src/components/Button.test.tsx", classifyTests},
		{"src/__tests__/button.tsx", classifyTests},
		{"test/fixtures/sample.json", classifyFixtures},
		{"docs/architecture.md", classifyDocs},
		{"README.md", classifyDocs},
		{"coverage/lcov-report/index.html", classifyGenerated},
		{"third_party/vendor/github.com/foo/bar.go", classifyGenerated},
	}
	for _, tc := range cases {
		if got := classify(tc.path); got != tc.want {
			t.Errorf("classify(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestScopeAllows(t *testing.T) {
	if !scopeAllows(ScopeRuntime, "internal/search/pipeline.go") {
		t.Error("runtime scope should allow source files")
	}
	if scopeAllows(ScopeRuntime, "internal/search/pipeline_test.go") {
		t.Error("runtime scope should exclude test files")
	}
	if !scopeAllows(ScopeDocs, "docs/architecture.md") {
		t.Error("docs scope should allow docs")
	}
	if !scopeAllows(ScopeDocs, "internal/search/pipeline_test.go") {
		t.Error("docs scope should allow tests")
	}
	if scopeAllows(ScopeDocs, "internal/search/pipeline.go") {
		t.Error("docs scope should exclude plain source")
	}
	if !scopeAllows(ScopeMixed, "vendor/pkg/file.go") {
		t.Error("mixed scope should allow everything")
	}
}
