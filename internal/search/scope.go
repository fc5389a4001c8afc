package search

import (
	"strings"

	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

// classifier names used by the noise-mitigation ratio computation.
const (
	classifyTests     = "tests"
	classifyFixtures  = "fixtures"
	classifyDocs      = "docs"
	classifyGenerated = "generated"
	classifyRuntime   = "runtime"
)

var (
	testsMatcher     = ignore.NewMatcher([]string{"**/*.test.*", "**/*.spec.*", "**/__tests__/**"})
	fixturesMatcher  = ignore.NewMatcher([]string{"**/__fixtures__/**", "**/fixtures/**"})
	docsMatcher      = ignore.NewMatcher([]string{"docs/**", "**/*.md"})
	generatedMatcher = ignore.NewMatcher([]string{"coverage/**"})
)

// classify returns the noise classifier a relative path belongs to. A path
// can only belong to one bucket; checks run in a fixed priority order.
func classify(relPath string) string {
	pathLower := strings.ToLower(relPath)

	if testsMatcher.Match(relPath, false) || isTestFile(pathLower) {
		return classifyTests
	}
	if fixturesMatcher.Match(relPath, false) {
		return classifyFixtures
	}
	if docsMatcher.Match(relPath, false) {
		return classifyDocs
	}
	if generatedMatcher.Match(relPath, false) || isGeneratedOrVendor(pathLower) {
		return classifyGenerated
	}
	return classifyRuntime
}

// scopeAllows reports whether a path survives the given scope filter.
func scopeAllows(scope Scope, relPath string) bool {
	switch scope {
	case ScopeRuntime:
		return classify(relPath) == classifyRuntime
	case ScopeDocs:
		c := classify(relPath)
		return c == classifyDocs || c == classifyTests
	default: // mixed, or unset
		return true
	}
}

// isTestFile detects test files by directory and filename conventions.
func isTestFile(pathLower string) bool {
	if strings.Contains(pathLower, "/test/") ||
		strings.Contains(pathLower, "/tests/") ||
		strings.Contains(pathLower, "/__tests__/") ||
		strings.Contains(pathLower, "/spec/") {
		return true
	}

	return strings.HasSuffix(pathLower, "_test.go") ||
		strings.HasSuffix(pathLower, "_test.js") ||
		strings.HasSuffix(pathLower, "_test.ts") ||
		strings.HasSuffix(pathLower, ".test.js") ||
		strings.HasSuffix(pathLower, ".test.ts") ||
		strings.HasSuffix(pathLower, ".test.jsx") ||
		strings.HasSuffix(pathLower, ".test.tsx") ||
		strings.HasSuffix(pathLower, ".spec.js") ||
		strings.HasSuffix(pathLower, ".spec.ts") ||
		strings.HasSuffix(pathLower, ".spec.jsx") ||
		strings.HasSuffix(pathLower, ".spec.tsx") ||
		strings.HasSuffix(pathLower, "test.java") ||
		strings.HasSuffix(pathLower, "tests.java")
}

// isGeneratedOrVendor detects generated or vendored code.
func isGeneratedOrVendor(pathLower string) bool {
	return strings.Contains(pathLower, "/vendor/") ||
		strings.Contains(pathLower, "/node_modules/") ||
		strings.Contains(pathLower, "/target/") ||
		strings.Contains(pathLower, "/build/") ||
		strings.Contains(pathLower, "/dist/") ||
		strings.Contains(pathLower, ".generated.") ||
		strings.Contains(pathLower, "_generated.")
}
