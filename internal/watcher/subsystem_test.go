package watcher

import (
	"testing"

	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

func TestShouldIgnoreWatchPath(t *testing.T) {
	matcher := ignore.NewMatcher([]string{"node_modules/", "*.log"})

	cases := []struct {
		name   string
		path   string
		isDir  bool
		ignore bool
	}{
		{"root_is_ignored", ".", false, true},
		{"outside_root_is_ignored", "../escape.go", false, true},
		{"satoriignore_is_allowed", ".satoriignore", false, false},
		{"root_gitignore_is_allowed", ".gitignore", false, false},
		{"other_hidden_file_is_ignored", ".env", false, true},
		{"hidden_dir_component_is_ignored", "src/.cache/file.go", false, true},
		{"matcher_ignored_dir", "node_modules", true, true},
		{"matcher_ignored_file", "app.log", false, true},
		{"ordinary_source_file_is_allowed", "internal/foo.go", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shouldIgnoreWatchPath(tc.path, tc.isDir, matcher)
			if got != tc.ignore {
				t.Fatalf("shouldIgnoreWatchPath(%q, %v) = %v, want %v", tc.path, tc.isDir, got, tc.ignore)
			}
		})
	}
}

func TestShouldIgnoreWatchPathNilMatcher(t *testing.T) {
	if shouldIgnoreWatchPath("internal/foo.go", false, nil) {
		t.Fatal("expected nil matcher to fall through to not-ignored for an ordinary path")
	}
}
