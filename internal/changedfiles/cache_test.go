package changedfiles

import "testing"

func TestChangedFilesNonGitDirectoryErrors(t *testing.T) {
	dir := t.TempDir()
	c := New()
	if _, err := c.ChangedFiles(dir); err == nil {
		t.Fatal("expected error opening a non-git directory, got nil")
	}
}

func TestCacheFallsBackToLastKnownGoodOnError(t *testing.T) {
	c := New()
	c.entries["/repo"] = cacheEntry{paths: map[string]struct{}{"a.go": {}}}

	// changedFiles will fail for a path with no git repository; ChangedFiles
	// should fall back to the cached entry instead of propagating the error.
	got, err := c.ChangedFiles("/repo")
	if err != nil {
		t.Fatalf("expected fallback to last-known-good, got error: %v", err)
	}
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("got %v, want [a.go]", got)
	}
}

func TestInvalidateClearsEntry(t *testing.T) {
	c := New()
	c.entries["/repo"] = cacheEntry{paths: map[string]struct{}{"a.go": {}}}
	c.Invalidate("/repo")
	if _, ok := c.entries["/repo"]; ok {
		t.Fatal("expected entry to be removed after Invalidate")
	}
}
