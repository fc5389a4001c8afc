// Package changedfiles derives the set of relative paths a codebase's git
// worktree currently reports as changed, for the search pipeline's
// changed-files-first ranking boost. Untracked files are excluded: a file
// git does not know about yet is not a signal that recent edits live there.
package changedfiles

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
)

// Cache holds the last-known-good changed-path set per codebase, so a
// transient git failure degrades to stale data rather than no boost at all.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	paths     map[string]struct{}
	computedAt time.Time
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// ChangedFiles returns the relative paths with worktree or staging status
// other than Unmodified and Untracked, recomputing from the git worktree.
// On error it returns the last-known-good set, if any, so an occasional
// failed git call doesn't make the boost flap on and off.
func (c *Cache) ChangedFiles(repoPath string) ([]string, error) {
	paths, err := changedFiles(repoPath)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if entry, ok := c.entries[repoPath]; ok {
			slog.Warn("changed-files probe failed, using last-known-good set", "path", repoPath, "error", err, "age", time.Since(entry.computedAt))
			return setToSlice(entry.paths), nil
		}
		return nil, err
	}

	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	c.entries[repoPath] = cacheEntry{paths: set, computedAt: time.Now()}
	return paths, nil
}

// Invalidate drops the cached entry for path, forcing a recompute on next access.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// changedFiles opens repoPath as a git worktree and returns relative paths
// whose worktree or staging status is neither Unmodified nor Untracked.
func changedFiles(repoPath string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}

	var out []string
	for path, fileStatus := range status {
		if fileStatus.Worktree == git.Untracked && fileStatus.Staging == git.Untracked {
			continue
		}
		if fileStatus.Worktree == git.Unmodified && fileStatus.Staging == git.Unmodified {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}
