// Package freshness decides, for a single tracked codebase, whether an
// incremental sync or an ignore-rule reconcile needs to run right now, and
// runs it exactly once even when several callers ask at the same time.
package freshness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/snapshot"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/jamaly87/codebase-semantic-search/pkg/ignore"
)

// ignoreControlFileNames are the exact root-level files whose mtime/size
// feed the ignore-control signature, in the fixed order the signature joins them.
var ignoreControlFileNames = []string{".satoriignore", ".gitignore"}

// Indexer is the narrow indexing-side dependency the coordinator needs.
type Indexer interface {
	ReindexByChange(ctx context.Context, path string) (models.ReindexResult, error)
	GetActiveIgnorePatterns(path string) []string
	ReloadIgnoreRulesForCodebase(path string) error
	HasSynchronizerForCodebase(path string) bool
	RecreateSynchronizerForCodebase(path string) error
	DeleteIndexedPathsByRelativePaths(path string, relativePaths []string) error
	GetTrackedRelativePaths(path string) []string
}

// ChangedFilesInvalidator is implemented by internal/changedfiles.Cache.
type ChangedFilesInvalidator interface {
	Invalidate(path string)
}

// WatcherUnregisterer is implemented by internal/watcher.Subsystem.
type WatcherUnregisterer interface {
	UnregisterCodebaseWatcher(path string)
}

type syncFuture struct {
	done     chan struct{}
	decision models.FreshnessDecision
	err      error
}

// Coordinator implements ensureFreshness for every tracked codebase.
type Coordinator struct {
	cfg         config.FreshnessConfig
	store       *snapshot.Store
	indexer     Indexer
	changed     ChangedFilesInvalidator
	fingerprint models.IndexFingerprint

	watcherMu sync.RWMutex
	watcher   WatcherUnregisterer

	mu                sync.Mutex
	inFlightSync      map[string]*syncFuture
	inFlightReconcile map[string]*syncFuture
}

// New creates a Coordinator. fingerprint is the runtime embedding/vector-store
// configuration stamped on every sync_completed entry this coordinator writes.
func New(cfg config.FreshnessConfig, store *snapshot.Store, indexer Indexer, changed ChangedFilesInvalidator, fingerprint models.IndexFingerprint) *Coordinator {
	return &Coordinator{
		cfg:               cfg,
		store:             store,
		indexer:           indexer,
		changed:           changed,
		fingerprint:       fingerprint,
		inFlightSync:      make(map[string]*syncFuture),
		inFlightReconcile: make(map[string]*syncFuture),
	}
}

// SetWatcher wires the watcher subsystem after both are constructed, breaking
// the construction cycle (the watcher needs the coordinator as its Synchronizer).
func (c *Coordinator) SetWatcher(w WatcherUnregisterer) {
	c.watcherMu.Lock()
	c.watcher = w
	c.watcherMu.Unlock()
}

// ActiveIgnoreMatcher implements watcher.IgnoreProvider by asking the indexer
// for the currently active ignore patterns for path.
func (c *Coordinator) ActiveIgnoreMatcher(path string) *ignore.Matcher {
	return ignore.NewMatcher(c.indexer.GetActiveIgnorePatterns(path))
}

// EnsureFreshness is the single public entry point described by the state machine.
func (c *Coordinator) EnsureFreshness(ctx context.Context, path string, opts models.EnsureFreshnessOptions) (models.FreshnessDecision, error) {
	if opts.Reason == "ignore_change" {
		return c.reconcile(ctx, path, opts.CoalescedEdits)
	}

	if !opts.SkipIgnoreControlCheck {
		info, tracked := c.store.GetInfo(path)
		currentSig := computeIgnoreControlSignature(path)
		if tracked {
			switch {
			case info.IgnoreControlSignature == "" && (info.Status == models.StatusIndexed || info.Status == models.StatusSyncCompleted):
				// First sight: baseline without reconciling.
				if err := c.store.SetIgnoreControlSignature(path, currentSig); err != nil {
					slog.Warn("failed to baseline ignore-control signature", "path", path, "error", err)
				}
			case info.IgnoreControlSignature != "" && info.IgnoreControlSignature != currentSig:
				return c.reconcile(ctx, path, opts.CoalescedEdits)
			}
		}
	}

	// Coalescing: an in-flight full sync wins, everyone else rides along.
	c.mu.Lock()
	if future, ok := c.inFlightSync[path]; ok {
		c.mu.Unlock()
		<-future.done
		return models.FreshnessDecision{Mode: models.FreshnessCoalesced, LastSyncAt: future.decision.LastSyncAt}, nil
	}

	if opts.MinIntervalMs > 0 {
		if info, ok := c.store.GetInfo(path); ok && !info.LastSyncAt.IsZero() {
			if time.Since(info.LastSyncAt) < time.Duration(opts.MinIntervalMs)*time.Millisecond {
				c.mu.Unlock()
				return models.FreshnessDecision{Mode: models.FreshnessSkippedRecent, LastSyncAt: info.LastSyncAt}, nil
			}
		}
	}

	future := &syncFuture{done: make(chan struct{})}
	c.inFlightSync[path] = future
	c.mu.Unlock()

	decision, err := c.fullSync(ctx, path)

	c.mu.Lock()
	delete(c.inFlightSync, path)
	c.mu.Unlock()

	future.decision, future.err = decision, err
	close(future.done)

	return decision, err
}

// fullSync implements 4.2.a.
func (c *Coordinator) fullSync(ctx context.Context, path string) (models.FreshnessDecision, error) {
	info, tracked := c.store.GetInfo(path)
	if tracked {
		switch info.Status {
		case models.StatusIndexing:
			return models.FreshnessDecision{Mode: models.FreshnessSkippedIndexing}, nil
		case models.StatusRequiresReindex:
			return models.FreshnessDecision{Mode: models.FreshnessSkippedRequiresReindex}, nil
		}
	}

	if _, err := os.Stat(path); err != nil {
		if err := c.store.RemoveCompletely(path); err != nil {
			slog.Warn("failed to remove snapshot entry for missing path", "path", path, "error", err)
		}
		c.watcherMu.RLock()
		w := c.watcher
		c.watcherMu.RUnlock()
		if w != nil {
			w.UnregisterCodebaseWatcher(path)
		}
		return models.FreshnessDecision{Mode: models.FreshnessSkippedMissingPath}, nil
	}

	result, err := c.indexer.ReindexByChange(ctx, path)
	if err != nil {
		return models.FreshnessDecision{}, fmt.Errorf("reindex by change: %w", err)
	}

	if tracked := c.indexer.GetTrackedRelativePaths(path); len(tracked) > 0 {
		if err := c.store.SetIndexManifest(path, tracked); err != nil {
			slog.Warn("failed to update index manifest", "path", path, "error", err)
		}
	}

	counters := models.SyncCounters{Added: result.Added, Removed: result.Removed, Modified: result.Modified}
	if err := c.store.SetSyncCompleted(path, counters, c.fingerprint, models.FingerprintVerified); err != nil {
		slog.Warn("failed to persist sync_completed state", "path", path, "error", err)
	}
	if c.changed != nil {
		c.changed.Invalidate(path)
	}

	return models.FreshnessDecision{
		Mode:         models.FreshnessSynced,
		LastSyncAt:   time.Now().UTC(),
		Stats:        &counters,
		ChangedFiles: result.ChangedFiles,
	}, nil
}

// reconcile implements 4.2.b, serialized per path by its own in-flight map.
func (c *Coordinator) reconcile(ctx context.Context, path string, coalescedEdits int) (models.FreshnessDecision, error) {
	c.mu.Lock()
	if future, ok := c.inFlightReconcile[path]; ok {
		c.mu.Unlock()
		<-future.done
		if future.err != nil {
			return models.FreshnessDecision{}, future.err
		}
		winner := future.decision
		winner.Mode = models.FreshnessCoalesced
		return winner, nil
	}
	future := &syncFuture{done: make(chan struct{})}
	c.inFlightReconcile[path] = future
	c.mu.Unlock()

	decision, err := c.doReconcile(ctx, path, coalescedEdits)

	c.mu.Lock()
	delete(c.inFlightReconcile, path)
	c.mu.Unlock()

	future.decision, future.err = decision, err
	close(future.done)
	return decision, err
}

func (c *Coordinator) doReconcile(ctx context.Context, path string, coalescedEdits int) (models.FreshnessDecision, error) {
	start := time.Now()

	// If a full sync is already running, ride it out before reconciling
	// against its (possibly now stale) manifest.
	c.mu.Lock()
	inFlight := c.inFlightSync[path]
	c.mu.Unlock()
	if inFlight != nil {
		<-inFlight.done
	}

	info, _ := c.store.GetInfo(path)
	beforeReload := info.IndexManifest
	if len(beforeReload) == 0 {
		beforeReload = c.indexer.GetTrackedRelativePaths(path)
	}
	if len(beforeReload) == 0 {
		return c.reconcileFailure(ctx, path, coalescedEdits, "missing_manifest_and_synchronizer")
	}

	if err := c.indexer.ReloadIgnoreRulesForCodebase(path); err != nil {
		return c.reconcileFailure(ctx, path, coalescedEdits, err.Error())
	}
	newVersion := info.IgnoreRulesVersion + 1
	if err := c.store.SetIgnoreRulesVersion(path, newVersion); err != nil {
		slog.Warn("failed to persist ignore rules version", "path", path, "error", err)
	}

	if c.indexer.HasSynchronizerForCodebase(path) {
		if err := c.indexer.RecreateSynchronizerForCodebase(path); err != nil {
			return c.reconcileFailure(ctx, path, coalescedEdits, err.Error())
		}
	}

	newMatcher := ignore.NewMatcher(c.indexer.GetActiveIgnorePatterns(path))
	var toDelete []string
	for _, rel := range beforeReload {
		if newMatcher.Match(rel, false) {
			toDelete = append(toDelete, rel)
		}
	}
	if len(toDelete) > 0 {
		if err := c.indexer.DeleteIndexedPathsByRelativePaths(path, toDelete); err != nil {
			return c.reconcileFailure(ctx, path, coalescedEdits, err.Error())
		}
	}

	retained := subtract(beforeReload, toDelete)
	if err := c.store.SetIndexManifest(path, retained); err != nil {
		slog.Warn("failed to persist reconciled manifest", "path", path, "error", err)
	}

	followUp, err := c.EnsureFreshness(ctx, path, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
	addedFiles := 0
	if err == nil && followUp.Stats != nil {
		addedFiles = followUp.Stats.Added
	}

	newSig := computeIgnoreControlSignature(path)
	if err := c.store.SetIgnoreControlSignature(path, newSig); err != nil {
		slog.Warn("failed to persist ignore-control signature", "path", path, "error", err)
	}

	return models.FreshnessDecision{
		Mode:               models.FreshnessReconciledIgnoreChange,
		IgnoreRulesVersion: newVersion,
		DeletedFiles:       len(toDelete),
		NewlyIgnoredFiles:  len(toDelete),
		AddedFiles:         addedFiles,
		CoalescedEdits:     coalescedEdits,
		DurationMs:         time.Since(start).Milliseconds(),
	}, nil
}

func (c *Coordinator) reconcileFailure(ctx context.Context, path string, coalescedEdits int, message string) (models.FreshnessDecision, error) {
	slog.Warn("ignore reconcile failed, attempting fallback full sync", "path", path, "error", message)
	_, syncErr := c.fullSync(ctx, path)
	fallbackExecuted := syncErr == nil
	return models.FreshnessDecision{
		Mode:                 models.FreshnessIgnoreReloadFailed,
		FallbackSyncExecuted: fallbackExecuted,
		ErrorMessage:         message,
		CoalescedEdits:       coalescedEdits,
	}, nil
}

// RunPeriodicSync loops over indexed codebases sequentially via a recursive
// time.AfterFunc, never overlapping itself. It stops when ctx is cancelled.
func (c *Coordinator) RunPeriodicSync(ctx context.Context) {
	var tick func()
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		for _, path := range c.store.GetIndexed() {
			if ctx.Err() != nil {
				return
			}
			if _, err := c.EnsureFreshness(ctx, path, models.EnsureFreshnessOptions{}); err != nil {
				slog.Warn("periodic freshness sync failed", "path", path, "error", err)
			}
		}
		time.AfterFunc(time.Duration(c.cfg.PeriodicIntervalMs)*time.Millisecond, tick)
	}
	time.AfterFunc(time.Duration(c.cfg.PeriodicInitialDelayMs)*time.Millisecond, tick)
}

// computeIgnoreControlSignature builds the deterministic root-level
// ignore-control signature: name:mtimeMsRounded:size joined by "|", in the
// fixed order .satoriignore, .gitignore, with ":missing" for absent files.
func computeIgnoreControlSignature(root string) string {
	parts := make([]string, 0, len(ignoreControlFileNames))
	for _, name := range ignoreControlFileNames {
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil {
			parts = append(parts, name+":missing")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%d", name, info.ModTime().UnixMilli(), info.Size()))
	}
	signature := ""
	for i, p := range parts {
		if i > 0 {
			signature += "|"
		}
		signature += p
	}
	return signature
}

func subtract(all, remove []string) []string {
	removed := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		removed[r] = struct{}{}
	}
	out := make([]string, 0, len(all))
	for _, p := range all {
		if _, ok := removed[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
