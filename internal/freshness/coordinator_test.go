package freshness

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/snapshot"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

type fakeIndexer struct {
	mu            sync.Mutex
	reindexCalls  int
	reindexResult models.ReindexResult
	reindexErr    error
	reindexDelay  time.Duration
	patterns      []string
	tracked       []string
	reloadErr     error
	hasSync       bool
	deleted       []string
}

func (f *fakeIndexer) ReindexByChange(ctx context.Context, path string) (models.ReindexResult, error) {
	f.mu.Lock()
	f.reindexCalls++
	delay := f.reindexDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return f.reindexResult, f.reindexErr
}

func (f *fakeIndexer) GetActiveIgnorePatterns(path string) []string { return f.patterns }
func (f *fakeIndexer) ReloadIgnoreRulesForCodebase(path string) error { return f.reloadErr }
func (f *fakeIndexer) HasSynchronizerForCodebase(path string) bool  { return f.hasSync }
func (f *fakeIndexer) RecreateSynchronizerForCodebase(path string) error { return nil }
func (f *fakeIndexer) DeleteIndexedPathsByRelativePaths(path string, rel []string) error {
	f.deleted = append(f.deleted, rel...)
	return nil
}
func (f *fakeIndexer) GetTrackedRelativePaths(path string) []string { return f.tracked }

func testFingerprint() models.IndexFingerprint {
	return models.IndexFingerprint{EmbeddingProvider: "ollama", EmbeddingModel: "m", EmbeddingDimension: 8, VectorStoreProvider: "qdrant", SchemaVersion: "1"}
}

func newTestCoordinator(t *testing.T, idx *fakeIndexer) (*Coordinator, *snapshot.Store) {
	t.Helper()
	store, err := snapshot.New(&config.SnapshotConfig{Directory: t.TempDir(), FileName: "snapshot.json"}, testFingerprint())
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	cfg := config.FreshnessConfig{ThresholdMs: 2000, PeriodicIntervalMs: 180000, PeriodicInitialDelayMs: 5000}
	return New(cfg, store, idx, nil, testFingerprint()), store
}

func TestFullSyncMissingPath(t *testing.T) {
	idx := &fakeIndexer{}
	c, store := newTestCoordinator(t, idx)

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	if err := store.SetIndexed(missing, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), missing, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessSkippedMissingPath {
		t.Fatalf("mode = %v, want skipped_missing_path", decision.Mode)
	}
	if got := store.GetStatus(missing); got != models.StatusNotFound {
		t.Fatalf("status after missing path = %v, want not_found", got)
	}
}

func TestFullSyncSkippedWhenIndexing(t *testing.T) {
	idx := &fakeIndexer{}
	c, store := newTestCoordinator(t, idx)
	root := t.TempDir()
	if err := store.SetIndexing(root, 50); err != nil {
		t.Fatalf("SetIndexing: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessSkippedIndexing {
		t.Fatalf("mode = %v, want skipped_indexing", decision.Mode)
	}
	if idx.reindexCalls != 0 {
		t.Fatalf("reindex should not have been called")
	}
}

func TestFullSyncSkippedRequiresReindex(t *testing.T) {
	idx := &fakeIndexer{}
	c, store := newTestCoordinator(t, idx)
	root := t.TempDir()
	if err := store.SetRequiresReindex(root, models.ReindexManual, nil, "manual"); err != nil {
		t.Fatalf("SetRequiresReindex: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessSkippedRequiresReindex {
		t.Fatalf("mode = %v, want skipped_requires_reindex", decision.Mode)
	}
}

func TestFullSyncSuccess(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{reindexResult: models.ReindexResult{Added: 3, ChangedFiles: []string{"a.go"}}, tracked: []string{"a.go", "b.go"}}
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 2}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessSynced {
		t.Fatalf("mode = %v, want synced", decision.Mode)
	}
	if decision.Stats == nil || decision.Stats.Added != 3 {
		t.Fatalf("stats = %+v, want Added=3", decision.Stats)
	}
	if got := store.GetStatus(root); got != models.StatusSyncCompleted {
		t.Fatalf("status = %v, want sync_completed", got)
	}
}

func TestSkippedRecentThrottle(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{reindexResult: models.ReindexResult{Added: 1}}
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}
	if err := store.SetSyncCompleted(root, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetSyncCompleted: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{MinIntervalMs: 60000, SkipIgnoreControlCheck: true})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessSkippedRecent {
		t.Fatalf("mode = %v, want skipped_recent", decision.Mode)
	}
	if idx.reindexCalls != 0 {
		t.Fatalf("reindex should have been skipped by throttle")
	}
}

func TestCoalescingConcurrentCallersShareOneSync(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{reindexResult: models.ReindexResult{Added: 1}, reindexDelay: 100 * time.Millisecond}
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	var wg sync.WaitGroup
	modes := make([]models.FreshnessMode, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{SkipIgnoreControlCheck: true})
			if err != nil {
				t.Errorf("EnsureFreshness: %v", err)
				return
			}
			modes[i] = d.Mode
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	synced, coalesced := 0, 0
	for _, m := range modes {
		switch m {
		case models.FreshnessSynced:
			synced++
		case models.FreshnessCoalesced:
			coalesced++
		}
	}
	if synced != 1 {
		t.Fatalf("synced count = %d, want 1 (got modes %v)", synced, modes)
	}
	if idx.reindexCalls != 1 {
		t.Fatalf("reindexCalls = %d, want 1", idx.reindexCalls)
	}
	if coalesced == 0 {
		t.Fatalf("expected at least one coalesced caller, got modes %v", modes)
	}
}

func TestIgnoreControlSignatureBaselinedOnFirstSight(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{reindexResult: models.ReindexResult{Added: 0}}
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	// No ignore files on disk yet; signature should baseline rather than reconcile.
	if _, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{}); err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	info, ok := store.GetInfo(root)
	if !ok || info.IgnoreControlSignature == "" {
		t.Fatalf("expected ignore-control signature to be baselined, got %+v", info)
	}
}

func TestReconcileDeletesNewlyIgnoredFiles(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{
		reindexResult: models.ReindexResult{Added: 0},
		tracked:       []string{"keep.go"},
		patterns:      []string{"vendor/**"},
	}
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 2}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}
	if err := store.SetIndexManifest(root, []string{"keep.go", "vendor/lib.go"}); err != nil {
		t.Fatalf("SetIndexManifest: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{Reason: "ignore_change", CoalescedEdits: 1})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessReconciledIgnoreChange {
		t.Fatalf("mode = %v, want reconciled_ignore_change", decision.Mode)
	}
	if decision.DeletedFiles != 1 {
		t.Fatalf("DeletedFiles = %d, want 1", decision.DeletedFiles)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "vendor/lib.go" {
		t.Fatalf("deleted = %v, want [vendor/lib.go]", idx.deleted)
	}

	info, ok := store.GetInfo(root)
	if !ok {
		t.Fatal("expected entry to still be tracked")
	}
	if len(info.IndexManifest) != 1 || info.IndexManifest[0] != "keep.go" {
		t.Fatalf("manifest = %v, want [keep.go]", info.IndexManifest)
	}
}

func TestReconcileFailureFallsBackToFullSync(t *testing.T) {
	root := t.TempDir()
	idx := &fakeIndexer{reindexResult: models.ReindexResult{Added: 1}} // no tracked paths -> missing manifest failure
	c, store := newTestCoordinator(t, idx)
	if err := store.SetIndexed(root, models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	decision, err := c.EnsureFreshness(context.Background(), root, models.EnsureFreshnessOptions{Reason: "ignore_change"})
	if err != nil {
		t.Fatalf("EnsureFreshness: %v", err)
	}
	if decision.Mode != models.FreshnessIgnoreReloadFailed {
		t.Fatalf("mode = %v, want ignore_reload_failed", decision.Mode)
	}
	if !decision.FallbackSyncExecuted {
		t.Fatalf("expected fallback sync to have run")
	}
	if got := store.GetStatus(root); got != models.StatusSyncCompleted {
		t.Fatalf("status after fallback sync = %v, want sync_completed", got)
	}
}

func TestComputeIgnoreControlSignatureReflectsFileState(t *testing.T) {
	root := t.TempDir()
	emptySig := computeIgnoreControlSignature(root)
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("node_modules/\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	withGitignore := computeIgnoreControlSignature(root)
	if emptySig == withGitignore {
		t.Fatalf("expected signature to change once .gitignore exists")
	}
}
