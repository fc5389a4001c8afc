package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

func testFingerprint() models.IndexFingerprint {
	return models.IndexFingerprint{
		EmbeddingProvider:   "ollama",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimension:  768,
		VectorStoreProvider: "qdrant",
		SchemaVersion:       "1",
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.SnapshotConfig{Directory: t.TempDir(), FileName: "snapshot.json"}
	s, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSetIndexedThenReload(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.SnapshotConfig{Directory: dir, FileName: "snapshot.json"}

	s, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SetIndexed("/repo/a", models.SyncCounters{Added: 10}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	s2, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	if got := s2.GetStatus("/repo/a"); got != models.StatusIndexed {
		t.Fatalf("status after reload = %v, want indexed", got)
	}
	info, ok := s2.GetInfo("/repo/a")
	if !ok || info.IndexedFiles != 10 {
		t.Fatalf("info after reload = %+v", info)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	if got := s.GetStatus("/nope"); got != models.StatusNotFound {
		t.Fatalf("GetStatus = %v, want not_found", got)
	}
}

func TestInterruptedIndexingRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.SnapshotConfig{Directory: dir, FileName: "snapshot.json"}

	s, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SetIndexing("/repo/b", 42); err != nil {
		t.Fatalf("SetIndexing: %v", err)
	}

	s2, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	info, ok := s2.GetInfo("/repo/b")
	if !ok {
		t.Fatalf("expected entry to survive reload")
	}
	if info.Status != models.StatusIndexFailed {
		t.Fatalf("status = %v, want indexfailed after interrupted recovery", info.Status)
	}
	if info.LastAttemptedPercentage == nil || *info.LastAttemptedPercentage != 42 {
		t.Fatalf("LastAttemptedPercentage = %v, want 42", info.LastAttemptedPercentage)
	}
}

func TestEnsureFingerprintCompatibilityOnAccess(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetIndexed("/repo/c", models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	t.Run("matching fingerprint allows access", func(t *testing.T) {
		res := s.EnsureFingerprintCompatibilityOnAccess("/repo/c")
		if !res.Allowed || res.Changed {
			t.Fatalf("got %+v, want allowed=true changed=false", res)
		}
	})

	t.Run("untracked path allows access", func(t *testing.T) {
		res := s.EnsureFingerprintCompatibilityOnAccess("/repo/unknown")
		if !res.Allowed {
			t.Fatalf("got %+v, want allowed=true for untracked path", res)
		}
	})
}

func TestEnsureFingerprintCompatibilityOnAccessMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.SnapshotConfig{Directory: dir, FileName: "snapshot.json"}
	s, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stale := testFingerprint()
	stale.EmbeddingDimension = 256
	if err := s.SetIndexed("/repo/d", models.SyncCounters{Added: 1}, stale, models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}

	res := s.EnsureFingerprintCompatibilityOnAccess("/repo/d")
	if res.Allowed || !res.Changed {
		t.Fatalf("got %+v, want allowed=false changed=true on mismatch", res)
	}
	if got := s.GetStatus("/repo/d"); got != models.StatusRequiresReindex {
		t.Fatalf("status after gate = %v, want requires_reindex", got)
	}

	// A second call finds it already in requires_reindex and returns without mutation.
	res2 := s.EnsureFingerprintCompatibilityOnAccess("/repo/d")
	if res2.Allowed || res2.Changed {
		t.Fatalf("second call = %+v, want allowed=false changed=false", res2)
	}
}

func TestRemoveCompletely(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetIndexed("/repo/e", models.SyncCounters{Added: 1}, testFingerprint(), models.FingerprintVerified); err != nil {
		t.Fatalf("SetIndexed: %v", err)
	}
	if err := s.RemoveCompletely("/repo/e"); err != nil {
		t.Fatalf("RemoveCompletely: %v", err)
	}
	if got := s.GetStatus("/repo/e"); got != models.StatusNotFound {
		t.Fatalf("status after removal = %v, want not_found", got)
	}
}

func TestSnapshotFileIsWrittenAtomically(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.SnapshotConfig{Directory: dir, FileName: "snapshot.json"}
	s, err := New(cfg, testFingerprint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SetIndexing("/repo/f", 1); err != nil {
		t.Fatalf("SetIndexing: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ".snapshot-*.tmp"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("leftover temp file(s) after save: %v", matches)
	}
}
