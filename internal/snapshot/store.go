// Package snapshot persists the per-codebase indexing state machine to a
// single JSON file on disk, guarded against concurrent writers (including
// another process) with a file lock, and written atomically so a crash mid-save
// never leaves a truncated snapshot behind.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
)

// onDiskSnapshot is the serialized envelope written to the snapshot file.
type onDiskSnapshot struct {
	Version    int                               `json:"version"`
	Codebases  map[string]models.CodebaseInfo     `json:"codebases"`
	SavedAt    time.Time                          `json:"savedAt"`
}

const snapshotSchemaVersion = 1

// FingerprintGateResult is the outcome of ensureFingerprintCompatibilityOnAccess.
type FingerprintGateResult struct {
	Allowed bool
	Changed bool
	Message string
}

// Store is the process-wide holder of all tracked codebase state.
type Store struct {
	mu       sync.Mutex
	path     string
	lockPath string
	entries  map[string]models.CodebaseInfo
	runtime  models.IndexFingerprint
}

// New creates a Store that persists to cfg.Snapshot.Directory/cfg.Snapshot.FileName,
// tagging every fingerprint comparison against runtimeFingerprint.
func New(cfg *config.SnapshotConfig, runtimeFingerprint models.IndexFingerprint) (*Store, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	path := filepath.Join(cfg.Directory, cfg.FileName)
	s := &Store{
		path:     path,
		lockPath: path + ".lock",
		entries:  make(map[string]models.CodebaseInfo),
		runtime:  runtimeFingerprint,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.recoverInterruptedIndexing()
	return s, nil
}

// load reads the persisted snapshot file if present. A missing file is not
// an error: it means no codebase has ever been tracked.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var onDisk onDiskSnapshot
	if err := json.Unmarshal(data, &onDisk); err != nil {
		slog.Warn("snapshot file unreadable, starting empty", "path", s.path, "error", err)
		return nil
	}

	for path, info := range onDisk.Codebases {
		clampUnknownStatus(&info)
		s.entries[path] = info
	}
	return nil
}

// clampUnknownStatus forces any status value outside the known set to
// indexfailed, so a future schema addition never crashes an older binary.
func clampUnknownStatus(info *models.CodebaseInfo) {
	switch info.Status {
	case models.StatusNotFound, models.StatusIndexing, models.StatusIndexed,
		models.StatusSyncCompleted, models.StatusRequiresReindex, models.StatusIndexFailed:
		return
	default:
		info.Status = models.StatusIndexFailed
		info.ErrorMessage = "unknown persisted status, treated as failed"
	}
}

// recoverInterruptedIndexing resets any codebase left mid-index by a prior
// process that crashed or was killed, per the interrupted-indexing recovery
// rule: without a completion marker to consult at startup, the only safe
// assumption is that the run did not finish.
func (s *Store) recoverInterruptedIndexing() {
	for path, info := range s.entries {
		if info.Status != models.StatusIndexing {
			continue
		}
		pct := info.IndexingPercentage
		info.Status = models.StatusIndexFailed
		info.ErrorMessage = "process restarted mid-index"
		info.LastAttemptedPercentage = &pct
		info.LastUpdated = time.Now().UTC()
		s.entries[path] = info
		slog.Warn("recovered interrupted indexing run", "path", path, "lastPercentage", pct)
	}
}

// save serializes the full map atomically: write to a temp file in the same
// directory under an flock-guarded section, then rename over the target.
func (s *Store) save() error {
	fl := flock.New(s.lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire snapshot lock: %w", err)
	}
	if !locked {
		if err := fl.Lock(); err != nil {
			return fmt.Errorf("acquire snapshot lock: %w", err)
		}
	}
	defer fl.Unlock()

	onDisk := onDiskSnapshot{
		Version:   snapshotSchemaVersion,
		Codebases: s.entries,
		SavedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot file: %w", err)
	}
	return nil
}

// GetStatus returns the status of a tracked codebase, or StatusNotFound.
func (s *Store) GetStatus(path string) models.CodebaseStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.entries[path]
	if !ok {
		return models.StatusNotFound
	}
	return info.Status
}

// GetInfo returns a copy of the full tracked state for path.
func (s *Store) GetInfo(path string) (models.CodebaseInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.entries[path]
	return info, ok
}

// GetAll returns a copy of every tracked codebase's state.
func (s *Store) GetAll() map[string]models.CodebaseInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.CodebaseInfo, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// GetIndexed returns the paths currently in indexed or sync_completed state.
func (s *Store) GetIndexed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for path, info := range s.entries {
		if info.Status == models.StatusIndexed || info.Status == models.StatusSyncCompleted {
			out = append(out, path)
		}
	}
	return out
}

// GetIndexing returns the paths currently mid-index.
func (s *Store) GetIndexing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for path, info := range s.entries {
		if info.Status == models.StatusIndexing {
			out = append(out, path)
		}
	}
	return out
}

func (s *Store) mutate(path string, fn func(info *models.CodebaseInfo)) error {
	s.mu.Lock()
	info := s.entries[path]
	info.Path = path
	fn(&info)
	info.LastUpdated = time.Now().UTC()
	s.entries[path] = info
	err := s.save()
	s.mu.Unlock()
	return err
}

// SetIndexing marks a codebase as mid-index at the given percentage.
func (s *Store) SetIndexing(path string, percentage int) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.Status = models.StatusIndexing
		info.IndexingPercentage = percentage
	})
}

// SetIndexed marks a codebase fully indexed with the given fingerprint.
func (s *Store) SetIndexed(path string, stats models.SyncCounters, fp models.IndexFingerprint, source models.FingerprintSource) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.Status = models.StatusIndexed
		info.IndexedFiles = stats.Added
		info.IndexStatusDetail = "completed"
		fpCopy := fp
		info.IndexFingerprint = &fpCopy
		info.FingerprintSource = source
		info.LastSyncAt = time.Now().UTC()
	})
}

// SetIndexFailed marks a codebase as failed, optionally recording how far it got.
func (s *Store) SetIndexFailed(path, errorMessage string, lastPct *int) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.Status = models.StatusIndexFailed
		info.ErrorMessage = errorMessage
		info.LastAttemptedPercentage = lastPct
	})
}

// SetSyncCompleted records a successful incremental sync.
func (s *Store) SetSyncCompleted(path string, delta models.SyncCounters, fp models.IndexFingerprint, source models.FingerprintSource) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.Status = models.StatusSyncCompleted
		info.LastDelta = delta
		fpCopy := fp
		info.IndexFingerprint = &fpCopy
		info.FingerprintSource = source
		info.LastSyncAt = time.Now().UTC()
	})
}

// SetRequiresReindex transitions a codebase into the terminal requires_reindex state.
func (s *Store) SetRequiresReindex(path string, reason models.ReindexReason, fp *models.IndexFingerprint, message string) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.Status = models.StatusRequiresReindex
		info.ReindexReason = reason
		info.Message = message
		if fp != nil {
			info.IndexFingerprint = fp
		}
	})
}

// SetIndexManifest records the full set of relative paths the most recent
// successful run indexed, used for delete-detection on subsequent syncs.
func (s *Store) SetIndexManifest(path string, relativePaths []string) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.IndexManifest = relativePaths
	})
}

// SetIgnoreRulesVersion bumps the stored ignore-rule generation counter.
func (s *Store) SetIgnoreRulesVersion(path string, n int) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.IgnoreRulesVersion = n
	})
}

// SetIgnoreControlSignature stores the control-file signature a sync last
// reconciled against.
func (s *Store) SetIgnoreControlSignature(path, sig string) error {
	return s.mutate(path, func(info *models.CodebaseInfo) {
		info.IgnoreControlSignature = sig
	})
}

// RemoveCompletely deletes all tracked state for a codebase path.
func (s *Store) RemoveCompletely(path string) error {
	s.mu.Lock()
	delete(s.entries, path)
	err := s.save()
	s.mu.Unlock()
	return err
}

// EnsureFingerprintCompatibilityOnAccess is the fingerprint gate: it compares
// a tracked codebase's stored fingerprint against the runtime fingerprint and
// transitions it to requires_reindex on mismatch.
func (s *Store) EnsureFingerprintCompatibilityOnAccess(path string) FingerprintGateResult {
	s.mu.Lock()
	info, ok := s.entries[path]
	if !ok {
		s.mu.Unlock()
		return FingerprintGateResult{Allowed: true}
	}
	if info.Status == models.StatusRequiresReindex {
		s.mu.Unlock()
		return FingerprintGateResult{Allowed: false, Message: info.Message}
	}
	if info.IndexFingerprint != nil && !info.IndexFingerprint.Equal(s.runtime) {
		info.Status = models.StatusRequiresReindex
		info.ReindexReason = models.ReindexFingerprintMismatch
		info.Message = "embedding or vector-store configuration changed since this codebase was indexed"
		info.LastUpdated = time.Now().UTC()
		s.entries[path] = info
		err := s.save()
		s.mu.Unlock()
		if err != nil {
			slog.Error("failed to persist fingerprint gate transition", "path", path, "error", err)
		}
		return FingerprintGateResult{Allowed: false, Changed: true, Message: info.Message}
	}
	s.mu.Unlock()
	return FingerprintGateResult{Allowed: true}
}
