package mcp

import (
	"context"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// readiness is the outcome of gating a tool call against a codebase's
// snapshot state: either the caller may proceed (Ready), or a terminal
// envelope has already been produced for the tool to return verbatim.
type readiness struct {
	Ready    bool
	Envelope envelope
	Info     models.CodebaseInfo
}

// checkReadiness implements the stale-local and fingerprint-gate detection
// from the SnapshotStore component description: not_indexed, not_ready, and
// requires_reindex all short-circuit here before a tool touches the index.
func (s *Server) checkReadiness(ctx context.Context, path string) readiness {
	info, ok := s.snapshot.GetInfo(path)
	if !ok {
		return readiness{Envelope: notIndexedEnvelope(path, "")}
	}

	switch info.Status {
	case models.StatusIndexing:
		return readiness{Envelope: notReadyEnvelope(path, info.IndexingPercentage)}

	case models.StatusRequiresReindex:
		return readiness{Envelope: requiresReindexEnvelope(path, info, s.indexer.Fingerprint(), info.ReindexReason)}

	case models.StatusIndexFailed:
		return readiness{Envelope: notIndexedEnvelope(path, "")}

	case models.StatusNotFound:
		return readiness{Envelope: notIndexedEnvelope(path, "")}
	}

	// indexed / sync_completed: probe the completion marker before trusting
	// the persisted status.
	gate := s.snapshot.EnsureFingerprintCompatibilityOnAccess(path)
	if !gate.Allowed {
		info, _ = s.snapshot.GetInfo(path)
		return readiness{Envelope: requiresReindexEnvelope(path, info, s.indexer.Fingerprint(), models.ReindexFingerprintMismatch)}
	}

	marker, err := s.indexer.GetIndexCompletionMarker(ctx, path)
	if err != nil {
		// Transient probe failure: keep the current status rather than
		// blocking the call, per the probe_failed branch of stale-local
		// detection.
		return readiness{Ready: true, Info: info}
	}
	if marker == nil || !marker.Valid() {
		return readiness{Envelope: notIndexedEnvelope(path, "missing_marker_doc")}
	}
	if !marker.Fingerprint.Equal(s.indexer.Fingerprint()) {
		_ = s.snapshot.SetRequiresReindex(path, models.ReindexFingerprintMismatch, &marker.Fingerprint, "completion marker fingerprint mismatch")
		info, _ = s.snapshot.GetInfo(path)
		return readiness{Envelope: requiresReindexEnvelope(path, info, s.indexer.Fingerprint(), models.ReindexFingerprintMismatch)}
	}

	return readiness{Ready: true, Info: info}
}
