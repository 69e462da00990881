// Package recovery implements the startup Recovery procedure (§4.7): scan
// every recoverable session left behind by a crash, reset its in-flight
// parts, and normalize it to a status that requires an explicit resume.
package recovery

import (
	"context"
	"os"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Resumer is the subset of Engine that Recover needs. It is satisfied by
// *engine.Engine.
type Resumer interface {
	Resume(ctx context.Context, sessionID string) error
}

// Stats summarizes one Recover call, in the manner of this codebase's
// existing crash-recovery reporting: a caller-facing result (the session_id
// list) plus an Info-level log of what recovery actually did.
type Stats struct {
	SessionsScanned int
	PartsReset      int
	SessionsFailed  int // missing source file
}

// Recover prepares every recoverable session for a caller-driven resume and
// returns the session_ids it successfully prepared.
func Recover(ctx context.Context, s store.Store, resumer Resumer) ([]string, Stats, error) {
	sessions, err := s.GetRecoverableSessions(ctx)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{SessionsScanned: len(sessions)}
	var recovered []string

	for _, session := range sessions {
		if err := resetUploadingParts(ctx, s, session.SessionID, &stats); err != nil {
			logger.WarnCtx(ctx, "recovery: failed to reset uploading parts", logger.SessionID(session.SessionID), "error", err)
			continue
		}

		if _, statErr := os.Stat(session.LocalPath); statErr != nil {
			stats.SessionsFailed++
			if err := s.UpdateSessionStatusWithError(ctx, session.SessionID, uploadmodel.SessionFailed, "source file no longer exists", time.Now()); err != nil {
				logger.WarnCtx(ctx, "recovery: failed to mark session failed", logger.SessionID(session.SessionID), "error", err)
			}
			continue
		}

		if err := normalizeStatus(ctx, s, session); err != nil {
			logger.WarnCtx(ctx, "recovery: failed to normalize session status", logger.SessionID(session.SessionID), "error", err)
			continue
		}

		if err := resumer.Resume(ctx, session.SessionID); err != nil {
			logger.WarnCtx(ctx, "recovery: resume failed", logger.SessionID(session.SessionID), "error", err)
			continue
		}

		recovered = append(recovered, session.SessionID)
	}

	logger.InfoCtx(ctx, "recovery complete",
		"sessions_scanned", stats.SessionsScanned,
		"sessions_recovered", len(recovered),
		"sessions_failed", stats.SessionsFailed)

	return recovered, stats, nil
}

func resetUploadingParts(ctx context.Context, s store.Store, sessionID string, stats *Stats) error {
	withParts, err := s.GetSessionWithParts(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range withParts.Parts {
		if p.Status == uploadmodel.PartUploading {
			stats.PartsReset++
		}
	}
	return s.ResetUploadingParts(ctx, sessionID)
}

// normalizeStatus puts a crash-surviving session into a status that
// requires an explicit resume: {InProgress, Pending} collapse to Paused.
// A PausedConstraintViolation session is left as-is; Resume itself clears
// the violation fields, since manual recovery overrides auto-resume.
func normalizeStatus(ctx context.Context, s store.Store, session uploadmodel.UploadSession) error {
	switch session.Status {
	case uploadmodel.SessionInProgress, uploadmodel.SessionPending:
		return s.UpdateSessionStatus(ctx, session.SessionID, uploadmodel.SessionPaused, time.Now())
	default:
		return nil
	}
}
