// Package store provides crash-safe persistence for upload sessions and
// parts, with atomic part-claiming and observation streams (§4.1).
package store

import (
	"context"
	"time"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Store is the durable store contract (§4.1). Implementations must make
// writes transactional at session-or-part granularity and must make
// ClaimNextPendingPart atomic with respect to concurrent callers on the same
// session (§3 invariant 6).
type Store interface {
	InsertSession(ctx context.Context, session *uploadmodel.UploadSession) error
	InsertParts(ctx context.Context, parts []uploadmodel.UploadPart) error

	GetSession(ctx context.Context, sessionID string) (*uploadmodel.UploadSession, error)
	GetSessionWithParts(ctx context.Context, sessionID string) (*uploadmodel.SessionWithParts, error)

	FindActiveSessionForPath(ctx context.Context, localPath string) (*uploadmodel.UploadSession, error)
	GetRecoverableSessions(ctx context.Context) ([]uploadmodel.UploadSession, error)
	GetActiveSessions(ctx context.Context) ([]uploadmodel.UploadSession, error)
	GetConstraintViolatedSessions(ctx context.Context) ([]uploadmodel.UploadSession, error)

	UpdateSessionStatus(ctx context.Context, sessionID string, status uploadmodel.SessionStatus, ts time.Time) error
	UpdateSessionStatusWithError(ctx context.Context, sessionID string, status uploadmodel.SessionStatus, message string, ts time.Time) error

	UpdateSessionForConstraintViolation(ctx context.Context, sessionID, reason string, stopCode uploadmodel.StopReasonCode, ts time.Time) error
	ClearConstraintViolation(ctx context.Context, sessionID string, ts time.Time) error
	UpdateSessionConstraints(ctx context.Context, sessionID string, constraints uploadmodel.ConstraintSet, ts time.Time) error

	// ClaimNextPendingPart atomically selects one Pending part for the
	// session ordered by ascending part_number, marks it Uploading, and
	// returns it. It returns (nil, nil) when no Pending part remains.
	ClaimNextPendingPart(ctx context.Context, sessionID string) (*uploadmodel.UploadPart, error)

	UpdatePartStatus(ctx context.Context, sessionID string, partNumber int, status uploadmodel.PartStatus, etag *string, uploadedBytes uint64, ts time.Time) error
	ResetUploadingParts(ctx context.Context, sessionID string) error
	ResetFailedParts(ctx context.Context, sessionID string) error

	GetUploadedParts(ctx context.Context, sessionID string) ([]uploadmodel.UploadPart, error)
	GetUploadedPartsCount(ctx context.Context, sessionID string) (int, error)
	GetTotalUploadedBytes(ctx context.Context, sessionID string) (uint64, error)

	DeleteOldCompletedSessions(ctx context.Context, before time.Time) (int64, error)
}
