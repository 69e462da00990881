package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// InsertSession persists a new session row. Callers are responsible for the
// application-level check that no other active session exists for the same
// local path (§3 invariant 5); the store does not enforce it at the schema
// level.
func (s *GORMStore) InsertSession(ctx context.Context, session *uploadmodel.UploadSession) error {
	m := toSessionModel(session)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueConstraintError(err) {
			return uploadmodel.ErrInvalidState
		}
		return err
	}
	return nil
}

// InsertParts persists the initial Pending part rows for a session in one
// transaction.
func (s *GORMStore) InsertParts(ctx context.Context, parts []uploadmodel.UploadPart) error {
	if len(parts) == 0 {
		return nil
	}
	rows := make([]*partModel, len(parts))
	for i, p := range parts {
		rows[i] = toPartModel(p)
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

// GetSession loads a session by ID.
func (s *GORMStore) GetSession(ctx context.Context, sessionID string) (*uploadmodel.UploadSession, error) {
	var m sessionModel
	err := s.db.WithContext(ctx).First(&m, "session_id = ?", sessionID).Error
	if err != nil {
		return nil, convertNotFoundError(err, uploadmodel.ErrNotFound)
	}
	session := fromSessionModel(&m)
	return &session, nil
}

// GetSessionWithParts loads a session plus its full part list, ordered by
// part number.
func (s *GORMStore) GetSessionWithParts(ctx context.Context, sessionID string) (*uploadmodel.SessionWithParts, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var rows []partModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("part_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	parts := make([]uploadmodel.UploadPart, len(rows))
	for i := range rows {
		parts[i] = fromPartModel(&rows[i])
	}
	return &uploadmodel.SessionWithParts{Session: *session, Parts: parts}, nil
}

// FindActiveSessionForPath returns the session for localPath whose status is
// not terminal, or ErrNotFound if none exists.
func (s *GORMStore) FindActiveSessionForPath(ctx context.Context, localPath string) (*uploadmodel.UploadSession, error) {
	var m sessionModel
	err := s.db.WithContext(ctx).
		Where("local_path = ? AND status NOT IN ?", localPath, terminalStatuses()).
		First(&m).Error
	if err != nil {
		return nil, convertNotFoundError(err, uploadmodel.ErrNotFound)
	}
	session := fromSessionModel(&m)
	return &session, nil
}

// GetRecoverableSessions returns every session whose status indicates it can
// be resumed after a restart (§4.7).
func (s *GORMStore) GetRecoverableSessions(ctx context.Context) ([]uploadmodel.UploadSession, error) {
	return s.querySessionsByStatus(ctx, recoverableStatuses())
}

// GetActiveSessions returns every session that is not in a terminal state.
func (s *GORMStore) GetActiveSessions(ctx context.Context) ([]uploadmodel.UploadSession, error) {
	var rows []sessionModel
	if err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses()).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromSessionModels(rows), nil
}

// GetConstraintViolatedSessions returns every session currently paused on a
// constraint violation (get_constraint_violated, §4.6/§6).
func (s *GORMStore) GetConstraintViolatedSessions(ctx context.Context) ([]uploadmodel.UploadSession, error) {
	return s.querySessionsByStatus(ctx, []string{string(uploadmodel.SessionPausedConstraintViolation)})
}

func (s *GORMStore) querySessionsByStatus(ctx context.Context, statuses []string) ([]uploadmodel.UploadSession, error) {
	var rows []sessionModel
	if err := s.db.WithContext(ctx).Where("status IN ?", statuses).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromSessionModels(rows), nil
}

func fromSessionModels(rows []sessionModel) []uploadmodel.UploadSession {
	sessions := make([]uploadmodel.UploadSession, len(rows))
	for i := range rows {
		sessions[i] = fromSessionModel(&rows[i])
	}
	return sessions
}

func terminalStatuses() []string {
	return []string{
		string(uploadmodel.SessionCompleted),
		string(uploadmodel.SessionAborted),
		string(uploadmodel.SessionFailed),
	}
}

// retentionEligibleStatuses is narrower than terminalStatuses: Failed is
// terminal for path-conflict and active-session purposes, but it remains
// resumable (Resume accepts it), so retention cleanup must not delete it.
func retentionEligibleStatuses() []string {
	return []string{
		string(uploadmodel.SessionCompleted),
		string(uploadmodel.SessionAborted),
	}
}

func recoverableStatuses() []string {
	return []string{
		string(uploadmodel.SessionPending),
		string(uploadmodel.SessionInProgress),
		string(uploadmodel.SessionPaused),
		string(uploadmodel.SessionPausedConstraintViolation),
	}
}

// UpdateSessionStatus transitions a session's status.
func (s *GORMStore) UpdateSessionStatus(ctx context.Context, sessionID string, status uploadmodel.SessionStatus, ts time.Time) error {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"status": string(status), "updated_at": ts})
	return checkUpdateResult(res, sessionID)
}

// UpdateSessionStatusWithError transitions a session's status and records an
// error message (used for SessionFailed).
func (s *GORMStore) UpdateSessionStatusWithError(ctx context.Context, sessionID string, status uploadmodel.SessionStatus, message string, ts time.Time) error {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": message,
			"updated_at":    ts,
		})
	return checkUpdateResult(res, sessionID)
}

// UpdateSessionForConstraintViolation transitions a session to
// PausedConstraintViolation and records why, for the auto-resume path (§4.6).
func (s *GORMStore) UpdateSessionForConstraintViolation(ctx context.Context, sessionID, reason string, stopCode uploadmodel.StopReasonCode, ts time.Time) error {
	code := int(stopCode)
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":                 string(uploadmodel.SessionPausedConstraintViolation),
			"pause_reason":           reason,
			"constraint_violated_at": ts,
			"stop_reason_code":       code,
			"updated_at":             ts,
		})
	return checkUpdateResult(res, sessionID)
}

// ClearConstraintViolation clears the constraint-violation bookkeeping on
// resume and returns the session to InProgress.
func (s *GORMStore) ClearConstraintViolation(ctx context.Context, sessionID string, ts time.Time) error {
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":                 string(uploadmodel.SessionInProgress),
			"pause_reason":           "",
			"constraint_violated_at": nil,
			"stop_reason_code":       nil,
			"updated_at":             ts,
		})
	return checkUpdateResult(res, sessionID)
}

// UpdateSessionConstraints overwrites the session's constraint set
// (update_constraints operation, §4.6).
func (s *GORMStore) UpdateSessionConstraints(ctx context.Context, sessionID string, constraints uploadmodel.ConstraintSet, ts time.Time) error {
	blob, err := marshalConstraints(constraints)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"constraints_blob": blob, "updated_at": ts})
	return checkUpdateResult(res, sessionID)
}

// DeleteOldCompletedSessions removes Completed and Aborted sessions (and
// their parts, deleted explicitly in the same transaction) last updated
// before the cutoff, for retention
// cleanup. Failed sessions are excluded: they are resumable, so garbage
// collecting them would delete work a caller could still recover.
func (s *GORMStore) DeleteOldCompletedSessions(ctx context.Context, before time.Time) (int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&sessionModel{}).
		Where("status IN ? AND updated_at < ?", retentionEligibleStatuses(), before).
		Pluck("session_id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&partModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("session_id IN ?", ids).Delete(&sessionModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func checkUpdateResult(res *gorm.DB, sessionID string) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return uploadmodel.ErrNotFound
	}
	return nil
}
