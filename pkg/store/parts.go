package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// ClaimNextPendingPart atomically selects the lowest-numbered Pending part
// for a session and marks it Uploading. It runs inside a transaction as a
// select-then-conditional-UPDATE loop: it reads the lowest-numbered
// candidate, then updates it gated on status still being Pending. If
// RowsAffected is 0, another caller won the race for that row first, so the
// loop re-selects the next remaining candidate within the same transaction
// rather than returning a false claim. Under PostgreSQL the transaction
// isolation level serializes concurrent UPDATEs against the same row, and
// under SQLite the whole write transaction is serialized, so two concurrent
// callers can never walk away with the same part (§3 invariant 6). It
// returns (nil, nil) when no Pending part remains.
func (s *GORMStore) ClaimNextPendingPart(ctx context.Context, sessionID string) (*uploadmodel.UploadPart, error) {
	var claimed *partModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			var candidate partModel
			err := tx.Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartPending)).
				Order("part_number ASC").
				Limit(1).
				First(&candidate).Error
			if err != nil {
				if errorsIsRecordNotFound(err) {
					return nil
				}
				return err
			}

			res := tx.Model(&partModel{}).
				Where("part_id = ? AND status = ?", candidate.PartID, string(uploadmodel.PartPending)).
				Updates(map[string]any{
					"status":     string(uploadmodel.PartUploading),
					"updated_at": timeNow(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Lost the race for this candidate; loop to re-select the
				// next remaining one within the same transaction.
				continue
			}

			candidate.Status = string(uploadmodel.PartUploading)
			claimed = &candidate
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	part := fromPartModel(claimed)
	return &part, nil
}

// UpdatePartStatus records the outcome of a part upload attempt.
func (s *GORMStore) UpdatePartStatus(ctx context.Context, sessionID string, partNumber int, status uploadmodel.PartStatus, etag *string, uploadedBytes uint64, ts time.Time) error {
	updates := map[string]any{
		"status":         string(status),
		"uploaded_bytes": uploadedBytes,
		"updated_at":     ts,
	}
	if etag != nil {
		updates["e_tag"] = *etag
	}
	if status == uploadmodel.PartFailed {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	res := s.db.WithContext(ctx).Model(&partModel{}).
		Where("part_id = ?", uploadmodel.PartID(sessionID, partNumber)).
		Updates(updates)
	return checkUpdateResult(res, sessionID)
}

// ResetUploadingParts returns every Uploading part for a session back to
// Pending, used on cancellation and on crash recovery (§4.7).
func (s *GORMStore) ResetUploadingParts(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Model(&partModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartUploading)).
		Updates(map[string]any{
			"status":     string(uploadmodel.PartPending),
			"updated_at": timeNow(),
		}).Error
}

// ResetFailedParts returns every Failed part for a session back to Pending,
// used when a session is manually resumed after exhausting retries.
func (s *GORMStore) ResetFailedParts(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Model(&partModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartFailed)).
		Updates(map[string]any{
			"status":     string(uploadmodel.PartPending),
			"updated_at": timeNow(),
		}).Error
}

// GetUploadedParts returns every Uploaded part for a session, ordered by
// part number, for the complete operation's manifest (§4.3).
func (s *GORMStore) GetUploadedParts(ctx context.Context, sessionID string) ([]uploadmodel.UploadPart, error) {
	var rows []partModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartUploaded)).
		Order("part_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	parts := make([]uploadmodel.UploadPart, len(rows))
	for i := range rows {
		parts[i] = fromPartModel(&rows[i])
	}
	return parts, nil
}

// GetUploadedPartsCount returns the number of Uploaded parts for a session,
// for progress projection.
func (s *GORMStore) GetUploadedPartsCount(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&partModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartUploaded)).
		Count(&count).Error
	return int(count), err
}

// GetTotalUploadedBytes sums part_size over Uploaded parts, for progress
// projection.
func (s *GORMStore) GetTotalUploadedBytes(ctx context.Context, sessionID string) (uint64, error) {
	var total uint64
	row := s.db.WithContext(ctx).Model(&partModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(uploadmodel.PartUploaded)).
		Select("COALESCE(SUM(part_size), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func errorsIsRecordNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}

func timeNow() time.Time {
	return time.Now()
}
