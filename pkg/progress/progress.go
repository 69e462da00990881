// Package progress implements the Progress Projection (§4.8): a pure
// derivation of a human-facing progress snapshot from a (session, parts)
// read, with no state of its own.
package progress

import (
	"context"

	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Snapshot is the projected progress of one session at the instant it was
// read.
type Snapshot struct {
	SessionID         string
	Status            uploadmodel.SessionStatus
	UploadedParts     int
	TotalParts        int
	UploadedBytes     uint64
	TotalSize         uint64
	CurrentPartNumber int // 0 when no part is currently Uploading
	OverallProgress   float64
	ErrorMessage      string
}

// Project derives a Snapshot from a session-with-parts read. It performs no
// I/O itself.
func Project(withParts *uploadmodel.SessionWithParts) Snapshot {
	session := withParts.Session

	snap := Snapshot{
		SessionID:  session.SessionID,
		Status:     session.Status,
		TotalParts: session.TotalParts,
		TotalSize:  session.TotalSize,
	}
	if session.ErrorMessage != nil {
		snap.ErrorMessage = *session.ErrorMessage
	}

	for _, p := range withParts.Parts {
		switch p.Status {
		case uploadmodel.PartUploaded:
			snap.UploadedParts++
			snap.UploadedBytes += p.PartSize
		case uploadmodel.PartUploading:
			if snap.CurrentPartNumber == 0 || p.PartNumber < snap.CurrentPartNumber {
				snap.CurrentPartNumber = p.PartNumber
			}
		}
	}

	if session.TotalSize > 0 {
		snap.OverallProgress = float64(snap.UploadedBytes) / float64(session.TotalSize) * 100
	}

	return snap
}

// Observe reads the current snapshot for one session. Callers that want a
// live sequence of snapshots (observe_progress, §6) poll this on an
// interval of their choosing; the projection itself stays a pure function
// of what the store holds at read time.
func Observe(ctx context.Context, s store.Store, sessionID string) (Snapshot, error) {
	withParts, err := s.GetSessionWithParts(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return Project(withParts), nil
}

// ObserveAll reads progress snapshots for every currently non-terminal
// session (observe_all, §6).
func ObserveAll(ctx context.Context, s store.Store) ([]Snapshot, error) {
	sessions, err := s.GetActiveSessions(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, session := range sessions {
		withParts, err := s.GetSessionWithParts(ctx, session.SessionID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, Project(withParts))
	}
	return snapshots, nil
}
