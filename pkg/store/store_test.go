package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return s
}

func testSession(sessionID, localPath string, totalParts int) *uploadmodel.UploadSession {
	now := time.Now()
	return &uploadmodel.UploadSession{
		SessionID:   sessionID,
		UploadID:    "upload-" + sessionID,
		LocalPath:   localPath,
		RemotePath:  "objects/" + sessionID,
		FileName:    "file.bin",
		ContentType: "application/octet-stream",
		TotalSize:   uint64(totalParts) * 5 * 1024 * 1024,
		ChunkSize:   5 * 1024 * 1024,
		TotalParts:  totalParts,
		Status:      uploadmodel.SessionPending,
		Endpoints: uploadmodel.Endpoints{
			InitiateURL:    "https://backend.example/initiate",
			PresignPartURL: "https://backend.example/presign",
			CompleteURL:    "https://backend.example/complete",
			AbortURL:       "https://backend.example/abort",
		},
		MaxRetries:  5,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: uploadmodel.DefaultConstraintSet(),
	}
}

func testParts(sessionID string, totalParts int) []uploadmodel.UploadPart {
	parts := make([]uploadmodel.UploadPart, totalParts)
	for i := range parts {
		parts[i] = uploadmodel.UploadPart{
			SessionID:  sessionID,
			PartNumber: i + 1,
			StartByte:  uint64(i) * 5 * 1024 * 1024,
			EndByte:    uint64(i+1) * 5 * 1024 * 1024,
			PartSize:   5 * 1024 * 1024,
			Status:     uploadmodel.PartPending,
			UpdatedAt:  time.Now(),
		}
	}
	return parts
}

func TestInsertAndGetSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 4)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", 4)))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.LocalPath, got.LocalPath)
	assert.Equal(t, uploadmodel.SessionPending, got.Status)

	withParts, err := s.GetSessionWithParts(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, withParts.Parts, 4)
}

func TestGetSessionNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, uploadmodel.ErrNotFound)
}

func TestFindActiveSessionForPath(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 2)
	require.NoError(t, s.InsertSession(ctx, session))

	active, err := s.FindActiveSessionForPath(ctx, "/tmp/file.bin")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", active.SessionID)

	require.NoError(t, s.UpdateSessionStatus(ctx, "sess-1", uploadmodel.SessionCompleted, time.Now()))
	_, err = s.FindActiveSessionForPath(ctx, "/tmp/file.bin")
	assert.ErrorIs(t, err, uploadmodel.ErrNotFound)
}

func TestClaimNextPendingPartOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 3)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", 3)))

	p1, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.Equal(t, 1, p1.PartNumber)
	assert.Equal(t, uploadmodel.PartUploading, p1.Status)

	p2, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, 2, p2.PartNumber)

	p3, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, p3)
	assert.Equal(t, 3, p3.PartNumber)

	p4, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, p4)
}

func TestClaimNextPendingPartConcurrentNeverDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const totalParts = 20
	session := testSession("sess-1", "/tmp/file.bin", totalParts)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", totalParts)))

	var (
		mu      sync.Mutex
		claimed = make(map[int]int)
		wg      sync.WaitGroup
	)

	worker := func() {
		defer wg.Done()
		for {
			part, err := s.ClaimNextPendingPart(ctx, "sess-1")
			require.NoError(t, err)
			if part == nil {
				return
			}
			mu.Lock()
			claimed[part.PartNumber]++
			mu.Unlock()
		}
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go worker()
	}
	wg.Wait()

	assert.Len(t, claimed, totalParts, "every part should be claimed exactly once")
	for partNumber, count := range claimed {
		assert.Equal(t, 1, count, "part %d claimed %d times", partNumber, count)
	}
}

func TestUpdatePartStatusAndTotals(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 2)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", 2)))

	part, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, part)

	etag := "\"abc123\""
	require.NoError(t, s.UpdatePartStatus(ctx, "sess-1", part.PartNumber, uploadmodel.PartUploaded, &etag, part.PartSize, time.Now()))

	count, err := s.GetUploadedPartsCount(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	total, err := s.GetTotalUploadedBytes(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, part.PartSize, total)
}

func TestResetUploadingParts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 2)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", 2)))

	_, err := s.ClaimNextPendingPart(ctx, "sess-1")
	require.NoError(t, err)

	require.NoError(t, s.ResetUploadingParts(ctx, "sess-1"))

	withParts, err := s.GetSessionWithParts(ctx, "sess-1")
	require.NoError(t, err)
	for _, p := range withParts.Parts {
		assert.Equal(t, uploadmodel.PartPending, p.Status)
	}
}

func TestConstraintViolationLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 1)
	session.Status = uploadmodel.SessionInProgress
	require.NoError(t, s.InsertSession(ctx, session))

	require.NoError(t, s.UpdateSessionForConstraintViolation(ctx, "sess-1", "network constraint not satisfied", uploadmodel.StopReasonConnectivity, time.Now()))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionPausedConstraintViolation, got.Status)
	require.NotNil(t, got.PauseReason)
	require.NotNil(t, got.StopReasonCode)
	assert.Equal(t, uploadmodel.StopReasonConnectivity, *got.StopReasonCode)

	require.NoError(t, s.ClearConstraintViolation(ctx, "sess-1", time.Now()))
	got, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionInProgress, got.Status)
	assert.Nil(t, got.StopReasonCode)
}

func TestDeleteOldCompletedSessionsCascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "/tmp/file.bin", 2)
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, testParts("sess-1", 2)))
	require.NoError(t, s.UpdateSessionStatus(ctx, "sess-1", uploadmodel.SessionCompleted, time.Now().Add(-48*time.Hour)))

	deleted, err := s.DeleteOldCompletedSessions(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, uploadmodel.ErrNotFound)

	var remaining int64
	require.NoError(t, s.DB().Model(&partModel{}).Where("session_id = ?", "sess-1").Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)
}

func TestGetRecoverableAndActiveSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, status := range []uploadmodel.SessionStatus{
		uploadmodel.SessionPending,
		uploadmodel.SessionInProgress,
		uploadmodel.SessionCompleted,
		uploadmodel.SessionAborted,
	} {
		sessionID := fmt.Sprintf("sess-%d", i)
		session := testSession(sessionID, fmt.Sprintf("/tmp/file-%d.bin", i), 1)
		session.Status = status
		require.NoError(t, s.InsertSession(ctx, session))
	}

	recoverable, err := s.GetRecoverableSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, recoverable, 2)

	active, err := s.GetActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
