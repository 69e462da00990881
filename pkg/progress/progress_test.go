package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

func TestProjectComputesOverallProgressAndCurrentPart(t *testing.T) {
	etag1, etag2 := "e1", "e2"
	withParts := &uploadmodel.SessionWithParts{
		Session: uploadmodel.UploadSession{
			SessionID:  "sess-1",
			Status:     uploadmodel.SessionInProgress,
			TotalSize:  30,
			TotalParts: 3,
		},
		Parts: []uploadmodel.UploadPart{
			{PartNumber: 1, PartSize: 10, Status: uploadmodel.PartUploaded, ETag: &etag1},
			{PartNumber: 2, PartSize: 10, Status: uploadmodel.PartUploaded, ETag: &etag2},
			{PartNumber: 3, PartSize: 10, Status: uploadmodel.PartUploading},
		},
	}

	snap := Project(withParts)
	assert.Equal(t, 2, snap.UploadedParts)
	assert.Equal(t, uint64(20), snap.UploadedBytes)
	assert.Equal(t, 3, snap.CurrentPartNumber)
	assert.InDelta(t, 66.67, snap.OverallProgress, 0.01)
}

func TestProjectHandlesZeroTotalSize(t *testing.T) {
	withParts := &uploadmodel.SessionWithParts{
		Session: uploadmodel.UploadSession{SessionID: "sess-1", TotalSize: 0},
	}
	snap := Project(withParts)
	assert.Equal(t, float64(0), snap.OverallProgress)
}

func TestObserveAndObserveAll(t *testing.T) {
	s, err := store.New(&store.Config{Type: store.DatabaseTypeSQLite, SQLite: store.SQLiteConfig{Path: ":memory:"}})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertSession(ctx, &uploadmodel.UploadSession{
		SessionID:   "sess-1",
		UploadID:    "U",
		LocalPath:   "/tmp/a",
		TotalSize:   10,
		ChunkSize:   10,
		TotalParts:  1,
		Status:      uploadmodel.SessionInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: uploadmodel.DefaultConstraintSet(),
	}))
	require.NoError(t, s.InsertParts(ctx, []uploadmodel.UploadPart{
		{SessionID: "sess-1", PartNumber: 1, StartByte: 0, EndByte: 10, PartSize: 10, Status: uploadmodel.PartPending, UpdatedAt: now},
	}))

	snap, err := Observe(ctx, s, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", snap.SessionID)

	all, err := ObserveAll(ctx, s)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sess-1", all[0].SessionID)
}
