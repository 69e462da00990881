package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uploadkit/engine/pkg/backendclient"
	"github.com/uploadkit/engine/pkg/retry"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return s
}

func TestExecuteHappyPath(t *testing.T) {
	data := []byte("0123456789abcdef") // 16 bytes, split into two 8-byte parts
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*.bin")
	require.NoError(t, err)
	_, err = tmp.Write(data)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	var putCalls int
	objectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		putCalls++
		w.Header().Set("ETag", "\"etag-ok\"")
		w.WriteHeader(http.StatusOK)
	}))
	defer objectSrv.Close()

	presignHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backendclient.PresignPartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.PresignPartResponse{
			PresignedURL: objectSrv.URL,
			PartNumber:   req.PartNumber,
		})
	})
	presignSrv := httptest.NewServer(presignHandler)
	defer presignSrv.Close()

	s := newTestStore(t)
	ctx := context.Background()

	session := &uploadmodel.UploadSession{
		SessionID:   "sess-1",
		UploadID:    "upload-1",
		LocalPath:   tmp.Name(),
		RemotePath:  "objects/sess-1",
		ContentType: "application/octet-stream",
		TotalSize:   uint64(len(data)),
		ChunkSize:   8,
		TotalParts:  2,
		Status:      uploadmodel.SessionInProgress,
		Endpoints: uploadmodel.Endpoints{
			PresignPartURL: presignSrv.URL,
		},
		MaxRetries:  2,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Constraints: uploadmodel.DefaultConstraintSet(),
	}
	require.NoError(t, s.InsertSession(ctx, session))
	require.NoError(t, s.InsertParts(ctx, []uploadmodel.UploadPart{
		{SessionID: "sess-1", PartNumber: 1, StartByte: 0, EndByte: 8, PartSize: 8, Status: uploadmodel.PartPending, UpdatedAt: time.Now()},
		{SessionID: "sess-1", PartNumber: 2, StartByte: 8, EndByte: 16, PartSize: 8, Status: uploadmodel.PartPending, UpdatedAt: time.Now()},
	}))

	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	sched := New(s, backend, retry.New(10*time.Millisecond, false, false), 2)

	result := sched.Execute(ctx, session)
	assert.True(t, result.Completed)
	assert.NoError(t, result.Err)
	assert.Equal(t, 2, putCalls)

	uploaded, err := s.GetUploadedParts(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, uploaded, 2)
	for _, p := range uploaded {
		require.NotNil(t, p.ETag)
		assert.Equal(t, "\"etag-ok\"", *p.ETag)
	}
}

func TestExecuteNonRecoverableFailureStopsSiblings(t *testing.T) {
	data := make([]byte, 24)
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*.bin")
	require.NoError(t, err)
	_, err = tmp.Write(data)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	objectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("access denied"))
	}))
	defer objectSrv.Close()

	presignSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backendclient.PresignPartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.PresignPartResponse{
			PresignedURL: objectSrv.URL,
			PartNumber:   req.PartNumber,
		})
	}))
	defer presignSrv.Close()

	s := newTestStore(t)
	ctx := context.Background()

	session := &uploadmodel.UploadSession{
		SessionID:   "sess-1",
		UploadID:    "upload-1",
		LocalPath:   tmp.Name(),
		RemotePath:  "objects/sess-1",
		TotalSize:   24,
		ChunkSize:   8,
		TotalParts:  3,
		Status:      uploadmodel.SessionInProgress,
		Endpoints:   uploadmodel.Endpoints{PresignPartURL: presignSrv.URL},
		MaxRetries:  2,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Constraints: uploadmodel.DefaultConstraintSet(),
	}
	require.NoError(t, s.InsertSession(ctx, session))
	parts := make([]uploadmodel.UploadPart, 3)
	for i := range parts {
		parts[i] = uploadmodel.UploadPart{SessionID: "sess-1", PartNumber: i + 1, StartByte: uint64(i * 8), EndByte: uint64((i + 1) * 8), PartSize: 8, Status: uploadmodel.PartPending, UpdatedAt: time.Now()}
	}
	require.NoError(t, s.InsertParts(ctx, parts))

	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	sched := New(s, backend, retry.New(5*time.Millisecond, false, false), 3)

	result := sched.Execute(ctx, session)
	assert.False(t, result.Completed)
	require.Error(t, result.Err)
}

func TestMaxConcurrencyHonorsConfiguredLimit(t *testing.T) {
	s := newTestStore(t)
	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	sched := New(s, backend, retry.New(time.Millisecond, false, false), 2)

	assert.Equal(t, 2, sched.maxConcurrency(&uploadmodel.UploadSession{TotalParts: 10}))
	assert.Equal(t, 1, sched.maxConcurrency(&uploadmodel.UploadSession{TotalParts: 1}))
}

func TestMaxConcurrencyDefaultsWhenUnset(t *testing.T) {
	s := newTestStore(t)
	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	sched := New(s, backend, retry.New(time.Millisecond, false, false), 0)

	assert.Equal(t, 3, sched.maxConcurrency(&uploadmodel.UploadSession{TotalParts: 10}))
}

func TestExecuteStopsWhenSessionPausedExternally(t *testing.T) {
	data := make([]byte, 40)
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*.bin")
	require.NoError(t, err)
	_, err = tmp.Write(data)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	var part1Calls int32
	objectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("part") == "1" {
			atomic.AddInt32(&part1Calls, 1)
			<-r.Context().Done()
			return
		}
		w.Header().Set("ETag", "\"etag-ok\"")
		w.WriteHeader(http.StatusOK)
	}))
	defer objectSrv.Close()

	presignSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backendclient.PresignPartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.PresignPartResponse{
			PresignedURL: objectSrv.URL + "?part=" + itoa(req.PartNumber),
			PartNumber:   req.PartNumber,
		})
	}))
	defer presignSrv.Close()

	s := newTestStore(t)
	ctx := context.Background()

	session := &uploadmodel.UploadSession{
		SessionID:   "sess-1",
		UploadID:    "upload-1",
		LocalPath:   tmp.Name(),
		RemotePath:  "objects/sess-1",
		TotalSize:   40,
		ChunkSize:   8,
		TotalParts:  5,
		Status:      uploadmodel.SessionInProgress,
		Endpoints:   uploadmodel.Endpoints{PresignPartURL: presignSrv.URL},
		MaxRetries:  2,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Constraints: uploadmodel.DefaultConstraintSet(),
	}
	require.NoError(t, s.InsertSession(ctx, session))
	parts := make([]uploadmodel.UploadPart, 5)
	for i := range parts {
		parts[i] = uploadmodel.UploadPart{SessionID: "sess-1", PartNumber: i + 1, StartByte: uint64(i * 8), EndByte: uint64((i + 1) * 8), PartSize: 8, Status: uploadmodel.PartPending, UpdatedAt: time.Now()}
	}
	require.NoError(t, s.InsertParts(ctx, parts))

	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	sched := New(s, backend, retry.New(time.Millisecond, false, false), 3)

	done := make(chan Result, 1)
	go func() {
		done <- sched.Execute(ctx, session)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&part1Calls) > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.UpdateSessionStatus(ctx, "sess-1", uploadmodel.SessionPaused, time.Now()))

	result := <-done
	assert.False(t, result.Completed)

	uploaded, err := s.GetUploadedPartsCount(ctx, "sess-1")
	require.NoError(t, err)
	assert.Less(t, uploaded, 5)
}
