package engine

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
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

type testBackend struct {
	initiateURL, presignURL, completeURL, abortURL string
	objectURL                                      string
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	tb := &testBackend{}

	objectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", "\"etag-"+r.URL.Query().Get("part")+"\"")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(objectSrv.Close)
	tb.objectURL = objectSrv.URL

	initiateSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.InitiateResponse{UploadID: "U1", FilePath: "k1"})
	}))
	t.Cleanup(initiateSrv.Close)
	tb.initiateURL = initiateSrv.URL

	presignSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backendclient.PresignPartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.PresignPartResponse{
			PresignedURL: objectSrv.URL + "?part=" + itoa(req.PartNumber),
			PartNumber:   req.PartNumber,
		})
	}))
	t.Cleanup(presignSrv.Close)
	tb.presignURL = presignSrv.URL

	completeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.CompleteResponse{FilePath: "k1", Location: "https://example.com/k1"})
	}))
	t.Cleanup(completeSrv.Close)
	tb.completeURL = completeSrv.URL

	abortSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.AbortResponse{Success: true})
	}))
	t.Cleanup(abortSrv.Close)
	tb.abortURL = abortSrv.URL

	return tb
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func (tb *testBackend) endpoints() uploadmodel.Endpoints {
	return uploadmodel.Endpoints{
		InitiateURL:    tb.initiateURL,
		PresignPartURL: tb.presignURL,
		CompleteURL:    tb.completeURL,
		AbortURL:       tb.abortURL,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.New(&store.Config{Type: store.DatabaseTypeSQLite, SQLite: store.SQLiteConfig{Path: ":memory:"}})
	require.NoError(t, err)
	backend := backendclient.New(nil, backendclient.DefaultTimeouts())
	opts := DefaultOptions()
	opts.ChunkSize = 5 * 1024 * 1024
	opts.RetryDelay = 5 * time.Millisecond
	return New(s, backend, opts)
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*.bin")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, size))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestStartHappyPath(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 12*1024*1024) // 3 parts: 5,5,2 MiB

	result := e.Start(ctx, path, "file.bin", "application/octet-stream", tb.endpoints(), nil)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "k1", result.RemotePath)
	assert.Equal(t, "https://example.com/k1", result.Location)

	session, err := e.store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionCompleted, session.Status)
}

func TestStartRejectsZeroByteFile(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 0)

	result := e.Start(ctx, path, "empty.bin", "application/octet-stream", tb.endpoints(), nil)
	assert.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, uploadmodel.ErrInvalidInput)
}

func TestStartCreatesNewSessionAfterCompletion(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 12*1024*1024)

	first := e.Start(ctx, path, "file.bin", "application/octet-stream", tb.endpoints(), nil)
	require.Equal(t, OutcomeSuccess, first.Outcome)

	// Completed is terminal, so a second Start should initialize a new
	// session rather than resume the completed one.
	second := e.Start(ctx, path, "file.bin", "application/octet-stream", tb.endpoints(), nil)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestCancelAbortsSession(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 12*1024*1024)
	sessionID, err := e.initialize(ctx, path, "file.bin", "application/octet-stream", 12*1024*1024, tb.endpoints(), uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)

	require.NoError(t, e.Cancel(ctx, sessionID))

	session, err := e.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionAborted, session.Status)
}

func TestExecutePausesOnCallerContextCancellation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var presignCalls int32
	objectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer objectSrv.Close()

	initiateSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.InitiateResponse{UploadID: "U1", FilePath: "k1"})
	}))
	defer initiateSrv.Close()

	presignSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&presignCalls, 1)
		var req backendclient.PresignPartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(backendclient.PresignPartResponse{PresignedURL: objectSrv.URL, PartNumber: req.PartNumber})
	}))
	defer presignSrv.Close()

	endpoints := uploadmodel.Endpoints{InitiateURL: initiateSrv.URL, PresignPartURL: presignSrv.URL}
	path := writeTempFile(t, 5*1024*1024)
	sessionID, err := e.initialize(ctx, path, "file.bin", "application/octet-stream", 5*1024*1024, endpoints, uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan Result, 1)
	go func() {
		done <- e.Execute(runCtx, sessionID)
	}()

	// Interrupting the caller's ctx (as the CLI's SIGINT handler does) must
	// reach the scheduler's run, not leave it uploading against a detached
	// background context.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&presignCalls) > 0 }, time.Second, time.Millisecond)
	cancel()

	result := <-done
	assert.Equal(t, OutcomePaused, result.Outcome)
	assert.Equal(t, 0, result.UploadedParts)

	session, err := e.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionPaused, session.Status)

	withParts, err := e.store.GetSessionWithParts(ctx, sessionID)
	require.NoError(t, err)
	for _, p := range withParts.Parts {
		assert.NotEqual(t, uploadmodel.PartUploading, p.Status)
	}
}

func TestConstraintViolatedListsOnlyThoseSessions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	path := writeTempFile(t, 1024)
	sessionID, err := e.initialize(ctx, path, "file.bin", "application/octet-stream", 1024, uploadmodel.Endpoints{}, uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateSessionForConstraintViolation(ctx, sessionID, "network constraint not satisfied", uploadmodel.StopReasonConnectivity, time.Now()))

	other, err := e.initialize(ctx, writeTempFile(t, 1024), "other.bin", "application/octet-stream", 1024, uploadmodel.Endpoints{}, uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)
	_ = other

	sessions, err := e.ConstraintViolated(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].SessionID)
}

func TestSetDefaultConstraintsAffectsOnlyNewSessions(t *testing.T) {
	e := newTestEngine(t)
	cs := uploadmodel.ConstraintSet{RequiresCharging: true}
	e.SetDefaultConstraints(cs)
	assert.Equal(t, cs, e.DefaultConstraints())
}

func TestResumeFromFailedResetsFailedParts(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 5*1024*1024)
	sessionID, err := e.initialize(ctx, path, "file.bin", "application/octet-stream", 5*1024*1024, tb.endpoints(), uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)

	require.NoError(t, e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionFailed, time.Now()))
	require.NoError(t, e.store.UpdatePartStatus(ctx, sessionID, 1, uploadmodel.PartFailed, nil, 0, time.Now()))

	require.NoError(t, e.Resume(ctx, sessionID))

	session, err := e.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionPending, session.Status)

	withParts, err := e.store.GetSessionWithParts(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.PartPending, withParts.Parts[0].Status)
}

func TestResumeFailsWhenSourceFileMissing(t *testing.T) {
	e := newTestEngine(t)
	tb := newTestBackend(t)
	ctx := context.Background()

	path := writeTempFile(t, 5*1024*1024)
	sessionID, err := e.initialize(ctx, path, "file.bin", "application/octet-stream", 5*1024*1024, tb.endpoints(), uploadmodel.DefaultConstraintSet())
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionPaused, time.Now()))

	require.NoError(t, os.Remove(path))

	err = e.Resume(ctx, sessionID)
	assert.ErrorIs(t, err, uploadmodel.ErrInvalidInput)

	session, err := e.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, uploadmodel.SessionFailed, session.Status)
}
