// Package engine implements the Session Engine (§4.5): the top-level
// state machine exposed to callers, wiring together the Durable Store, the
// Backend Client, and the Part Scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uploadkit/engine/internal/bytesize"
	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/backendclient"
	"github.com/uploadkit/engine/pkg/progress"
	"github.com/uploadkit/engine/pkg/retry"
	"github.com/uploadkit/engine/pkg/scheduler"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Outcome classifies the terminal result of start/execute (§4.5).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePaused
	OutcomeError
	OutcomeCancelled
)

// String implements fmt.Stringer for log and CLI output.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePaused:
		return "paused"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is returned by start and execute.
type Result struct {
	SessionID string
	Outcome   Outcome

	// RemotePath and Location are populated on OutcomeSuccess.
	RemotePath string
	Location   string

	// UploadedParts, TotalParts, UploadedBytes, and TotalSize are populated
	// on OutcomePaused: the Progress Projection (§4.8) at the moment the run
	// stopped, so a caller doesn't need a second round trip to report
	// progress alongside the pause.
	UploadedParts int
	TotalParts    int
	UploadedBytes uint64
	TotalSize     uint64

	// Err is populated on OutcomeError.
	Err error
}

// Options configures a new upload session.
type Options struct {
	ChunkSize             uint64
	MaxConcurrentParts    int
	MaxRetries            int
	RetryDelay            time.Duration
	UseExponentialBackoff bool
	Constraints           uploadmodel.ConstraintSet
}

// DefaultOptions returns SPEC_FULL.md §4's documented defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:             uint64(5 * bytesize.MiB),
		MaxConcurrentParts:    3,
		MaxRetries:            3,
		RetryDelay:            1000 * time.Millisecond,
		UseExponentialBackoff: true,
		Constraints:           uploadmodel.DefaultConstraintSet(),
	}
}

// Engine is the Session Engine.
type Engine struct {
	store   store.Store
	backend *backendclient.Client
	opts    Options

	mu        sync.Mutex
	cancelers map[string]context.CancelFunc
}

// New builds an Engine.
func New(s store.Store, backend *backendclient.Client, opts Options) *Engine {
	return &Engine{
		store:     s,
		backend:   backend,
		opts:      opts,
		cancelers: make(map[string]context.CancelFunc),
	}
}

// Start validates the local file, resumes an existing active session for
// its path if one exists (idempotent start), or initializes and executes a
// new one.
func (e *Engine) Start(ctx context.Context, localPath, remoteFileName, contentType string, endpoints uploadmodel.Endpoints, constraints *uploadmodel.ConstraintSet) Result {
	info, err := os.Stat(localPath)
	if err != nil {
		return errorResult("", fmt.Errorf("%w: %v", uploadmodel.ErrInvalidInput, err))
	}
	if info.IsDir() {
		return errorResult("", fmt.Errorf("%w: %s is a directory", uploadmodel.ErrInvalidInput, localPath))
	}
	if info.Size() == 0 {
		return errorResult("", fmt.Errorf("%w: zero-byte files are not supported", uploadmodel.ErrInvalidInput))
	}

	existing, err := e.store.FindActiveSessionForPath(ctx, localPath)
	if err == nil {
		logger.InfoCtx(ctx, "resuming existing active session for path", logger.SessionID(existing.SessionID), logger.LocalPath(localPath))
		return e.Execute(ctx, existing.SessionID)
	}

	cs := e.DefaultConstraints()
	if constraints != nil {
		cs = *constraints
	}

	sessionID, err := e.initialize(ctx, localPath, remoteFileName, contentType, uint64(info.Size()), endpoints, cs)
	if err != nil {
		return errorResult("", err)
	}

	return e.Execute(ctx, sessionID)
}

// initialize computes the part plan, calls Initiate, and atomically
// persists the session and its part rows (§4.5).
func (e *Engine) initialize(ctx context.Context, localPath, fileName, contentType string, size uint64, endpoints uploadmodel.Endpoints, constraints uploadmodel.ConstraintSet) (string, error) {
	chunkSize := e.opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultOptions().ChunkSize
	}
	totalParts := int((size + chunkSize - 1) / chunkSize)

	initResp, err := e.backend.Initiate(ctx, endpoints.InitiateURL, backendclient.InitiateRequest{
		FileName:    fileName,
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	sessionID := uuid.New().String()
	now := time.Now()
	session := &uploadmodel.UploadSession{
		SessionID:   sessionID,
		UploadID:    initResp.UploadID,
		LocalPath:   localPath,
		RemotePath:  initResp.FilePath,
		FileName:    fileName,
		ContentType: contentType,
		TotalSize:   size,
		ChunkSize:   chunkSize,
		TotalParts:  totalParts,
		Status:      uploadmodel.SessionPending,
		Endpoints:   endpoints,
		MaxRetries:  e.opts.MaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: constraints,
	}

	if err := e.store.InsertSession(ctx, session); err != nil {
		return "", uploadmodel.NewEngineError("initialize", sessionID, 0, err)
	}

	parts := make([]uploadmodel.UploadPart, totalParts)
	for i := 0; i < totalParts; i++ {
		start := uint64(i) * chunkSize
		end := min(start+chunkSize, size)
		parts[i] = uploadmodel.UploadPart{
			SessionID:  sessionID,
			PartNumber: i + 1,
			StartByte:  start,
			EndByte:    end,
			PartSize:   end - start,
			Status:     uploadmodel.PartPending,
			UpdatedAt:  now,
		}
	}
	if err := e.store.InsertParts(ctx, parts); err != nil {
		return "", uploadmodel.NewEngineError("initialize", sessionID, 0, err)
	}

	return sessionID, nil
}

// Execute transitions a session to InProgress, runs the Part Scheduler, and
// acts on the outcome (§4.5).
func (e *Engine) Execute(ctx context.Context, sessionID string) Result {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return errorResult(sessionID, err)
	}

	if err := e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionInProgress, time.Now()); err != nil {
		return errorResult(sessionID, err)
	}
	session.Status = uploadmodel.SessionInProgress

	runCtx, cancel := e.registerRun(ctx, sessionID)
	defer e.clearRun(sessionID)

	policy := retry.New(e.opts.RetryDelay, e.opts.UseExponentialBackoff, true)
	sched := scheduler.New(e.store, e.backend, policy, e.opts.MaxConcurrentParts)
	result := sched.Execute(runCtx, session)
	cancel()

	switch {
	case result.Completed:
		return e.complete(ctx, session)

	case result.Err != nil && !errors.Is(result.Err, context.Canceled) && !errors.Is(result.Err, uploadmodel.ErrCancelled) && !uploadmodel.Recoverable(result.Err):
		msg := result.Err.Error()
		_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, msg, time.Now())
		return errorResult(sessionID, result.Err)

	default:
		// A part that used up its attempts is left Failed and the scheduler
		// returns neither completion nor an error; if the session is still
		// InProgress, that fails the session (a later Resume resets the
		// Failed parts).
		if result.Err == nil {
			if withParts, err := e.store.GetSessionWithParts(ctx, sessionID); err == nil && withParts.Session.Status == uploadmodel.SessionInProgress {
				for _, p := range withParts.Parts {
					if p.Status == uploadmodel.PartFailed {
						msg := fmt.Sprintf("part %d failed after %d attempts", p.PartNumber, retry.MaxAttempts(session.MaxRetries))
						_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, msg, time.Now())
						return errorResult(sessionID, errors.New(msg))
					}
				}
			}
		}
		// Otherwise the run stopped without completing and without a hard
		// failure: the caller's ctx was cancelled (Pause, a SIGINT handler,
		// or a parent context timing out), Cancel() already moved the
		// session to Aborted, or the session was moved to Paused or
		// PausedConstraintViolation. ctx cancellation looks identical
		// whichever of those triggered it, so resolve it against the
		// session's current stored status rather than the scheduler error.
		return e.interruptedResult(sessionID)
	}
}

// interruptedResult settles a run that the Part Scheduler stopped without
// completing it (§4.5, §8 Scenario F). If Cancel already moved the session
// to Aborted, or the Constraint Coordinator already moved it to
// PausedConstraintViolation, that decision stands. Otherwise the
// interruption is treated as a pause: in-flight parts are reset to Pending
// and the session is marked Paused, so it is never left stuck InProgress.
func (e *Engine) interruptedResult(sessionID string) Result {
	writeCtx := context.Background()

	session, err := e.store.GetSession(writeCtx, sessionID)
	if err != nil {
		return errorResult(sessionID, err)
	}

	switch session.Status {
	case uploadmodel.SessionAborted:
		return Result{SessionID: sessionID, Outcome: OutcomeCancelled}
	case uploadmodel.SessionPaused, uploadmodel.SessionPausedConstraintViolation:
		// Already transitioned by Pause or the Constraint Coordinator.
	default:
		if err := e.store.ResetUploadingParts(writeCtx, sessionID); err != nil {
			return errorResult(sessionID, err)
		}
		if err := e.store.UpdateSessionStatus(writeCtx, sessionID, uploadmodel.SessionPaused, time.Now()); err != nil {
			return errorResult(sessionID, err)
		}
	}

	result := Result{SessionID: sessionID, Outcome: OutcomePaused}
	if snap, err := progress.Observe(writeCtx, e.store, sessionID); err == nil {
		result.UploadedParts = snap.UploadedParts
		result.TotalParts = snap.TotalParts
		result.UploadedBytes = snap.UploadedBytes
		result.TotalSize = snap.TotalSize
	}
	return result
}

// complete fetches the uploaded parts, verifies completeness, and calls the
// backend's Complete RPC (§4.5).
func (e *Engine) complete(ctx context.Context, session *uploadmodel.UploadSession) Result {
	sessionID := session.SessionID
	if err := e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionCompleting, time.Now()); err != nil {
		return errorResult(sessionID, err)
	}

	uploaded, err := e.store.GetUploadedParts(ctx, sessionID)
	if err != nil {
		return errorResult(sessionID, err)
	}

	if len(uploaded) != session.TotalParts {
		err := fmt.Errorf("%w: expected %d parts, have %d", uploadmodel.ErrProtocol, session.TotalParts, len(uploaded))
		_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, "Missing ETags", time.Now())
		return errorResult(sessionID, err)
	}

	completed := make([]backendclient.CompletedPart, len(uploaded))
	for i, p := range uploaded {
		if p.ETag == nil {
			_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, "Missing ETags", time.Now())
			return errorResult(sessionID, fmt.Errorf("%w: Missing ETags", uploadmodel.ErrProtocol))
		}
		completed[i] = backendclient.CompletedPart{PartNumber: p.PartNumber, ETag: *p.ETag}
	}

	resp, err := e.backend.Complete(ctx, session.Endpoints.CompleteURL, backendclient.CompleteRequest{
		UploadID: session.UploadID,
		FilePath: session.RemotePath,
		Parts:    completed,
	})
	if err != nil {
		msg := err.Error()
		_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, msg, time.Now())
		return errorResult(sessionID, err)
	}

	if err := e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionCompleted, time.Now()); err != nil {
		return errorResult(sessionID, err)
	}

	return Result{
		SessionID:  sessionID,
		Outcome:    OutcomeSuccess,
		RemotePath: resp.FilePath,
		Location:   resp.Location,
	}
}

// Pause cancels a running session's scheduler and resets its in-flight
// parts. Allowed only from {Pending, InProgress}.
func (e *Engine) Pause(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != uploadmodel.SessionPending && session.Status != uploadmodel.SessionInProgress {
		return uploadmodel.ErrInvalidState
	}

	e.cancelRun(sessionID)

	if err := e.store.ResetUploadingParts(ctx, sessionID); err != nil {
		return err
	}
	return e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionPaused, time.Now())
}

// Resume prepares a session to be re-executed by the caller. It does not
// itself call Execute, preventing double-execution (§4.5).
func (e *Engine) Resume(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case uploadmodel.SessionPending, uploadmodel.SessionPaused, uploadmodel.SessionFailed, uploadmodel.SessionPausedConstraintViolation:
	default:
		return uploadmodel.ErrInvalidState
	}

	if _, statErr := os.Stat(session.LocalPath); statErr != nil {
		_ = e.store.UpdateSessionStatusWithError(ctx, sessionID, uploadmodel.SessionFailed, "source file no longer exists", time.Now())
		return fmt.Errorf("%w: source file no longer exists", uploadmodel.ErrInvalidInput)
	}

	if session.Status == uploadmodel.SessionFailed {
		if err := e.store.ResetFailedParts(ctx, sessionID); err != nil {
			return err
		}
	}
	if session.Status == uploadmodel.SessionPausedConstraintViolation {
		if err := e.store.ClearConstraintViolation(ctx, sessionID, time.Now()); err != nil {
			return err
		}
		return nil
	}

	return e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionPending, time.Now())
}

// Cancel stops a session permanently. Allowed from any non-terminal status.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return uploadmodel.ErrInvalidState
	}

	e.cancelRun(sessionID)

	if session.UploadID != "" {
		if _, abortErr := e.backend.Abort(ctx, session.Endpoints.AbortURL, backendclient.AbortRequest{
			UploadID: session.UploadID,
			FilePath: session.RemotePath,
		}); abortErr != nil {
			logger.WarnCtx(ctx, "abort RPC failed, proceeding with local cancellation", logger.SessionID(sessionID), "error", abortErr)
		}
	}

	return e.store.UpdateSessionStatus(ctx, sessionID, uploadmodel.SessionAborted, time.Now())
}

// CleanupOld deletes sessions that have been terminal for longer than
// olderThan, default 7 days (§4.5).
func (e *Engine) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = 7 * 24 * time.Hour
	}
	return e.store.DeleteOldCompletedSessions(ctx, time.Now().Add(-olderThan))
}

// DefaultConstraints returns the constraint set new sessions are started
// with when Start is called without an explicit override.
func (e *Engine) DefaultConstraints() uploadmodel.ConstraintSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.Constraints
}

// SetDefaultConstraints replaces the constraint set new sessions are
// started with. It never touches any already-running or already-persisted
// session; see constraints.Coordinator.UpdateConstraints for the
// apply-to-existing-sessions half of update_constraints (§4.6).
func (e *Engine) SetDefaultConstraints(cs uploadmodel.ConstraintSet) {
	e.mu.Lock()
	e.opts.Constraints = cs
	e.mu.Unlock()
}

// ConstraintViolated returns every session currently paused on a constraint
// violation (get_constraint_violated, §6).
func (e *Engine) ConstraintViolated(ctx context.Context) ([]uploadmodel.UploadSession, error) {
	return e.store.GetConstraintViolatedSessions(ctx)
}

// ResumeConstraintViolated is resume_constraint_violated (§6): it clears a
// session's constraint-violation bookkeeping and restores it to InProgress
// without re-executing it (Resume already special-cases this status the
// same way). It exists as a distinctly-named, citable entry point; callers
// equally may just call Resume.
func (e *Engine) ResumeConstraintViolated(ctx context.Context, sessionID string) error {
	return e.Resume(ctx, sessionID)
}

// CancelRun cancels a session's in-flight scheduler run, if one is active,
// without touching its persisted status. It is exported so collaborators
// outside the Engine (e.g. constraints.Coordinator) can stop a running
// upload the instant they observe an external constraint violation, rather
// than relying solely on the scheduler's own status polling to notice the
// change on its next claim-loop iteration.
func (e *Engine) CancelRun(sessionID string) {
	e.cancelRun(sessionID)
}

func (e *Engine) registerRun(ctx context.Context, sessionID string) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelers[sessionID] = cancel
	e.mu.Unlock()
	return runCtx, cancel
}

func (e *Engine) clearRun(sessionID string) {
	e.mu.Lock()
	delete(e.cancelers, sessionID)
	e.mu.Unlock()
}

func (e *Engine) cancelRun(sessionID string) {
	e.mu.Lock()
	cancel, ok := e.cancelers[sessionID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func errorResult(sessionID string, err error) Result {
	return Result{SessionID: sessionID, Outcome: OutcomeError, Err: err}
}
