// Package scheduler implements the Part Scheduler (§4.3): a
// bounded-concurrency claim → read → presign → PUT → record loop over a
// session's Pending parts.
package scheduler

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/backendclient"
	"github.com/uploadkit/engine/pkg/retry"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Result is the terminal outcome of one Execute call.
type Result struct {
	// Completed is true when every part reached Uploaded.
	Completed bool

	// Err is the non-recoverable error that stopped the scheduler, if any.
	Err error
}

// Scheduler drives a session's parts to completion with bounded
// concurrency, per-task retry, and cooperative cancellation.
type Scheduler struct {
	store              store.Store
	backend            *backendclient.Client
	policy             retry.Policy
	maxConcurrentParts int
}

// New builds a Scheduler. maxConcurrentParts comes from the Session
// Engine's configured Options.MaxConcurrentParts (§4.3); a non-positive
// value falls back to the engine's documented default of 3, so the
// scheduler stays usable standalone (e.g. in tests) without that wiring.
func New(s store.Store, backend *backendclient.Client, policy retry.Policy, maxConcurrentParts int) *Scheduler {
	if maxConcurrentParts <= 0 {
		maxConcurrentParts = 3
	}
	return &Scheduler{store: s, backend: backend, policy: policy, maxConcurrentParts: maxConcurrentParts}
}

// Execute claims and uploads every Pending part of session, honoring
// max_concurrent_parts and max_retries, until the parts are exhausted, a
// non-recoverable error occurs, or ctx is cancelled. It does not call
// Complete; the caller (Session Engine) does that once Result.Completed.
func (s *Scheduler) Execute(ctx context.Context, session *uploadmodel.UploadSession) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, s.maxConcurrency(session))
	var wg sync.WaitGroup

	var failMu sync.Mutex
	var failure error

	recordFailure := func(err error) {
		failMu.Lock()
		defer failMu.Unlock()
		if failure == nil {
			failure = err
			cancel()
		}
	}

claimLoop:
	for {
		select {
		case <-runCtx.Done():
			break claimLoop
		default:
		}

		// §4.3 step 3a: before claiming another part, check whether the
		// session has been paused out from under us (manual Pause, or the
		// Constraint Coordinator reacting to an external stop signal). The
		// claiming goroutine never observes that transition through ctx
		// cancellation alone, so without this check a run already flipped
		// to Paused/PausedConstraintViolation in the store would keep
		// claiming and uploading parts until it completed, overwriting the
		// stop.
		paused, err := s.sessionPaused(ctx, session.SessionID)
		if err != nil {
			recordFailure(uploadmodel.NewEngineError("claim_part", session.SessionID, 0, err))
			break
		}
		if paused {
			cancel()
			break claimLoop
		}

		part, err := s.store.ClaimNextPendingPart(ctx, session.SessionID)
		if err != nil {
			recordFailure(uploadmodel.NewEngineError("claim_part", session.SessionID, 0, err))
			break
		}
		if part == nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			s.resetPart(ctx, session.SessionID, part.PartNumber)
			break claimLoop
		}

		wg.Add(1)
		go func(p uploadmodel.UploadPart) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Err() != nil {
				s.resetPart(ctx, session.SessionID, p.PartNumber)
				return
			}

			if err := s.runPartTask(runCtx, session, p); err != nil {
				if !retry.Recoverable(err) {
					recordFailure(err)
				}
			}
		}(*part)
	}

	wg.Wait()

	failMu.Lock()
	defer failMu.Unlock()
	if failure != nil {
		return Result{Completed: false, Err: failure}
	}
	if ctx.Err() != nil {
		return Result{Completed: false, Err: ctx.Err()}
	}

	remaining, err := s.store.GetUploadedPartsCount(ctx, session.SessionID)
	if err != nil {
		return Result{Completed: false, Err: err}
	}
	return Result{Completed: remaining == session.TotalParts}
}

// maxConcurrency sizes the claim semaphore at min(TotalParts,
// maxConcurrentParts): TotalParts can be smaller than the configured
// concurrency for small files, and a session never needs more claiming
// slots than it has parts.
func (s *Scheduler) maxConcurrency(session *uploadmodel.UploadSession) int {
	if session.TotalParts < s.maxConcurrentParts {
		return max(session.TotalParts, 1)
	}
	return s.maxConcurrentParts
}

// sessionPaused reports whether session has been moved to Paused or
// PausedConstraintViolation since this run started.
func (s *Scheduler) sessionPaused(ctx context.Context, sessionID string) (bool, error) {
	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return current.Status == uploadmodel.SessionPaused || current.Status == uploadmodel.SessionPausedConstraintViolation, nil
}

// runPartTask performs up to max_retries+1 attempts of one part: presign,
// read the byte range from a private file handle, PUT, record the outcome.
func (s *Scheduler) runPartTask(ctx context.Context, session *uploadmodel.UploadSession, part uploadmodel.UploadPart) error {
	maxAttempts := retry.MaxAttempts(session.MaxRetries)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.policy.Delay(attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.resetPart(context.Background(), session.SessionID, part.PartNumber)
				return uploadmodel.ErrCancelled
			}
		}

		if ctx.Err() != nil {
			s.resetPart(context.Background(), session.SessionID, part.PartNumber)
			return uploadmodel.ErrCancelled
		}

		etag, err := s.uploadOnce(ctx, session, part)
		if err == nil {
			now := time.Now()
			return s.store.UpdatePartStatus(ctx, session.SessionID, part.PartNumber, uploadmodel.PartUploaded, &etag, part.PartSize, now)
		}

		lastErr = err
		if !retry.Recoverable(err) {
			_ = s.store.UpdatePartStatus(context.Background(), session.SessionID, part.PartNumber, uploadmodel.PartFailed, nil, 0, time.Now())
			return err
		}

		logger.WarnCtx(ctx, "part upload attempt failed, retrying",
			logger.PartNumber(part.PartNumber), "attempt", attempt, "error", err)
	}

	_ = s.store.UpdatePartStatus(context.Background(), session.SessionID, part.PartNumber, uploadmodel.PartFailed, nil, 0, time.Now())
	return lastErr
}

func (s *Scheduler) uploadOnce(ctx context.Context, session *uploadmodel.UploadSession, part uploadmodel.UploadPart) (string, error) {
	presigned, err := s.backend.PresignPart(ctx, session.Endpoints.PresignPartURL, backendclient.PresignPartRequest{
		UploadID:   session.UploadID,
		FilePath:   session.RemotePath,
		PartNumber: part.PartNumber,
	})
	if err != nil {
		return "", err
	}

	file, err := os.Open(session.LocalPath)
	if err != nil {
		return "", uploadmodel.NewEngineError("put_part", session.SessionID, part.PartNumber, errors.Join(uploadmodel.ErrInternal, err))
	}
	defer func() { _ = file.Close() }()

	section := io.NewSectionReader(file, int64(part.StartByte), int64(part.PartSize))

	result, err := s.backend.PutPart(ctx, presigned.PresignedURL, presigned.Headers, session.ContentType, section, int64(part.PartSize))
	if err != nil {
		return "", err
	}
	return result.ETag, nil
}

func (s *Scheduler) resetPart(ctx context.Context, sessionID string, partNumber int) {
	if err := s.store.UpdatePartStatus(ctx, sessionID, partNumber, uploadmodel.PartPending, nil, 0, time.Now()); err != nil {
		logger.WarnCtx(ctx, "failed to reset claimed part to pending on cancel", "part_number", partNumber, "error", err)
	}
}
