// Package constraints implements the Constraint Coordinator (§4.6): it
// translates external execution-constraint signals (network, power,
// storage) into session state transitions and schedules auto-resume with
// whatever job scheduler the host application runs.
package constraints

import (
	"context"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// ResumeScheduler is the host application's job scheduler: the coordinator
// asks it to re-invoke Resume (and then Execute) for a session once its
// constraints are expected to be satisfied again. Implementations are
// expected to wrap whatever OS- or framework-level constrained job API the
// host runs on.
type ResumeScheduler interface {
	EnqueueResume(ctx context.Context, sessionID string, delay time.Duration, constraints uploadmodel.ConstraintSet) error
}

// RunCanceller stops a session's in-flight Part Scheduler run, if any, so a
// constraint violation or a default-constraints update takes effect
// immediately instead of waiting for the scheduler's own status polling to
// notice it on its next claim-loop iteration (§8 Scenario F). *engine.Engine
// satisfies this via Engine.CancelRun.
type RunCanceller interface {
	CancelRun(sessionID string)
}

// DefaultConstraintsSetter lets the coordinator replace the constraint set
// new sessions are created with, independent of whether a given
// update_constraints call also applies to existing sessions (§4.6).
// *engine.Engine satisfies this via Engine.SetDefaultConstraints.
type DefaultConstraintsSetter interface {
	SetDefaultConstraints(cs uploadmodel.ConstraintSet)
}

// Coordinator applies constraint-violation stops and default-constraint
// updates to the Durable Store.
type Coordinator struct {
	store     store.Store
	scheduler ResumeScheduler
	runs      RunCanceller
	defaults  DefaultConstraintsSetter
}

// New builds a Coordinator. scheduler may be nil if the host never sets
// AutoResumeWhenSatisfied; EnqueueResume is only invoked when a session asks
// for it. engine may be nil, in which case OnConstraintViolation relies
// solely on the scheduler's own status polling and UpdateConstraints never
// updates the default constraint set for new sessions.
func New(s store.Store, scheduler ResumeScheduler, engine interface {
	RunCanceller
	DefaultConstraintsSetter
}) *Coordinator {
	c := &Coordinator{store: s, scheduler: scheduler}
	if engine != nil {
		c.runs = engine
		c.defaults = engine
	}
	return c
}

// OnConstraintViolation reacts to an external "stopped: constraint
// violated" signal for session S. S must be in {Pending, InProgress}; other
// statuses are a no-op error since the violation no longer applies.
func (c *Coordinator) OnConstraintViolation(ctx context.Context, sessionID string, stopCode uploadmodel.StopReasonCode) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != uploadmodel.SessionPending && session.Status != uploadmodel.SessionInProgress {
		return uploadmodel.ErrInvalidState
	}

	if c.runs != nil {
		c.runs.CancelRun(sessionID)
	}

	if err := c.store.ResetUploadingParts(ctx, sessionID); err != nil {
		return err
	}

	now := time.Now()
	reason := stopCode.Message()
	if err := c.store.UpdateSessionForConstraintViolation(ctx, sessionID, reason, stopCode, now); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "session paused on constraint violation",
		logger.SessionID(sessionID), "stop_reason", reason)

	if session.Constraints.AutoResumeWhenSatisfied && c.scheduler != nil {
		delay := time.Duration(session.Constraints.AutoResumeDelayMs) * time.Millisecond
		if err := c.scheduler.EnqueueResume(ctx, sessionID, delay, session.Constraints); err != nil {
			logger.WarnCtx(ctx, "failed to enqueue auto-resume", logger.SessionID(sessionID), "error", err)
		}
	}

	return nil
}

// UpdateConstraints replaces the constraint set new sessions are created
// with going forward, regardless of applyToExisting. When applyToExisting,
// every non-terminal session also has its stored constraints replaced and
// is re-enqueued with scheduler; InProgress sessions are additionally
// paused (and their Uploading parts reset to Pending) so they don't keep
// running under the constraints they were started with.
func (c *Coordinator) UpdateConstraints(ctx context.Context, newDefault uploadmodel.ConstraintSet, applyToExisting bool) error {
	if c.defaults != nil {
		c.defaults.SetDefaultConstraints(newDefault)
	}

	if !applyToExisting {
		return nil
	}

	sessions, err := c.store.GetActiveSessions(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, session := range sessions {
		switch session.Status {
		case uploadmodel.SessionPending, uploadmodel.SessionPaused, uploadmodel.SessionPausedConstraintViolation:
			// fall through to the shared constraint update below
		case uploadmodel.SessionInProgress:
			if c.runs != nil {
				c.runs.CancelRun(session.SessionID)
			}
			if err := c.store.ResetUploadingParts(ctx, session.SessionID); err != nil {
				return err
			}
			if err := c.store.UpdateSessionStatus(ctx, session.SessionID, uploadmodel.SessionPaused, now); err != nil {
				return err
			}
		default:
			continue
		}

		if err := c.store.UpdateSessionConstraints(ctx, session.SessionID, newDefault, now); err != nil {
			return err
		}

		if newDefault.AutoResumeWhenSatisfied && c.scheduler != nil {
			delay := time.Duration(newDefault.AutoResumeDelayMs) * time.Millisecond
			if err := c.scheduler.EnqueueResume(ctx, session.SessionID, delay, newDefault); err != nil {
				logger.WarnCtx(ctx, "failed to enqueue resume after constraint update",
					logger.SessionID(session.SessionID), "error", err)
			}
		}
	}

	return nil
}
