package uploadmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusIsTerminal(t *testing.T) {
	assert.True(t, SessionCompleted.IsTerminal())
	assert.True(t, SessionAborted.IsTerminal())
	assert.False(t, SessionPending.IsTerminal())
	assert.False(t, SessionFailed.IsTerminal())
}

func TestSessionStatusIsRecoverable(t *testing.T) {
	for _, s := range []SessionStatus{SessionPending, SessionInProgress, SessionPaused, SessionPausedConstraintViolation} {
		assert.True(t, s.IsRecoverable(), "%s should be recoverable", s)
	}
	for _, s := range []SessionStatus{SessionCompleted, SessionAborted, SessionFailed, SessionCompleting} {
		assert.False(t, s.IsRecoverable(), "%s should not be recoverable", s)
	}
}

func TestSessionStatusIsActiveForPath(t *testing.T) {
	for _, s := range []SessionStatus{SessionCompleted, SessionAborted, SessionFailed} {
		assert.False(t, s.IsActiveForPath(), "%s should not be active", s)
	}
	for _, s := range []SessionStatus{SessionPending, SessionInProgress, SessionPaused, SessionPausedConstraintViolation, SessionCompleting} {
		assert.True(t, s.IsActiveForPath(), "%s should be active", s)
	}
}

func TestStopReasonMessage(t *testing.T) {
	assert.Equal(t, "Network constraint violated", StopReasonConnectivity.Message())
	assert.Equal(t, "Execution constraint violated", StopReasonCode(999).Message())
}

func TestPartID(t *testing.T) {
	assert.Equal(t, "sess-1:3", PartID("sess-1", 3))

	p := UploadPart{SessionID: "sess-1", PartNumber: 3}
	assert.Equal(t, "sess-1:3", p.PartID())
}
