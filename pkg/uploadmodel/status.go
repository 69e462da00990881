// Package uploadmodel defines the persisted domain types for the multipart
// upload engine: sessions, parts, their status enums, and constraint sets.
package uploadmodel

// SessionStatus is the lifecycle state of an UploadSession.
type SessionStatus string

const (
	SessionPending                   SessionStatus = "Pending"
	SessionInProgress                SessionStatus = "InProgress"
	SessionPaused                    SessionStatus = "Paused"
	SessionPausedConstraintViolation SessionStatus = "PausedConstraintViolation"
	SessionCompleting                SessionStatus = "Completing"
	SessionCompleted                 SessionStatus = "Completed"
	SessionFailed                    SessionStatus = "Failed"
	SessionAborted                   SessionStatus = "Aborted"
)

// IsTerminal reports whether no further transitions are legal from this status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// IsRecoverable reports whether a session in this status is a candidate for
// get_recoverable_sessions (§4.1).
func (s SessionStatus) IsRecoverable() bool {
	switch s {
	case SessionPending, SessionInProgress, SessionPaused, SessionPausedConstraintViolation:
		return true
	default:
		return false
	}
}

// IsActiveForPath reports whether a session in this status counts toward the
// "at most one active session per local_path" invariant (§3 invariant 5).
func (s SessionStatus) IsActiveForPath() bool {
	switch s {
	case SessionCompleted, SessionAborted, SessionFailed:
		return false
	default:
		return true
	}
}

// PartStatus is the lifecycle state of an UploadPart.
type PartStatus string

const (
	PartPending   PartStatus = "Pending"
	PartUploading PartStatus = "Uploading"
	PartUploaded  PartStatus = "Uploaded"
	PartFailed    PartStatus = "Failed"
)

// NetworkType is a recognised network constraint predicate (§4.6).
type NetworkType string

const (
	NetworkNotRequired NetworkType = "NotRequired"
	NetworkConnected   NetworkType = "Connected"
	NetworkUnmetered   NetworkType = "Unmetered"
	NetworkNotRoaming  NetworkType = "NotRoaming"
	NetworkMetered     NetworkType = "Metered"
)

// StopReasonCode identifies why an external Scheduler halted a session.
// Values follow the common background-job-scheduler taxonomy named in §4.6.
type StopReasonCode int

const (
	StopReasonUnknown StopReasonCode = iota
	StopReasonConnectivity
	StopReasonCharging
	StopReasonBatteryLow
	StopReasonStorageLow
	StopReasonDeviceIdle
	StopReasonAppStandby
	StopReasonQuota
	StopReasonBackgroundRestriction
	StopReasonCancelledByApp
	StopReasonPreempted
	StopReasonTimeout
	StopReasonDeviceState
	StopReasonUser
	StopReasonSystemProcessing
	StopReasonEstimatedLaunchTimeChanged
	StopReasonForegroundServiceTimeout
)

var stopReasonMessages = map[StopReasonCode]string{
	StopReasonConnectivity:               "Network constraint violated",
	StopReasonCharging:                   "Charging constraint violated",
	StopReasonBatteryLow:                 "Battery too low to continue",
	StopReasonStorageLow:                 "Local storage too low to continue",
	StopReasonDeviceIdle:                 "Device entered idle mode",
	StopReasonAppStandby:                 "App placed in standby bucket",
	StopReasonQuota:                      "Background execution quota exhausted",
	StopReasonBackgroundRestriction:      "Background execution restricted",
	StopReasonCancelledByApp:             "Cancelled by the application",
	StopReasonPreempted:                  "Preempted by a higher-priority task",
	StopReasonTimeout:                    "Execution window timed out",
	StopReasonDeviceState:                "Device entered a restricted state",
	StopReasonUser:                       "Stopped by the user",
	StopReasonSystemProcessing:           "Deferred for system processing",
	StopReasonEstimatedLaunchTimeChanged: "Estimated launch time changed",
	StopReasonForegroundServiceTimeout:   "Foreground service timed out",
}

// Message returns the human-readable reason for a stop-reason code, falling
// back to a generic message for unrecognised codes.
func (c StopReasonCode) Message() string {
	if msg, ok := stopReasonMessages[c]; ok {
		return msg
	}
	return "Execution constraint violated"
}
