package uploadmodel

import (
	"strconv"
	"time"
)

// Endpoints captures the four absolute backend URLs a session was created
// with, so a later resume does not require re-plumbing (§3).
type Endpoints struct {
	InitiateURL    string `json:"initiate_url"`
	PresignPartURL string `json:"presign_part_url"`
	CompleteURL    string `json:"complete_url"`
	AbortURL       string `json:"abort_url"`
}

// ConstraintSet is the execution-constraint configuration attached to a
// session (§4.6). It is persisted as an opaque JSON blob on UploadSession.
type ConstraintSet struct {
	NetworkType             NetworkType `json:"network_type"`
	RequiresCharging        bool        `json:"requires_charging"`
	RequiresBatteryNotLow   bool        `json:"requires_battery_not_low"`
	RequiresStorageNotLow   bool        `json:"requires_storage_not_low"`
	AutoResumeWhenSatisfied bool        `json:"auto_resume_when_satisfied"`
	AutoResumeDelayMs       int64       `json:"auto_resume_delay_ms"`
}

// DefaultConstraintSet returns a permissive constraint set suitable as a
// fallback default: no network/power/storage requirements, no auto-resume.
func DefaultConstraintSet() ConstraintSet {
	return ConstraintSet{
		NetworkType:             NetworkNotRequired,
		RequiresCharging:        false,
		RequiresBatteryNotLow:   false,
		RequiresStorageNotLow:   false,
		AutoResumeWhenSatisfied: false,
		AutoResumeDelayMs:       0,
	}
}

// UploadSession is one persistent attempt to upload one local file as one
// remote object (§3).
type UploadSession struct {
	SessionID   string
	UploadID    string
	LocalPath   string
	RemotePath  string
	FileName    string
	ContentType string
	TotalSize   uint64
	ChunkSize   uint64
	TotalParts  int

	Status SessionStatus

	Endpoints Endpoints

	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time

	ErrorMessage *string

	Constraints ConstraintSet

	PauseReason           *string
	ConstraintViolatedAt  *time.Time
	StopReasonCode        *StopReasonCode
}

// UploadPart is a contiguous, independently uploadable byte range of a
// session's local file (§3).
type UploadPart struct {
	SessionID  string
	PartNumber int
	StartByte  uint64
	EndByte    uint64
	PartSize   uint64

	Status PartStatus
	ETag   *string

	UploadedBytes uint64
	RetryCount    int
	UpdatedAt     time.Time
}

// PartID returns the composite primary key `{session_id}:{part_number}`.
func (p UploadPart) PartID() string {
	return PartID(p.SessionID, p.PartNumber)
}

// PartID constructs the composite primary key for a part.
func PartID(sessionID string, partNumber int) string {
	return sessionID + ":" + strconv.Itoa(partNumber)
}

// SessionWithParts bundles a session and its parts for atomic snapshot reads
// (get_session_with_parts, observation streams).
type SessionWithParts struct {
	Session UploadSession
	Parts   []UploadPart
}
