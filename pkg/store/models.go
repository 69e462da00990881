package store

import (
	"encoding/json"
	"time"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// sessionModel is the GORM row for an UploadSession.
type sessionModel struct {
	SessionID   string `gorm:"primaryKey;size:36"`
	UploadID    string `gorm:"size:255"`
	LocalPath   string `gorm:"not null;index;size:1024"`
	RemotePath  string `gorm:"size:1024"`
	FileName    string `gorm:"size:512"`
	ContentType string `gorm:"size:255"`
	TotalSize   uint64
	ChunkSize   uint64
	TotalParts  int

	Status string `gorm:"not null;size:32;index"`

	InitiateURL    string `gorm:"size:2048"`
	PresignPartURL string `gorm:"size:2048"`
	CompleteURL    string `gorm:"size:2048"`
	AbortURL       string `gorm:"size:2048"`

	MaxRetries int
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`

	ErrorMessage string `gorm:"type:text"`

	ConstraintsBlob string `gorm:"type:text"`

	PauseReason          string `gorm:"type:text"`
	ConstraintViolatedAt *time.Time
	StopReasonCode       *int
}

// TableName returns the table name for sessionModel.
func (sessionModel) TableName() string {
	return "upload_sessions"
}

// partModel is the GORM row for an UploadPart.
type partModel struct {
	PartID     string `gorm:"primaryKey;size:64"`
	SessionID  string `gorm:"not null;uniqueIndex:idx_parts_session_number;index;size:36"`
	PartNumber int    `gorm:"not null;uniqueIndex:idx_parts_session_number"`
	StartByte  uint64
	EndByte    uint64
	PartSize   uint64

	Status string `gorm:"not null;size:16;index"`
	ETag   *string `gorm:"size:255"`

	UploadedBytes uint64
	RetryCount    int
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for partModel.
func (partModel) TableName() string {
	return "upload_parts"
}

// allModels returns every GORM model the store manages, for AutoMigrate.
func allModels() []any {
	return []any{&sessionModel{}, &partModel{}}
}

func toSessionModel(s *uploadmodel.UploadSession) *sessionModel {
	m := &sessionModel{
		SessionID:      s.SessionID,
		UploadID:       s.UploadID,
		LocalPath:      s.LocalPath,
		RemotePath:     s.RemotePath,
		FileName:       s.FileName,
		ContentType:    s.ContentType,
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalParts:     s.TotalParts,
		Status:         string(s.Status),
		InitiateURL:    s.Endpoints.InitiateURL,
		PresignPartURL: s.Endpoints.PresignPartURL,
		CompleteURL:    s.Endpoints.CompleteURL,
		AbortURL:       s.Endpoints.AbortURL,
		MaxRetries:     s.MaxRetries,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.ErrorMessage != nil {
		m.ErrorMessage = *s.ErrorMessage
	}
	if blob, err := json.Marshal(s.Constraints); err == nil {
		m.ConstraintsBlob = string(blob)
	}
	if s.PauseReason != nil {
		m.PauseReason = *s.PauseReason
	}
	m.ConstraintViolatedAt = s.ConstraintViolatedAt
	if s.StopReasonCode != nil {
		code := int(*s.StopReasonCode)
		m.StopReasonCode = &code
	}
	return m
}

func fromSessionModel(m *sessionModel) uploadmodel.UploadSession {
	s := uploadmodel.UploadSession{
		SessionID:   m.SessionID,
		UploadID:    m.UploadID,
		LocalPath:   m.LocalPath,
		RemotePath:  m.RemotePath,
		FileName:    m.FileName,
		ContentType: m.ContentType,
		TotalSize:   m.TotalSize,
		ChunkSize:   m.ChunkSize,
		TotalParts:  m.TotalParts,
		Status:      uploadmodel.SessionStatus(m.Status),
		Endpoints: uploadmodel.Endpoints{
			InitiateURL:    m.InitiateURL,
			PresignPartURL: m.PresignPartURL,
			CompleteURL:    m.CompleteURL,
			AbortURL:       m.AbortURL,
		},
		MaxRetries:           m.MaxRetries,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		ConstraintViolatedAt: m.ConstraintViolatedAt,
	}
	if m.ErrorMessage != "" {
		msg := m.ErrorMessage
		s.ErrorMessage = &msg
	}
	var constraints uploadmodel.ConstraintSet
	if m.ConstraintsBlob != "" {
		if err := json.Unmarshal([]byte(m.ConstraintsBlob), &constraints); err == nil {
			s.Constraints = constraints
		}
	}
	if m.PauseReason != "" {
		reason := m.PauseReason
		s.PauseReason = &reason
	}
	if m.StopReasonCode != nil {
		code := uploadmodel.StopReasonCode(*m.StopReasonCode)
		s.StopReasonCode = &code
	}
	return s
}

func toPartModel(p uploadmodel.UploadPart) *partModel {
	return &partModel{
		PartID:        p.PartID(),
		SessionID:     p.SessionID,
		PartNumber:    p.PartNumber,
		StartByte:     p.StartByte,
		EndByte:       p.EndByte,
		PartSize:      p.PartSize,
		Status:        string(p.Status),
		ETag:          p.ETag,
		UploadedBytes: p.UploadedBytes,
		RetryCount:    p.RetryCount,
		UpdatedAt:     p.UpdatedAt,
	}
}

func marshalConstraints(c uploadmodel.ConstraintSet) (string, error) {
	blob, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

func fromPartModel(m *partModel) uploadmodel.UploadPart {
	return uploadmodel.UploadPart{
		SessionID:     m.SessionID,
		PartNumber:    m.PartNumber,
		StartByte:     m.StartByte,
		EndByte:       m.EndByte,
		PartSize:      m.PartSize,
		Status:        uploadmodel.PartStatus(m.Status),
		ETag:          m.ETag,
		UploadedBytes: m.UploadedBytes,
		RetryCount:    m.RetryCount,
		UpdatedAt:     m.UpdatedAt,
	}
}
