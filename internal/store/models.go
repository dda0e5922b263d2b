package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// RawEventModel is the database row of a raw event.
type RawEventModel struct {
	ID          string                 `gorm:"type:varchar(36);primaryKey"`
	SourceID    string                 `gorm:"type:varchar(100);index"`
	Channel     string                 `gorm:"type:varchar(20);not null"`
	WorkspaceID string                 `gorm:"type:varchar(100);index"`
	Status      string                 `gorm:"type:varchar(20);not null;index"`
	Reason      string                 `gorm:"type:text"`
	Payload     map[string]interface{} `gorm:"type:jsonb;serializer:json"`
	ReceivedAt  time.Time              `gorm:"not null"`
	UpdatedAt   time.Time
}

func (RawEventModel) TableName() string { return "raw_events" }

func rawEventToModel(r *event.RawEvent) *RawEventModel {
	return &RawEventModel{
		ID:          r.ID,
		SourceID:    r.SourceID,
		Channel:     string(r.Channel),
		WorkspaceID: r.WorkspaceID,
		Status:      string(r.Status),
		Reason:      r.Reason,
		Payload:     r.Payload,
		ReceivedAt:  r.ReceivedAt,
	}
}

func (m *RawEventModel) toDomain() *event.RawEvent {
	return &event.RawEvent{
		ID:          m.ID,
		SourceID:    m.SourceID,
		Channel:     event.Channel(m.Channel),
		WorkspaceID: m.WorkspaceID,
		ReceivedAt:  m.ReceivedAt,
		Status:      event.Status(m.Status),
		Reason:      m.Reason,
		Payload:     m.Payload,
	}
}

// PipelineErrorModel is the database row of a pipeline error.
type PipelineErrorModel struct {
	ID         uint                   `gorm:"primaryKey;autoIncrement"`
	RawEventID string                 `gorm:"type:varchar(36);not null;index"`
	Code       string                 `gorm:"type:varchar(40);not null;index"`
	Message    string                 `gorm:"type:text"`
	Severity   string                 `gorm:"type:varchar(10);not null"`
	Details    map[string]interface{} `gorm:"type:jsonb;serializer:json"`
	CreatedAt  time.Time
}

func (PipelineErrorModel) TableName() string { return "pipeline_errors" }

func (m *PipelineErrorModel) toDomain() *event.PipelineError {
	return &event.PipelineError{
		RawEventID: m.RawEventID,
		Code:       event.Code(m.Code),
		Message:    m.Message,
		Severity:   event.Severity(m.Severity),
		Details:    m.Details,
	}
}

// NormalizedEventModel is the database row of a normalized event. The
// fingerprint is unique so the table doubles as the durable dedup record.
type NormalizedEventModel struct {
	ID           string                 `gorm:"type:varchar(36);primaryKey"`
	RawEventID   string                 `gorm:"type:varchar(36);not null;uniqueIndex"`
	WorkspaceID  string                 `gorm:"type:varchar(100);index:idx_normalized_ws_date,priority:1"`
	Amount       decimal.Decimal        `gorm:"type:numeric;not null"`
	Currency     string                 `gorm:"type:char(3);not null"`
	BaseAmount   decimal.Decimal        `gorm:"type:numeric(24,4);not null"`
	BaseCurrency string                 `gorm:"type:char(3);not null"`
	ExchangeRate decimal.Decimal        `gorm:"type:numeric;not null"`
	Date         time.Time              `gorm:"not null;index:idx_normalized_ws_date,priority:2"`
	Intent       string                 `gorm:"type:varchar(20);not null;index"`
	Description  string                 `gorm:"type:text"`
	ExternalID   string                 `gorm:"type:varchar(255);index"`
	Fingerprint  string                 `gorm:"type:varchar(100);uniqueIndex"`
	Metadata     map[string]interface{} `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

func (NormalizedEventModel) TableName() string { return "normalized_events" }

func normalizedToModel(e *event.NormalizedEvent) *NormalizedEventModel {
	return &NormalizedEventModel{
		ID:           e.ID,
		RawEventID:   e.RawEventID,
		WorkspaceID:  e.WorkspaceID,
		Amount:       e.Amount,
		Currency:     e.Currency,
		BaseAmount:   e.BaseAmount,
		BaseCurrency: e.BaseCurrency,
		ExchangeRate: e.ExchangeRate,
		Date:         e.Date,
		Intent:       string(e.Intent),
		Description:  e.Description,
		ExternalID:   e.ExternalID,
		Fingerprint:  e.Fingerprint,
		Metadata:     e.Metadata,
	}
}

func (m *NormalizedEventModel) toDomain() *event.NormalizedEvent {
	return &event.NormalizedEvent{
		ID:           m.ID,
		RawEventID:   m.RawEventID,
		WorkspaceID:  m.WorkspaceID,
		Amount:       m.Amount,
		Currency:     m.Currency,
		BaseAmount:   m.BaseAmount,
		BaseCurrency: m.BaseCurrency,
		ExchangeRate: m.ExchangeRate,
		Date:         m.Date,
		Intent:       event.Intent(m.Intent),
		Description:  m.Description,
		ExternalID:   m.ExternalID,
		Fingerprint:  m.Fingerprint,
		Metadata:     m.Metadata,
	}
}
