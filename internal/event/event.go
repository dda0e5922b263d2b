package event

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Channel is the ingress path a raw event arrived through.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelFile    Channel = "file"
	ChannelAPI     Channel = "api"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWebhook, ChannelFile, ChannelAPI:
		return true
	}
	return false
}

// Status is the processing status of a RawEvent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusIgnored   Status = "ignored"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed || s == StatusIgnored
}

// RawEvent is the untyped payload as received plus ingestion metadata.
// Payload is never modified after ingress; Status only moves through Transition.
type RawEvent struct {
	ID          string                 `json:"id"`
	SourceID    string                 `json:"source_id"`
	Channel     Channel                `json:"channel"`
	WorkspaceID string                 `json:"workspace_id,omitempty"`
	ReceivedAt  time.Time              `json:"received_at"`
	Status      Status                 `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
}

// NewRawEvent stamps a payload arriving from sourceID over ch. The payload
// map is copied at the top level so later caller edits do not leak in.
func NewRawEvent(sourceID string, ch Channel, payload map[string]interface{}) *RawEvent {
	return &RawEvent{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		Channel:    ch,
		ReceivedAt: time.Now().UTC(),
		Status:     StatusPending,
		Payload:    maps.Clone(payload),
	}
}

// Transition moves a pending event into a terminal status.
func (r *RawEvent) Transition(to Status, reason string) error {
	if r.Status.Terminal() {
		return fmt.Errorf("raw event %s: already %s, cannot move to %s", r.ID, r.Status, to)
	}
	if !to.Terminal() {
		return fmt.Errorf("raw event %s: %s is not a terminal status", r.ID, to)
	}
	r.Status = to
	r.Reason = reason
	return nil
}
