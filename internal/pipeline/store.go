package pipeline

import (
	"context"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// Store is the persistence collaborator of the orchestrator.
type Store interface {
	InsertRawEvent(ctx context.Context, raw *event.RawEvent) error
	UpdateStatus(ctx context.Context, rawEventID string, status event.Status, reason string) error
	InsertError(ctx context.Context, perr *event.PipelineError) error
	SaveNormalizedEvent(ctx context.Context, ev *event.NormalizedEvent) error
	// CheckExternalDuplicate reports whether a normalized event with this
	// fingerprint is already persisted.
	CheckExternalDuplicate(ctx context.Context, fingerprint string) (bool, error)
}
