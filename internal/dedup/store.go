package dedup

import (
	"context"
	"time"
)

// Seen describes a fingerprint already observed.
type Seen struct {
	FirstSeen time.Time `json:"first_seen"`
	Count     int64     `json:"count"`
}

// SeenStore is the shared set of observed fingerprints.
//
// Mark must be an atomic check-and-set: among concurrent calls for the same
// fingerprint exactly one reports first == true. Marking an existing
// fingerprint increments its counter.
type SeenStore interface {
	Mark(ctx context.Context, fingerprint string) (first bool, err error)
	Lookup(ctx context.Context, fingerprint string) (Seen, bool, error)
	// Reset empties the store. Used by tests and operators only.
	Reset(ctx context.Context) error
	Close() error
}

// ExternalChecker is an optional durable backstop consulted after the seen
// set reports a first sighting.
type ExternalChecker interface {
	CheckExternalDuplicate(ctx context.Context, fingerprint string) (bool, error)
}
