package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// Fingerprint is the deduplication key of a record. A source-provided
// external id is the strongest signal and wins over every other field.
// Keys are fixed-length so they fit the persisted fingerprint column.
func Fingerprint(rec *event.Record) string {
	if rec.ExternalID != "" {
		// length prefix keeps ("a:b", "c") and ("a", "b:c") apart
		key := strconv.Itoa(len(rec.Source)) + ":" + rec.Source + rec.ExternalID
		sum := sha256.Sum256([]byte(key))
		return "ext:" + hex.EncodeToString(sum[:])
	}
	parts := []string{
		rec.Amount.StringFixed(2),
		strconv.FormatInt(rec.Timestamp.UnixNano(), 10),
		rec.Source,
		strings.ToLower(rec.Type),
		strings.ToLower(rec.Category),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "sha:" + hex.EncodeToString(sum[:])
}

// Stats summarises one batch run.
type Stats struct {
	Total      int `json:"total"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
}

// BatchResult partitions a batch into first sightings and repeats.
type BatchResult struct {
	Unique     []*event.Record `json:"unique"`
	Duplicates []*event.Record `json:"duplicates"`
	Stats      Stats           `json:"stats"`
}

// Deduplicator decides whether records were seen before.
type Deduplicator struct {
	seen    SeenStore
	durable ExternalChecker
}

// New creates a Deduplicator over seen. durable may be nil.
func New(seen SeenStore, durable ExternalChecker) *Deduplicator {
	return &Deduplicator{seen: seen, durable: durable}
}

// IsDuplicate reports whether rec's fingerprint is already known, without
// recording it.
func (d *Deduplicator) IsDuplicate(ctx context.Context, rec *event.Record) (bool, error) {
	fp := Fingerprint(rec)
	_, ok, err := d.seen.Lookup(ctx, fp)
	if err != nil || ok {
		return ok, err
	}
	return d.checkDurable(ctx, fp)
}

// MarkSeen records rec. Marking twice increments the occurrence counter.
func (d *Deduplicator) MarkSeen(ctx context.Context, rec *event.Record) error {
	_, err := d.seen.Mark(ctx, Fingerprint(rec))
	return err
}

// Claim atomically records rec and reports whether this call was its first
// sighting. Concurrent claims of one fingerprint yield exactly one unique.
func (d *Deduplicator) Claim(ctx context.Context, rec *event.Record) (string, bool, error) {
	fp := Fingerprint(rec)
	first, err := d.seen.Mark(ctx, fp)
	if err != nil {
		return fp, false, err
	}
	if !first {
		return fp, false, nil
	}
	dup, err := d.checkDurable(ctx, fp)
	if err != nil {
		return fp, false, err
	}
	return fp, !dup, nil
}

// Deduplicate claims every record in order, so repeats inside the batch are
// caught as well as repeats of earlier input.
func (d *Deduplicator) Deduplicate(ctx context.Context, recs []*event.Record) (*BatchResult, error) {
	res := &BatchResult{
		Unique:     make([]*event.Record, 0, len(recs)),
		Duplicates: make([]*event.Record, 0),
	}
	for _, rec := range recs {
		_, unique, err := d.Claim(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("deduplicate record %s: %w", rec.ID, err)
		}
		if unique {
			res.Unique = append(res.Unique, rec)
		} else {
			res.Duplicates = append(res.Duplicates, rec)
		}
	}
	res.Stats = Stats{Total: len(recs), Unique: len(res.Unique), Duplicates: len(res.Duplicates)}
	return res, nil
}

// Lookup exposes the seen-set entry for rec.
func (d *Deduplicator) Lookup(ctx context.Context, rec *event.Record) (Seen, bool, error) {
	return d.seen.Lookup(ctx, Fingerprint(rec))
}

// Reset clears the seen set.
func (d *Deduplicator) Reset(ctx context.Context) error {
	return d.seen.Reset(ctx)
}

func (d *Deduplicator) checkDurable(ctx context.Context, fp string) (bool, error) {
	if d.durable == nil {
		return false, nil
	}
	dup, err := d.durable.CheckExternalDuplicate(ctx, fp)
	if err != nil {
		return false, fmt.Errorf("durable duplicate check: %w", err)
	}
	return dup, nil
}
