package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/classify"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/dedup"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/metrics"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

// Stage names used in error details, logs and metrics.
const (
	StageIngest    = "ingest"
	StageValidate  = "validate"
	StageDedup     = "dedup"
	StageNormalize = "normalize"
	StageClassify  = "classify"
	StagePersist   = "persist"
)

// Stages is the set of configuration-derived stages. A reload builds a new
// Stages and swaps it in whole.
type Stages struct {
	WorkspaceID string
	Validator   *validate.Validator
	Normalizer  *normalize.Normalizer
	Classifier  *classify.Classifier
}

// Outcome is what a caller observes for one raw event.
type Outcome struct {
	RawEventID string                 `json:"raw_event_id"`
	RecordID   string                 `json:"record_id,omitempty"`
	Status     event.Status           `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	Warnings   []validate.Issue       `json:"warnings,omitempty"`
	Error      *event.PipelineError   `json:"error,omitempty"`
	Event      *event.NormalizedEvent `json:"event,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// Orchestrator drives one raw event through the pipeline and guarantees it
// ends in a terminal status.
type Orchestrator struct {
	stages atomic.Pointer[Stages]
	dedup  *dedup.Deduplicator
	store  Store
	log    *zap.Logger
}

func NewOrchestrator(st *Stages, d *dedup.Deduplicator, store Store, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{dedup: d, store: store, log: log}
	o.stages.Store(st)
	return o
}

// SwapStages atomically replaces the stages (used on hot-reload). Runs in
// flight keep the snapshot they started with.
func (o *Orchestrator) SwapStages(st *Stages) {
	o.stages.Store(st)
}

// Process runs raw through validation, deduplication, normalization,
// classification and persistence. It never returns without raw reaching a
// terminal status, and a panic in any stage fails only this event.
func (o *Orchestrator) Process(ctx context.Context, raw *event.RawEvent) (out *Outcome) {
	start := time.Now()
	out = &Outcome{RawEventID: raw.ID}
	if raw.Status.Terminal() {
		out.Status, out.Reason = raw.Status, raw.Reason
		return out
	}
	if raw.Status == "" {
		raw.Status = event.StatusPending
	}

	st := o.stages.Load()
	if raw.WorkspaceID == "" {
		raw.WorkspaceID = st.WorkspaceID
	}
	log := o.log.With(zap.String("raw_event_id", raw.ID), zap.String("source", raw.SourceID), zap.String("channel", string(raw.Channel)))

	stage := StageIngest
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline stage panicked", zap.String("stage", stage), zap.Any("panic", r), zap.Stack("stack"))
			if !raw.Status.Terminal() {
				o.fail(ctx, log, raw, out, event.NewInternalError(raw.ID, fmt.Errorf("panic in %s: %v", stage, r), stage))
			}
		}
		out.Status, out.Reason = raw.Status, raw.Reason
		elapsed := time.Since(start)
		out.DurationMs = elapsed.Milliseconds()
		metrics.EventsIngested.WithLabelValues(string(raw.Status), string(raw.Channel)).Inc()
		metrics.EventProcessingDuration.Observe(float64(elapsed) / float64(time.Millisecond))
	}()

	if err := o.store.InsertRawEvent(ctx, raw); err != nil {
		o.fail(ctx, log, raw, out, event.NewInternalError(raw.ID, fmt.Errorf("insert raw event: %w", err), stage))
		return out
	}

	stage = StageValidate
	rec, warns, err := st.Validator.Validate(raw)
	out.Warnings = warns
	for _, w := range warns {
		metrics.ValidationWarnings.WithLabelValues(w.Field).Inc()
		log.Warn("validation warning", zap.String("field", w.Field), zap.String("message", w.Message))
	}
	if err != nil {
		var details map[string]interface{}
		var verrs validate.ValidationErrors
		if errors.As(err, &verrs) {
			details = verrs.Details()
		}
		o.fail(ctx, log, raw, out, event.NewValidationError(raw.ID, err.Error(), details))
		return out
	}
	out.RecordID = rec.ID

	stage = StageDedup
	fp, unique, err := o.dedup.Claim(ctx, rec)
	if err != nil {
		o.fail(ctx, log, raw, out, event.NewInternalError(raw.ID, err, stage))
		return out
	}
	if !unique {
		log.Info("duplicate ignored", zap.String("record_id", rec.ID), zap.String("fingerprint", fp))
		o.finish(ctx, log, raw, event.StatusIgnored, event.ReasonDuplicate)
		return out
	}

	stage = StageNormalize
	ev, err := st.Normalizer.Normalize(raw.ID, rec)
	if err != nil {
		o.fail(ctx, log, raw, out, event.NewInternalError(raw.ID, err, stage))
		return out
	}
	ev.Fingerprint = fp
	if fb, _ := ev.Metadata[normalize.MetaRateFallback].(bool); fb {
		metrics.RateFallbacks.WithLabelValues(ev.Currency).Inc()
		log.Warn("no exchange rate, converted at 1.0", zap.String("currency", ev.Currency))
	}

	stage = StageClassify
	ev = st.Classifier.Classify(ev, raw.Channel, raw.Payload)

	stage = StagePersist
	if err := o.store.SaveNormalizedEvent(ctx, ev); err != nil {
		o.fail(ctx, log, raw, out, event.NewInternalError(raw.ID, fmt.Errorf("save normalized event: %w", err), stage))
		return out
	}
	out.Event = ev
	metrics.EventsClassified.WithLabelValues(string(ev.Intent)).Inc()
	o.finish(ctx, log, raw, event.StatusProcessed, "")
	return out
}

// fail records perr before moving raw to FAILED.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, raw *event.RawEvent, out *Outcome, perr *event.PipelineError) {
	out.Error = perr
	stage, _ := perr.Details["stage"].(string)
	if perr.Code == event.CodeValidation {
		stage = StageValidate
		log.Info("validation failed", zap.String("error", perr.Message))
	} else {
		log.Error("pipeline failed", zap.String("stage", stage), zap.String("error", perr.Message))
	}
	metrics.PipelineErrors.WithLabelValues(string(perr.Code), stage).Inc()

	if err := o.store.InsertError(context.WithoutCancel(ctx), perr); err != nil {
		log.Error("could not store pipeline error", zap.Error(err))
	}
	o.finish(ctx, log, raw, event.StatusFailed, perr.Message)
}

// finish writes the terminal status. The write ignores caller cancellation
// so an event is never left pending.
func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, raw *event.RawEvent, to event.Status, reason string) {
	if err := raw.Transition(to, reason); err != nil {
		log.Error("invalid status transition", zap.Error(err))
		return
	}
	if err := o.store.UpdateStatus(context.WithoutCancel(ctx), raw.ID, to, reason); err != nil {
		log.Error("could not store terminal status", zap.String("status", string(to)), zap.Error(err))
	}
}
