package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/metrics"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
)

// ErrQueueFull is returned when the ingestion queue cannot take more work.
var ErrQueueFull = errors.New("ingestion queue full")

// Engine runs the orchestrator on a worker pool.
type Engine struct {
	orch  *Orchestrator
	rates *normalize.RateBook
	pool  *workerPool[*ingestWork]
	conf  config.EngineConf
	log   *zap.Logger
}

type ingestWork struct {
	raw     *event.RawEvent
	resultC chan *Outcome
}

// NewEngine starts the worker pool. Workers stop when ctx is cancelled or
// Shutdown is called.
func NewEngine(ctx context.Context, orch *Orchestrator, rates *normalize.RateBook, conf config.EngineConf, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{orch: orch, rates: rates, conf: conf, log: log}
	e.pool = newWorkerPool(ctx, conf.Workers, conf.QueueDepth, e.work)
	return e
}

func (e *Engine) work(ctx context.Context, w *ingestWork) {
	defer func() {
		// Process recovers stage panics itself; this guards the worker.
		if r := recover(); r != nil {
			e.log.Error("ingest worker recovered", zap.String("raw_event_id", w.raw.ID), zap.Any("panic", r))
			if w.resultC != nil {
				w.resultC <- &Outcome{RawEventID: w.raw.ID, Status: w.raw.Status, Reason: w.raw.Reason}
			}
		}
	}()
	out := e.orch.Process(ctx, w.raw)
	if w.resultC != nil {
		w.resultC <- out
	}
}

// SwapRates atomically replaces the exchange-rate snapshot.
func (e *Engine) SwapRates(t *normalize.RateTable) {
	e.rates.Swap(t)
}

// SwapStages replaces the validator, normalizer and classifier.
func (e *Engine) SwapStages(st *Stages) {
	e.orch.SwapStages(st)
}

// Rates returns the current exchange-rate snapshot.
func (e *Engine) Rates() *normalize.RateTable {
	return e.rates.Snapshot()
}

// Ingest runs one payload through the pipeline and waits for its outcome.
// On timeout the raw event id is still returned; the event keeps processing
// and will reach a terminal status on its own.
func (e *Engine) Ingest(ctx context.Context, sourceID string, ch event.Channel, payload map[string]interface{}) (*Outcome, error) {
	raw := event.NewRawEvent(sourceID, ch, payload)
	w := &ingestWork{raw: raw, resultC: make(chan *Outcome, 1)}

	if !e.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.EventsEnqueued.Inc()

	timeout := e.conf.EventTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-w.resultC:
		return out, nil
	case <-timer.C:
		return &Outcome{RawEventID: raw.ID, Status: event.StatusPending}, fmt.Errorf("event %s: processing timeout after %v", raw.ID, timeout)
	case <-ctx.Done():
		return &Outcome{RawEventID: raw.ID, Status: event.StatusPending}, ctx.Err()
	}
}

// IngestAsync enqueues a payload for background processing and returns its
// raw event id. ok is false if the queue is full.
func (e *Engine) IngestAsync(sourceID string, ch event.Channel, payload map[string]interface{}) (id string, ok bool) {
	raw := event.NewRawEvent(sourceID, ch, payload)
	if !e.pool.Submit(&ingestWork{raw: raw}) {
		metrics.EventsDropped.Inc()
		return raw.ID, false
	}
	metrics.EventsEnqueued.Inc()
	return raw.ID, true
}

// IngestBatch processes payloads concurrently and returns outcomes in input
// order. When the queue is full the caller's goroutine runs the event, so a
// batch is never partially dropped.
func (e *Engine) IngestBatch(ctx context.Context, sourceID string, ch event.Channel, payloads []map[string]interface{}) []*Outcome {
	outs := make([]*Outcome, len(payloads))
	pending := make([]chan *Outcome, len(payloads))
	ids := make([]string, len(payloads))

	for i, p := range payloads {
		raw := event.NewRawEvent(sourceID, ch, p)
		ids[i] = raw.ID
		w := &ingestWork{raw: raw, resultC: make(chan *Outcome, 1)}
		if e.pool.Submit(w) {
			metrics.EventsEnqueued.Inc()
			pending[i] = w.resultC
			continue
		}
		outs[i] = e.orch.Process(ctx, raw)
	}
	for i, c := range pending {
		if c == nil {
			continue
		}
		select {
		case outs[i] = <-c:
		case <-ctx.Done():
			outs[i] = &Outcome{RawEventID: ids[i], Status: event.StatusPending}
		}
	}
	return outs
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown stops intake and drains queued events.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
