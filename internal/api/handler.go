package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/metrics"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/pipeline"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/store"
)

// Ingester is the part of the pipeline engine the handler drives.
type Ingester interface {
	Ingest(ctx context.Context, sourceID string, ch event.Channel, payload map[string]interface{}) (*pipeline.Outcome, error)
	IngestAsync(sourceID string, ch event.Channel, payload map[string]interface{}) (string, bool)
	QueueUtilization() float64
	Rates() *normalize.RateTable
}

// EventReader serves the read side of the store.
type EventReader interface {
	GetRawEvent(ctx context.Context, id string) (*event.RawEvent, error)
	GetNormalizedByRawEvent(ctx context.Context, rawEventID string) (*event.NormalizedEvent, error)
	ListErrors(ctx context.Context, rawEventID string) ([]*event.PipelineError, error)
	ListNormalizedEvents(ctx context.Context, f store.Filter) ([]*event.NormalizedEvent, error)
	Ping(ctx context.Context) error
}

// Reloader re-reads configuration from disk.
type Reloader interface {
	Reload() (*config.Config, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      Ingester
	events   EventReader
	reloader Reloader
	conf     config.HTTPConf
	limits   *sourceLimiter
	log      *zap.Logger
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng Ingester, events EventReader, reloader Reloader, conf config.HTTPConf, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		eng:      eng,
		events:   events,
		reloader: reloader,
		conf:     conf,
		limits:   newSourceLimiter(conf.RateLimitRPS, conf.Burst),
		log:      log,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/sources/{source}/events", h.rateLimited(h.ingestEvent))
	h.mux.HandleFunc("POST /v1/sources/{source}/events/batch", h.rateLimited(h.ingestBatch))
	h.mux.HandleFunc("GET /v1/events", h.listEvents)
	h.mux.HandleFunc("GET /v1/events/{id}", h.getEvent)
	h.mux.HandleFunc("GET /v1/rates", h.listRates)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(log, h.mux)
}

// POST /v1/sources/{source}/events: synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := h.decode(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload must be a non-empty JSON object")
		return
	}

	out, err := h.eng.Ingest(r.Context(), r.PathValue("source"), event.ChannelWebhook, payload)
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil && out != nil:
		// still running; the id can be polled
		writeJSON(w, http.StatusAccepted, out)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, outcomeStatus(out), out)
}

// POST /v1/sources/{source}/events/batch: async batch ingestion.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var payloads []map[string]interface{}
	if err := h.decode(w, r, &payloads); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payloads) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(payloads) > h.conf.MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(payloads), h.conf.MaxBatchSize))
		return
	}

	source := r.PathValue("source")
	ids := make([]string, 0, len(payloads))
	rejected := 0
	for _, p := range payloads {
		id, ok := h.eng.IngestAsync(source, event.ChannelWebhook, p)
		if !ok {
			rejected++
			continue
		}
		ids = append(ids, id)
	}

	status := http.StatusAccepted
	if len(ids) == 0 {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]interface{}{
		"total":         len(payloads),
		"queued":        len(ids),
		"rejected":      rejected,
		"raw_event_ids": ids,
	})
}

// GET /v1/events/{id}: raw event with its normalized event and errors.
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	raw, err := h.events.GetRawEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("raw event %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"raw_event": raw}
	if raw.Status == event.StatusProcessed {
		ev, err := h.events.GetNormalizedByRawEvent(r.Context(), id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["normalized_event"] = ev
	}
	if raw.Status == event.StatusFailed {
		errs, err := h.events.ListErrors(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["errors"] = errs
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/events?workspace=&intent=&from=&to=&limit=: normalized events.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{WorkspaceID: q.Get("workspace")}
	if v := q.Get("intent"); v != "" {
		f.Intent = event.Intent(strings.ToUpper(v))
		if !f.Intent.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown intent %q", v))
			return
		}
	}
	var err error
	if f.From, err = parseDay(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = parseDay(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	evs, err := h.events.ListNormalizedEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evs, "count": len(evs)})
}

// GET /v1/rates: current exchange-rate snapshot.
func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	t := h.eng.Rates()
	if t == nil {
		writeError(w, http.StatusServiceUnavailable, "no exchange rates loaded")
		return
	}
	rates := make(map[string]string, len(t.Codes()))
	for code, rate := range t.Map() {
		rates[code] = rate.String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"base":  t.Base,
		"rates": rates,
	})
}

// POST /v1/config/reload: re-read the config; reload callbacks swap rates
// and stages.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reloader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":      true,
		"version":       cfg.Version,
		"base_currency": cfg.Pipeline.BaseCurrency,
		"rules_count":   len(cfg.Classifier.Rules),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the queue is >80% full or the store is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.events.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "store unavailable",
			"error":  err.Error(),
		})
		return
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

// decode reads a size-limited JSON body. Numbers stay json.Number so
// amounts are never routed through float64.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.conf.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func outcomeStatus(out *pipeline.Outcome) int {
	if out.Error == nil {
		return http.StatusOK
	}
	if out.Error.Code == event.CodeValidation {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
