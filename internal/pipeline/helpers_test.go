package pipeline_test

import (
	"context"
	"errors"
	"sync"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/classify"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/dedup"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/pipeline"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

// memStore is an in-memory pipeline.Store that records the order of writes.
type memStore struct {
	mu         sync.Mutex
	raw        map[string]*event.RawEvent
	errs       []*event.PipelineError
	normalized map[string]*event.NormalizedEvent // by fingerprint
	ops        []string

	insertRawErr error
	saveErr      error
	panicOnSave  func(ev *event.NormalizedEvent) bool
	block        chan struct{} // when set, InsertRawEvent waits on it
	entered      chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		raw:        make(map[string]*event.RawEvent),
		normalized: make(map[string]*event.NormalizedEvent),
	}
}

func (s *memStore) InsertRawEvent(_ context.Context, raw *event.RawEvent) error {
	if s.block != nil {
		s.entered <- struct{}{}
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertRawErr != nil {
		return s.insertRawErr
	}
	cp := *raw
	s.raw[raw.ID] = &cp
	s.ops = append(s.ops, "raw:"+raw.ID)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status event.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raw[id]
	if !ok {
		return errors.New("no such raw event")
	}
	r.Status, r.Reason = status, reason
	s.ops = append(s.ops, "status:"+string(status))
	return nil
}

func (s *memStore) InsertError(_ context.Context, perr *event.PipelineError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, perr)
	s.ops = append(s.ops, "error:"+string(perr.Code))
	return nil
}

func (s *memStore) SaveNormalizedEvent(_ context.Context, ev *event.NormalizedEvent) error {
	if s.panicOnSave != nil && s.panicOnSave(ev) {
		panic("disk on fire")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.normalized[ev.Fingerprint] = ev
	s.ops = append(s.ops, "normalized")
	return nil
}

func (s *memStore) CheckExternalDuplicate(_ context.Context, fp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.normalized[fp]
	return ok, nil
}

func (s *memStore) status(id string) event.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.raw[id]; ok {
		return r.Status
	}
	return ""
}

func (s *memStore) errorsFor(id string) []*event.PipelineError {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.PipelineError
	for _, e := range s.errs {
		if e.RawEventID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) normalizedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.normalized)
}

func (s *memStore) opsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

var _ pipeline.Store = (*memStore)(nil)

func testRates() *normalize.RateBook {
	return normalize.NewRateBook(normalize.NewRateTableFromFloats("EGP", map[string]float64{"USD": 50.5}))
}

func testStages(rates normalize.RateSource) *pipeline.Stages {
	return &pipeline.Stages{
		WorkspaceID: "ws-test",
		Validator: validate.New(validate.Options{
			Currencies:   []string{"EGP", "USD", "EUR"},
			KnownSources: []string{"shopify", "stripe", "order_123"},
		}),
		Normalizer: normalize.New(rates, normalize.Options{WorkspaceID: "ws-test"}),
		Classifier: classify.New(classify.Options{}),
	}
}

func newOrchestrator(store *memStore) *pipeline.Orchestrator {
	d := dedup.New(dedup.NewMemoryStore(0), store)
	return pipeline.NewOrchestrator(testStages(testRates()), d, store, nil)
}

func rawEvent(payload map[string]interface{}) *event.RawEvent {
	return event.NewRawEvent("shopify", event.ChannelWebhook, payload)
}

func newValidatorWith(currencies ...string) *validate.Validator {
	return validate.New(validate.Options{Currencies: currencies, KnownSources: []string{"shopify"}})
}
