package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/dedup"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/pipeline"
)

func TestProcess_SaleIsProcessed(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	raw := rawEvent(map[string]interface{}{
		"amount":    100.00,
		"currency":  "USD",
		"timestamp": "2025-03-14T09:26:53Z",
		"source_id": "order_123",
		"type":      "sale",
	})
	out := o.Process(context.Background(), raw)

	require.Nil(t, out.Error)
	assert.Equal(t, event.StatusProcessed, out.Status)
	assert.Equal(t, event.StatusProcessed, store.status(raw.ID))
	assert.Equal(t, "ws-test", raw.WorkspaceID)
	require.NotNil(t, out.Event)
	assert.Equal(t, "5050.0000", out.Event.BaseAmount.StringFixed(4))
	assert.Equal(t, event.IntentRevenue, out.Event.Intent)
	assert.Equal(t, raw.ID, out.Event.RawEventID)
	assert.NotEmpty(t, out.Event.Fingerprint)
	assert.Equal(t, 1, store.normalizedCount())
	assert.Empty(t, store.errorsFor(raw.ID))
}

func TestProcess_NegativeFeeIsCostWithWarning(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	out := o.Process(context.Background(), rawEvent(map[string]interface{}{
		"amount":    -500.00,
		"currency":  "EGP",
		"timestamp": "2025-03-14T10:00:00Z",
		"type":      "fee",
	}))

	assert.Equal(t, event.StatusProcessed, out.Status)
	require.NotEmpty(t, out.Warnings)
	assert.Equal(t, "amount", out.Warnings[0].Field)
	assert.True(t, out.Event.BaseAmount.Equal(decimal.NewFromInt(-500)))
	assert.Equal(t, event.IntentCost, out.Event.Intent)
}

func TestProcess_RepeatedExternalIDIsIgnored(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	payload := map[string]interface{}{
		"amount":      42,
		"currency":    "USD",
		"timestamp":   "2025-03-14T10:00:00Z",
		"external_id": "shp_555",
	}

	first := o.Process(context.Background(), rawEvent(payload))
	second := o.Process(context.Background(), rawEvent(payload))

	assert.Equal(t, event.StatusProcessed, first.Status)
	assert.Equal(t, event.StatusIgnored, second.Status)
	assert.Equal(t, "Duplicate Detected", second.Reason)
	assert.Nil(t, second.Error)
	assert.Empty(t, store.errorsFor(second.RawEventID))
	assert.Equal(t, event.StatusIgnored, store.status(second.RawEventID))
	assert.Equal(t, 1, store.normalizedCount())
}

func TestProcess_DurableDuplicateAfterRestart(t *testing.T) {
	store := newMemStore()
	payload := map[string]interface{}{"amount": 1, "currency": "USD", "timestamp": "2025-01-01", "id": "ch_1"}

	o1 := newOrchestrator(store)
	require.Equal(t, event.StatusProcessed, o1.Process(context.Background(), rawEvent(payload)).Status)

	// fresh seen-set, same persisted rows
	o2 := newOrchestrator(store)
	out := o2.Process(context.Background(), rawEvent(payload))
	assert.Equal(t, event.StatusIgnored, out.Status)
}

func TestProcess_ValidationFailure(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)

	raw := rawEvent(map[string]interface{}{"amount": "abc", "timestamp": "2025-01-01"})
	out := o.Process(context.Background(), raw)

	assert.Equal(t, event.StatusFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, event.CodeValidation, out.Error.Code)
	assert.Equal(t, event.SeverityError, out.Error.Severity)
	assert.Len(t, out.Error.Details["issues"], 2)
	assert.Empty(t, out.RecordID)

	errs := store.errorsFor(raw.ID)
	require.Len(t, errs, 1)
	assert.Equal(t, event.StatusFailed, store.status(raw.ID))
	assert.Equal(t, []string{"raw:" + raw.ID, "error:VALIDATION_ERROR", "status:failed"}, store.opsSnapshot())
}

func TestProcess_CorruptRateTableIsInternalError(t *testing.T) {
	store := newMemStore()
	rates := normalize.NewRateBook(normalize.NewRateTable("EGP", map[string]decimal.Decimal{"USD": decimal.NewFromInt(-2)}))
	o := pipeline.NewOrchestrator(testStages(rates), dedup.New(dedup.NewMemoryStore(0), nil), store, nil)

	out := o.Process(context.Background(), rawEvent(map[string]interface{}{
		"amount": 5, "currency": "USD", "timestamp": "2025-01-01",
	}))

	assert.Equal(t, event.StatusFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, event.CodeInternal, out.Error.Code)
	assert.Equal(t, event.SeverityFatal, out.Error.Severity)
	assert.Equal(t, pipeline.StageNormalize, out.Error.Details["stage"])
}

func TestProcess_PanicFailsOnlyThatEvent(t *testing.T) {
	store := newMemStore()
	store.panicOnSave = func(ev *event.NormalizedEvent) bool { return ev.ExternalID == "boom" }
	o := newOrchestrator(store)

	bad := rawEvent(map[string]interface{}{"amount": 1, "currency": "USD", "timestamp": "2025-01-01", "external_id": "boom"})
	good := rawEvent(map[string]interface{}{"amount": 2, "currency": "USD", "timestamp": "2025-01-01", "external_id": "fine"})

	badOut := o.Process(context.Background(), bad)
	goodOut := o.Process(context.Background(), good)

	assert.Equal(t, event.StatusFailed, badOut.Status)
	require.NotNil(t, badOut.Error)
	assert.Equal(t, event.CodeInternal, badOut.Error.Code)
	assert.Equal(t, pipeline.StagePersist, badOut.Error.Details["stage"])
	assert.Contains(t, badOut.Error.Message, "disk on fire")
	assert.Equal(t, event.StatusFailed, store.status(bad.ID))

	assert.Equal(t, event.StatusProcessed, goodOut.Status)
}

func TestProcess_StoreFailures(t *testing.T) {
	t.Run("raw insert", func(t *testing.T) {
		store := newMemStore()
		store.insertRawErr = errors.New("db down")
		o := newOrchestrator(store)

		out := o.Process(context.Background(), rawEvent(map[string]interface{}{"amount": 1, "currency": "USD"}))
		assert.Equal(t, event.StatusFailed, out.Status)
		require.NotNil(t, out.Error)
		assert.Equal(t, pipeline.StageIngest, out.Error.Details["stage"])
	})

	t.Run("save normalized", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = errors.New("constraint violated")
		o := newOrchestrator(store)

		raw := rawEvent(map[string]interface{}{"amount": 1, "currency": "USD", "timestamp": "2025-01-01"})
		out := o.Process(context.Background(), raw)
		assert.Equal(t, event.StatusFailed, out.Status)
		assert.Equal(t, pipeline.StagePersist, out.Error.Details["stage"])
		assert.Equal(t, event.StatusFailed, store.status(raw.ID))
	})
}

func TestProcess_RetryAfterPersistFailureIsIgnored(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("connection reset")
	o := newOrchestrator(store)
	payload := map[string]interface{}{"amount": 7, "currency": "USD", "timestamp": "2025-01-01", "external_id": "shp_retry"}

	first := o.Process(context.Background(), rawEvent(payload))
	require.Equal(t, event.StatusFailed, first.Status)
	assert.Equal(t, event.CodeInternal, first.Error.Code)

	// the claim outlives the failed attempt, so a redelivery is a repeat
	store.saveErr = nil
	retry := o.Process(context.Background(), rawEvent(payload))
	assert.Equal(t, event.StatusIgnored, retry.Status)
	assert.Equal(t, event.ReasonDuplicate, retry.Reason)
	assert.Nil(t, retry.Error)
	assert.Equal(t, 0, store.normalizedCount())
	assert.Len(t, store.errorsFor(first.RawEventID), 1)
	assert.Empty(t, store.errorsFor(retry.RawEventID))

	// a fresh seen set lets the redelivery through
	out := newOrchestrator(store).Process(context.Background(), rawEvent(payload))
	assert.Equal(t, event.StatusProcessed, out.Status)
}

func TestProcess_TerminalStatusSurvivesCancellation(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := rawEvent(map[string]interface{}{"currency": "USD"})
	out := o.Process(ctx, raw)
	assert.Equal(t, event.StatusFailed, out.Status)
	assert.Equal(t, event.StatusFailed, store.status(raw.ID))
}

func TestProcess_AlreadyTerminalIsUntouched(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	raw := rawEvent(map[string]interface{}{"amount": 1})
	raw.Status = event.StatusIgnored

	out := o.Process(context.Background(), raw)
	assert.Equal(t, event.StatusIgnored, out.Status)
	assert.Empty(t, store.opsSnapshot())
}

func TestProcess_ConcurrentSameFingerprintAcceptsOnce(t *testing.T) {
	store := newMemStore()
	o := newOrchestrator(store)
	payload := map[string]interface{}{
		"amount": 10, "currency": "USD", "timestamp": time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}

	const n = 40
	outs := make([]*pipeline.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = o.Process(context.Background(), rawEvent(payload))
		}(i)
	}
	wg.Wait()

	processed, ignored := 0, 0
	for _, out := range outs {
		switch out.Status {
		case event.StatusProcessed:
			processed++
		case event.StatusIgnored:
			ignored++
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, n-1, ignored)
	assert.Equal(t, 1, store.normalizedCount())
}

func TestSwapStages(t *testing.T) {
	store := newMemStore()
	rates := testRates()
	o := pipeline.NewOrchestrator(testStages(rates), dedup.New(dedup.NewMemoryStore(0), nil), store, nil)

	payload := map[string]interface{}{"amount": 3, "currency": "GBP", "timestamp": "2025-01-01"}
	assert.Equal(t, event.StatusFailed, o.Process(context.Background(), rawEvent(payload)).Status)

	st := testStages(rates)
	st.Validator = newValidatorWith("GBP", "EGP")
	o.SwapStages(st)

	out := o.Process(context.Background(), rawEvent(payload))
	assert.Equal(t, event.StatusProcessed, out.Status)
	assert.Equal(t, true, out.Event.Metadata[normalize.MetaRateFallback])
}
