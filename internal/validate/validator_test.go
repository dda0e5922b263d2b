package validate_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

var arrival = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newValidator() *validate.Validator {
	return validate.New(validate.Options{
		Currencies:   []string{"USD", "EUR", "EGP", "GBP"},
		KnownSources: []string{"shopify", "stripe", "order_123"},
	})
}

func makeRaw(payload map[string]interface{}) *event.RawEvent {
	return &event.RawEvent{
		ID:         "raw-1",
		SourceID:   "shopify",
		Channel:    event.ChannelWebhook,
		ReceivedAt: arrival,
		Status:     event.StatusPending,
		Payload:    payload,
	}
}

func fields(issues []validate.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Field
	}
	return out
}

func TestValidate_SaleScenario(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rec, warns, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"amount":    100.00,
		"currency":  "USD",
		"timestamp": now.Format(time.RFC3339),
		"source_id": "order_123",
		"type":      "sale",
	}))
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", rec.Currency)
	assert.True(t, rec.Timestamp.Equal(now))
	assert.Equal(t, "order_123", rec.Source)
	assert.Equal(t, "sale", rec.Type)
	assert.NotEmpty(t, rec.ID)
	assert.Empty(t, rec.ExternalID)
}

func TestValidate_NegativeFeeWarns(t *testing.T) {
	rec, warns, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"amount":   -500.00,
		"currency": "EGP",
		"type":     "fee",
	}))
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(-500)))
	assert.Contains(t, fields(warns), "amount")
	for _, w := range warns {
		assert.Equal(t, event.SeverityWarn, w.Severity)
	}
	// no timestamp in the payload: arrival time is used
	assert.True(t, rec.Timestamp.Equal(arrival))
	assert.Contains(t, fields(warns), "timestamp")
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	rec, _, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"amount":    "not-a-number",
		"currency":  "US",
		"timestamp": "tomorrow",
	}))
	require.Error(t, err)
	assert.Nil(t, rec)

	var verrs validate.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 3)
	assert.ElementsMatch(t, []string{"amount", "currency", "timestamp"}, fields(verrs))
	for _, is := range verrs {
		assert.Equal(t, event.SeverityError, is.Severity)
	}
	assert.Contains(t, verrs[1].Message, "length 2")
	assert.Len(t, verrs.Details()["issues"], 3)
}

func TestValidate_NegativeAmountRules(t *testing.T) {
	cases := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{name: "sale rejects negative", typ: "sale", wantErr: true},
		{name: "sale is case-insensitive", typ: "SALE", wantErr: true},
		{name: "fee warns", typ: "fee"},
		{name: "no type warns", typ: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := map[string]interface{}{"amount": -10.5, "currency": "usd", "timestamp": "2025-01-02T03:04:05Z"}
			if tc.typ != "" {
				p["type"] = tc.typ
			}
			rec, warns, err := newValidator().Validate(makeRaw(p))
			if tc.wantErr {
				var verrs validate.ValidationErrors
				require.True(t, errors.As(err, &verrs))
				assert.Equal(t, []string{"amount"}, fields(verrs))
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"amount"}, fields(warns))
			assert.Equal(t, "USD", rec.Currency)
		})
	}
}

func TestValidate_ZeroAmountWarns(t *testing.T) {
	_, warns, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"amount": 0, "currency": "EUR", "timestamp": "2025-01-02",
	}))
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Equal(t, "amount", warns[0].Field)
}

func TestValidate_Aliases(t *testing.T) {
	rec, _, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"total":          json.Number("42.10"),
		"currency_code":  "gbp",
		"created_at":     float64(1700000000),
		"provider":       "Stripe",
		"event_type":     "Order",
		"category":       "books",
		"transaction_id": "tx_9",
		"memo":           "paperbacks",
	}))
	require.NoError(t, err)
	assert.Equal(t, "42.1", rec.Amount.String())
	assert.Equal(t, "GBP", rec.Currency)
	assert.Equal(t, int64(1700000000), rec.Timestamp.Unix())
	assert.Equal(t, "stripe", rec.Source)
	assert.Equal(t, "order", rec.Type)
	assert.Equal(t, "books", rec.Category)
	assert.Equal(t, "tx_9", rec.ExternalID)
	assert.Equal(t, "tx_9", rec.ID)
	assert.Equal(t, "paperbacks", rec.Description)
}

func TestValidate_CurrencyErrors(t *testing.T) {
	cases := []struct {
		name     string
		currency interface{}
	}{
		{name: "missing", currency: nil},
		{name: "too long", currency: "DOLLARS"},
		{name: "unknown code", currency: "XYZ"},
		{name: "not a string", currency: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := map[string]interface{}{"amount": 1, "timestamp": "2025-01-02"}
			if tc.currency != nil {
				p["currency"] = tc.currency
			}
			_, _, err := newValidator().Validate(makeRaw(p))
			var verrs validate.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, []string{"currency"}, fields(verrs))
		})
	}
}

func TestValidate_UnknownSourceWarnsOnly(t *testing.T) {
	rec, warns, err := newValidator().Validate(makeRaw(map[string]interface{}{
		"amount": 5, "currency": "USD", "timestamp": "2025-01-02", "source": "  Etsy ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "etsy", rec.Source)
	assert.Equal(t, []string{"source"}, fields(warns))
}

func TestValidate_SourceFallsBackToRawSource(t *testing.T) {
	raw := makeRaw(map[string]interface{}{"amount": 5, "currency": "USD", "timestamp": "2025-01-02"})
	raw.SourceID = "Shopify"
	rec, warns, err := newValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "shopify", rec.Source)
	assert.Empty(t, warns)

	raw.SourceID = ""
	_, _, err = newValidator().Validate(raw)
	var verrs validate.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"source"}, fields(verrs))
}

func TestValidate_EmptyPayload(t *testing.T) {
	_, _, err := newValidator().Validate(makeRaw(nil))
	require.Error(t, err)
	_, _, err = newValidator().Validate(nil)
	require.Error(t, err)
}

func TestValidate_NonFiniteAmount(t *testing.T) {
	for _, v := range []interface{}{math.NaN(), math.Inf(1), "", "NaN", []int{1}} {
		_, _, err := newValidator().Validate(makeRaw(map[string]interface{}{
			"amount": v, "currency": "USD", "timestamp": "2025-01-02",
		}))
		var verrs validate.ValidationErrors
		require.True(t, errors.As(err, &verrs), "value %v", v)
		assert.Equal(t, []string{"amount"}, fields(verrs))
	}
}

func TestValidate_SyntheticIDIsStable(t *testing.T) {
	p := func() map[string]interface{} {
		return map[string]interface{}{"amount": "19.90", "currency": "USD", "timestamp": "2025-05-01T10:00:00Z", "source": "shopify"}
	}
	a, _, err := newValidator().Validate(makeRaw(p()))
	require.NoError(t, err)
	b, _, err := newValidator().Validate(makeRaw(p()))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	// trailing zeros and float input reduce to the same id
	q := p()
	q["amount"] = 19.9
	c, _, err := newValidator().Validate(makeRaw(q))
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.ID)

	q["amount"] = 19.91
	d, _, err := newValidator().Validate(makeRaw(q))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, d.ID)

	assert.Equal(t, a.ID, validate.SyntheticID(decimal.RequireFromString("19.9"), a.Timestamp, "SHOPIFY"))
}
