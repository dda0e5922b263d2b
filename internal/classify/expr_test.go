package classify

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

func facts(amount string, meta map[string]interface{}, payload map[string]interface{}) Facts {
	return Facts{
		Event: &event.NormalizedEvent{
			Amount:   decimal.RequireFromString(amount),
			Currency: "USD",
			Metadata: meta,
		},
		Channel: event.ChannelWebhook,
		Payload: payload,
		hints:   DefaultHintPaths(),
	}
}

func TestParseExpr_Evaluate(t *testing.T) {
	f := facts("-42.50", map[string]interface{}{"type": "payout", "source": "stripe", "category": "Bank Fees"},
		map[string]interface{}{"meta": map[string]interface{}{"kind": "stock_move", "flagged": true}})

	cases := []struct {
		expr string
		want bool
	}{
		{`amount < 0`, true},
		{`amount >= -42.5`, true},
		{`amount == -42.50`, true},
		{`amount > 0`, false},
		{`type == "PAYOUT"`, true},
		{`type != "payout"`, false},
		{`category contains "fee"`, true},
		{`payload.meta.kind matches "^stock_"`, true},
		{`payload.meta.flagged == true`, true},
		{`payload.meta.missing == "x"`, false},
		{`NOT payload.meta.missing == "x"`, true},
		{`channel == 'webhook' AND (source == "paypal" OR source == "stripe")`, true},
		{`currency == "EUR" OR amount > 100`, false},
		{`source == "stripe" AND NOT category contains "bank"`, false},
		{`type > 3`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := ParseExpr(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.eval(f))
		})
	}
}

func TestParseExpr_DecodedNumbers(t *testing.T) {
	f := facts("1", nil, map[string]interface{}{
		"qty":   json.Number("10"),
		"price": json.Number("19.99"),
		"bad":   json.Number("n/a"),
	})

	cases := []struct {
		expr string
		want bool
	}{
		{`payload.qty > 5`, true},
		{`payload.qty == 10`, true},
		{`payload.qty != 10`, false},
		{`payload.qty <= 9`, false},
		{`payload.price >= 19.99`, true},
		{`payload.price < 20`, true},
		{`payload.bad > 0`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			e, err := ParseExpr(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.eval(f))
		})
	}
}

func TestParseExpr_Errors(t *testing.T) {
	for _, src := range []string{
		``,
		`amount`,
		`amount >`,
		`amount = 3`,
		`"x" == type`,
		`(amount > 1`,
		`type == "open`,
		`type > "abc"`,
		`type matches "("`,
		`amount > 1 extra`,
		`amount > 1 # 2`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			assert.Error(t, err)
		})
	}
}
