package normalize

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

// Rounding selects how base amounts are rounded to BasePlaces.
type Rounding string

const (
	RoundHalfUp   Rounding = "half_up"
	RoundHalfEven Rounding = "half_even"

	// BasePlaces is the fixed precision of base amounts.
	BasePlaces = 4
)

// Metadata keys written by the normalizer.
const (
	MetaType         = "type"
	MetaCategory     = "category"
	MetaSource       = "source"
	MetaRateFallback = "rate_fallback"
)

// Options configures a Normalizer.
type Options struct {
	WorkspaceID string
	Rounding    Rounding
}

// Normalizer converts validated records into base-currency events.
type Normalizer struct {
	rates RateSource
	opts  Options
}

func New(rates RateSource, opts Options) *Normalizer {
	if opts.Rounding == "" {
		opts.Rounding = RoundHalfUp
	}
	return &Normalizer{rates: rates, opts: opts}
}

// Normalize builds a NormalizedEvent from rec. The returned intent is
// provisional; the classifier has the final word.
func (n *Normalizer) Normalize(rawEventID string, rec *event.Record) (*event.NormalizedEvent, error) {
	table := n.rates.Snapshot()
	if table == nil {
		return nil, fmt.Errorf("no rate table loaded")
	}

	meta := map[string]interface{}{
		MetaSource: rec.Source,
	}
	if rec.Type != "" {
		meta[MetaType] = rec.Type
	}
	if rec.Category != "" {
		meta[MetaCategory] = rec.Category
	}

	rate, ok, err := table.Rate(rec.Currency)
	if err != nil {
		return nil, err
	}
	if !ok {
		rate = decimal.NewFromInt(1)
		meta[MetaRateFallback] = true
	}

	date, err := validate.ParseTimestamp(rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("unify timestamp: %w", err)
	}

	intent := event.IntentRevenue
	if rec.Amount.IsNegative() {
		intent = event.IntentCost
	}

	return &event.NormalizedEvent{
		ID:           uuid.NewString(),
		RawEventID:   rawEventID,
		WorkspaceID:  n.opts.WorkspaceID,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		BaseAmount:   n.round(rec.Amount.Mul(rate)),
		BaseCurrency: table.Base,
		ExchangeRate: rate,
		Date:         date,
		Intent:       intent,
		Description:  describe(rec),
		ExternalID:   rec.ExternalID,
		Metadata:     meta,
	}, nil
}

func (n *Normalizer) round(d decimal.Decimal) decimal.Decimal {
	if n.opts.Rounding == RoundHalfEven {
		return d.RoundBank(BasePlaces)
	}
	return d.Round(BasePlaces)
}

func describe(rec *event.Record) string {
	if rec.Description != "" {
		return rec.Description
	}
	kind := "Transaction"
	if rec.Type != "" {
		r, size := utf8.DecodeRuneInString(rec.Type)
		kind = string(unicode.ToUpper(r)) + rec.Type[size:]
	}
	return fmt.Sprintf("%s of %s from %s", kind, FormatMoney(rec.Amount, rec.Currency), rec.Source)
}

// FormatMoney renders amount in currency's display format, for example
// "$100.00". Unknown currencies fall back to "<amount> <code>".
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
