package normalize

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// RateTable is an immutable snapshot of exchange rates into Base. A rate
// converts one unit of the keyed currency into Base.
type RateTable struct {
	Base  string
	rates map[string]decimal.Decimal
}

// NewRateTable builds a snapshot. The base currency always converts at 1.
func NewRateTable(base string, rates map[string]decimal.Decimal) *RateTable {
	base = strings.ToUpper(base)
	t := &RateTable{Base: base, rates: make(map[string]decimal.Decimal, len(rates)+1)}
	for code, r := range rates {
		t.rates[strings.ToUpper(code)] = r
	}
	t.rates[base] = decimal.NewFromInt(1)
	return t
}

// NewRateTableFromFloats is a convenience for config-sourced rates.
func NewRateTableFromFloats(base string, rates map[string]float64) *RateTable {
	m := make(map[string]decimal.Decimal, len(rates))
	for code, r := range rates {
		m[code] = decimal.NewFromFloat(r)
	}
	return NewRateTable(base, m)
}

// Rate returns the rate for code. ok is false when the table has no entry.
func (t *RateTable) Rate(code string) (rate decimal.Decimal, ok bool, err error) {
	r, ok := t.rates[strings.ToUpper(code)]
	if !ok {
		return decimal.Decimal{}, false, nil
	}
	if !r.IsPositive() {
		return decimal.Decimal{}, true, fmt.Errorf("rate table corrupt: %s rate %s is not positive", code, r)
	}
	return r, true, nil
}

// Codes lists the currencies in the table, sorted.
func (t *RateTable) Codes() []string {
	codes := make([]string, 0, len(t.rates))
	for c := range t.rates {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Map returns a copy of the rates keyed by currency.
func (t *RateTable) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(t.rates))
	for c, r := range t.rates {
		out[c] = r
	}
	return out
}

// RateSource hands out the current rate snapshot.
type RateSource interface {
	Snapshot() *RateTable
}

// RateBook holds the live RateTable and swaps it atomically on reload.
type RateBook struct {
	current atomic.Pointer[RateTable]
}

func NewRateBook(t *RateTable) *RateBook {
	b := &RateBook{}
	b.current.Store(t)
	return b
}

func (b *RateBook) Snapshot() *RateTable {
	return b.current.Load()
}

// Swap installs t and returns the previous table.
func (b *RateBook) Swap(t *RateTable) *RateTable {
	return b.current.Swap(t)
}
