package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Accepted spellings per logical field, in lookup order.
var (
	amountAliases      = []string{"amount", "total", "value", "price", "sum"}
	currencyAliases    = []string{"currency", "currency_code", "ccy"}
	timestampAliases   = []string{"timestamp", "created_at", "date", "time"}
	sourceAliases      = []string{"source", "source_id", "provider"}
	typeAliases        = []string{"type", "event_type", "kind"}
	categoryAliases    = []string{"category"}
	externalIDAliases  = []string{"external_id", "transaction_id", "reference", "id"}
	descriptionAliases = []string{"description", "memo", "note"}
)

var errNotFinite = errors.New("not a finite number")

// lookup returns the first non-nil value stored under one of the aliases.
func lookup(p map[string]interface{}, aliases []string) (interface{}, string, bool) {
	for _, k := range aliases {
		if v, ok := p[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

// lookupString is lookup for fields that are textual; numbers are rendered
// without exponent so numeric ids survive.
func lookupString(p map[string]interface{}, aliases []string) (string, bool) {
	v, _, ok := lookup(p, aliases)
	if !ok {
		return "", false
	}
	s, ok := toString(v)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case fmt.Stringer:
		return s.String(), true
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// toDecimal coerces a payload value into a finite decimal.
func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, errors.New("empty string")
		}
		return decimal.NewFromString(s)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, errNotFinite
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return decimal.Zero, errNotFinite
		}
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint32:
		return decimal.NewFromInt(int64(n)), nil
	}
	return decimal.Zero, fmt.Errorf("unsupported type %T", v)
}

// toFloat64 coerces a numeric value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
