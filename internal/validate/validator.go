package validate

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// recordNamespace scopes synthesized record ids.
var recordNamespace = uuid.MustParse("6f1c6a56-3b0e-4d55-9c8e-2f4a51d0c7a1")

// Options holds the read-only allowlists the validator checks against.
type Options struct {
	Currencies   []string // known ISO-4217 subset
	KnownSources []string // informational only
}

// Validator checks raw payloads and extracts typed records.
// It is safe for concurrent use; its tables never change after New.
type Validator struct {
	currencies map[string]struct{}
	sources    map[string]struct{}
}

// New creates a Validator from opts.
func New(opts Options) *Validator {
	v := &Validator{
		currencies: make(map[string]struct{}, len(opts.Currencies)),
		sources:    make(map[string]struct{}, len(opts.KnownSources)),
	}
	for _, c := range opts.Currencies {
		v.currencies[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	for _, s := range opts.KnownSources {
		v.sources[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return v
}

// Validate extracts a Record from raw. On any ERROR it returns every error
// issue as ValidationErrors and no record. Warnings are returned in both cases
// and never block.
func (v *Validator) Validate(raw *event.RawEvent) (*event.Record, []Issue, error) {
	if raw == nil || len(raw.Payload) == 0 {
		return nil, nil, ValidationErrors{{Field: "payload", Severity: event.SeverityError, Message: "payload is empty"}}
	}
	p := raw.Payload
	c := &collector{}
	rec := &event.Record{}

	if typ, ok := lookupString(p, typeAliases); ok {
		rec.Type = strings.ToLower(typ)
	}
	if cat, ok := lookupString(p, categoryAliases); ok {
		rec.Category = cat
	}
	if desc, ok := lookupString(p, descriptionAliases); ok {
		rec.Description = desc
	}

	rec.Amount = v.checkAmount(p, rec.Type, c)
	rec.Currency = v.checkCurrency(p, c)
	rec.Timestamp = v.checkTimestamp(p, raw.ReceivedAt, c)
	rec.Source = v.checkSource(p, raw.SourceID, c)

	if len(c.errs) > 0 {
		return nil, c.warns, c.errs
	}

	if ext, ok := lookupString(p, externalIDAliases); ok {
		rec.ExternalID = ext
		rec.ID = ext
	} else {
		rec.ID = SyntheticID(rec.Amount, rec.Timestamp, rec.Source)
	}
	return rec, c.warns, nil
}

func (v *Validator) checkAmount(p map[string]interface{}, typ string, c *collector) decimal.Decimal {
	raw, _, ok := lookup(p, amountAliases)
	if !ok {
		c.errorf("amount", "amount is required (one of %s)", strings.Join(amountAliases, ", "))
		return decimal.Zero
	}
	amt, err := toDecimal(raw)
	if err != nil {
		c.errorf("amount", "amount %v is not a finite number: %v", raw, err)
		return decimal.Zero
	}
	switch {
	case amt.IsZero():
		c.warnf("amount", "amount is zero, possible placeholder record")
	case amt.IsNegative() && typ == "sale":
		c.errorf("amount", "negative amount %s is not allowed for sale records", amt)
	case amt.IsNegative():
		c.warnf("amount", "negative amount %s, possible refund", amt)
	}
	return amt
}

func (v *Validator) checkCurrency(p map[string]interface{}, c *collector) string {
	s, ok := lookupString(p, currencyAliases)
	if !ok {
		c.errorf("currency", "currency is required")
		return ""
	}
	code := strings.ToUpper(s)
	if len(code) != 3 {
		c.errorf("currency", "currency %q must be a 3-letter code, got length %d", s, len(code))
		return ""
	}
	if _, known := v.currencies[code]; !known {
		c.errorf("currency", "currency %q is not a recognised ISO-4217 code", code)
		return ""
	}
	return code
}

func (v *Validator) checkTimestamp(p map[string]interface{}, receivedAt time.Time, c *collector) time.Time {
	raw, key, ok := lookup(p, timestampAliases)
	if !ok {
		if receivedAt.IsZero() {
			c.errorf("timestamp", "timestamp is required")
			return time.Time{}
		}
		c.warnf("timestamp", "timestamp missing, using arrival time")
		return receivedAt
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		c.errorf("timestamp", "%s: %v", key, err)
		return time.Time{}
	}
	return ts
}

func (v *Validator) checkSource(p map[string]interface{}, fallback string, c *collector) string {
	src, ok := lookupString(p, sourceAliases)
	if !ok {
		src = strings.TrimSpace(fallback)
	}
	src = strings.ToLower(src)
	if src == "" {
		c.errorf("source", "source is required")
		return ""
	}
	if _, known := v.sources[src]; !known {
		c.warnf("source", "unknown source %q", src)
	}
	return src
}

// SyntheticID derives a stable record id from the fields that define an
// event when the source supplied no id of its own.
func SyntheticID(amount decimal.Decimal, ts time.Time, source string) string {
	key := amount.String() + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + strings.ToLower(strings.TrimSpace(source))
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}
