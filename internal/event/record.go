package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the subset of a payload proven well-typed by the validator.
type Record struct {
	// ID is the external id when the source provided one, otherwise a
	// deterministic id derived from amount, timestamp and source.
	ID          string          `json:"id"`
	ExternalID  string          `json:"external_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Type        string          `json:"type,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Intent is the business classification of a normalized event.
type Intent string

const (
	IntentRevenue   Intent = "REVENUE"
	IntentCost      Intent = "COST"
	IntentWallet    Intent = "WALLET"
	IntentInventory Intent = "INVENTORY"
	IntentOrder     Intent = "ORDER"
)

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case IntentRevenue, IntentCost, IntentWallet, IntentInventory, IntentOrder:
		return true
	}
	return false
}

// NormalizedEvent is the canonical unified record handed to persistence.
type NormalizedEvent struct {
	ID           string                 `json:"id"`
	RawEventID   string                 `json:"raw_event_id"`
	WorkspaceID  string                 `json:"workspace_id"`
	Amount       decimal.Decimal        `json:"amount"`
	Currency     string                 `json:"currency"`
	BaseAmount   decimal.Decimal        `json:"base_amount"`
	BaseCurrency string                 `json:"base_currency"`
	ExchangeRate decimal.Decimal        `json:"exchange_rate"`
	Date         time.Time              `json:"date"`
	Intent       Intent                 `json:"intent"`
	Description  string                 `json:"description"`
	ExternalID   string                 `json:"external_id,omitempty"`
	Fingerprint  string                 `json:"fingerprint,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// WithIntent returns a copy of e carrying intent i. Metadata is copied so the
// two values never share a map.
func (e *NormalizedEvent) WithIntent(i Intent) *NormalizedEvent {
	cp := *e
	cp.Intent = i
	if e.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
