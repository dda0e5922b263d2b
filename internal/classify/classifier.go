package classify

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// Facts is what a rule sees about one event.
type Facts struct {
	Event   *event.NormalizedEvent
	Channel event.Channel
	Payload map[string]interface{}

	hints HintPaths
}

// DeclaredType is the lower-cased type hint from the record, or from the
// payload when the validator found none.
func (f Facts) DeclaredType() string {
	if t, ok := f.Event.Metadata["type"].(string); ok && t != "" {
		return strings.ToLower(t)
	}
	if v, ok := probe(f.Payload, f.hints.Type); ok {
		if s, ok := v.(string); ok {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	return ""
}

func (f Facts) has(paths []string) bool {
	_, ok := probe(f.Payload, paths)
	return ok
}

// Resolve looks up a named field for rule expressions. Names under
// "payload." are read from the original payload.
func (f Facts) Resolve(name string) (interface{}, bool) {
	switch strings.ToLower(name) {
	case "amount":
		return f.Event.Amount, true
	case "base_amount":
		return f.Event.BaseAmount, true
	case "currency":
		return f.Event.Currency, true
	case "channel":
		return string(f.Channel), true
	case "type":
		return f.DeclaredType(), true
	case "source", "category":
		v, ok := f.Event.Metadata[strings.ToLower(name)]
		return v, ok
	}
	if rest, ok := strings.CutPrefix(name, "payload."); ok {
		v, err := jsonpath.Get("$."+rest, f.Payload)
		if err != nil || v == nil {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// Rule assigns Intent when Match holds. Rules are tried in slice order.
type Rule struct {
	Name   string
	Intent event.Intent
	Match  func(Facts) bool
}

// BuiltinRules is the fixed decision list. Order is the tie-break: a stock
// transfer carrying a SKU and quantity is INVENTORY, never WALLET.
func BuiltinRules(h HintPaths) []Rule {
	h = h.withDefaults()
	return []Rule{
		{
			Name:   "inventory",
			Intent: event.IntentInventory,
			Match: func(f Facts) bool {
				return f.has(h.SKU) && (f.has(h.Quantity) || f.has(h.InventoryDelta))
			},
		},
		{
			Name:   "order",
			Intent: event.IntentOrder,
			Match: func(f Facts) bool {
				return f.DeclaredType() == "order" || f.has(h.LineItems)
			},
		},
		{
			Name:   "wallet",
			Intent: event.IntentWallet,
			Match: func(f Facts) bool {
				switch f.DeclaredType() {
				case "transfer", "deposit", "withdrawal":
					return true
				}
				return false
			},
		},
		{
			Name:   "cost",
			Intent: event.IntentCost,
			Match: func(f Facts) bool {
				return f.Event.Amount.IsNegative() || f.DeclaredType() == "refund"
			},
		},
	}
}

// RuleSpec is an operator-defined rule as it appears in configuration.
type RuleSpec struct {
	Name   string `yaml:"name"`
	Intent string `yaml:"intent"`
	When   string `yaml:"when"`
}

// CompileRules turns rule specs into Rules, reporting every bad spec.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	var errs []string
	for i, s := range specs {
		intent := event.Intent(strings.ToUpper(s.Intent))
		if !intent.Valid() {
			errs = append(errs, fmt.Sprintf("rule %d (%s): unknown intent %q", i, s.Name, s.Intent))
			continue
		}
		expr, err := ParseExpr(s.When)
		if err != nil {
			errs = append(errs, fmt.Sprintf("rule %d (%s): %v", i, s.Name, err))
			continue
		}
		rules = append(rules, Rule{Name: s.Name, Intent: intent, Match: expr.eval})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("classifier rules: %s", strings.Join(errs, "; "))
	}
	return rules, nil
}

// Options configures a Classifier.
type Options struct {
	Hints HintPaths
	// Rules run before the built-in decision list.
	Rules []Rule
}

// Classifier assigns the final intent of a normalized event.
type Classifier struct {
	hints HintPaths
	rules []Rule
}

func New(opts Options) *Classifier {
	hints := opts.Hints.withDefaults()
	rules := make([]Rule, 0, len(opts.Rules)+4)
	rules = append(rules, opts.Rules...)
	rules = append(rules, BuiltinRules(hints)...)
	return &Classifier{hints: hints, rules: rules}
}

// Classify returns a copy of ev whose intent is set by the first matching
// rule. Nothing but the intent differs from ev.
func (c *Classifier) Classify(ev *event.NormalizedEvent, ch event.Channel, payload map[string]interface{}) *event.NormalizedEvent {
	intent, _ := c.Explain(ev, ch, payload)
	return ev.WithIntent(intent)
}

// Explain reports the intent and the name of the rule that chose it.
func (c *Classifier) Explain(ev *event.NormalizedEvent, ch event.Channel, payload map[string]interface{}) (event.Intent, string) {
	f := Facts{Event: ev, Channel: ch, Payload: payload, hints: c.hints}
	for _, r := range c.rules {
		if r.Match(f) {
			return r.Intent, r.Name
		}
	}
	return event.IntentRevenue, "revenue"
}
