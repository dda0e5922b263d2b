package classify

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// HintPaths lists the JSONPath expressions probed for each payload hint.
// The first path yielding a value wins.
type HintPaths struct {
	SKU            []string `yaml:"sku_paths"`
	Quantity       []string `yaml:"quantity_paths"`
	InventoryDelta []string `yaml:"inventory_delta_paths"`
	LineItems      []string `yaml:"line_item_paths"`
	Type           []string `yaml:"type_paths"`
}

// DefaultHintPaths covers the payload shapes of the common commerce sources.
func DefaultHintPaths() HintPaths {
	return HintPaths{
		SKU:            []string{"$.sku", "$.product.sku", "$.item.sku", "$.variant.sku"},
		Quantity:       []string{"$.quantity", "$.qty", "$.product.quantity", "$.item.quantity"},
		InventoryDelta: []string{"$.inventory_delta", "$.stock_delta", "$.available_adjustment"},
		LineItems:      []string{"$.line_items", "$.items", "$.lines"},
		Type:           []string{"$.type", "$.event_type", "$.kind"},
	}
}

// withDefaults fills empty hint lists from DefaultHintPaths.
func (h HintPaths) withDefaults() HintPaths {
	d := DefaultHintPaths()
	if len(h.SKU) == 0 {
		h.SKU = d.SKU
	}
	if len(h.Quantity) == 0 {
		h.Quantity = d.Quantity
	}
	if len(h.InventoryDelta) == 0 {
		h.InventoryDelta = d.InventoryDelta
	}
	if len(h.LineItems) == 0 {
		h.LineItems = d.LineItems
	}
	if len(h.Type) == 0 {
		h.Type = d.Type
	}
	return h
}

// Check reports every path that does not compile.
func (h HintPaths) Check() error {
	var bad []string
	for _, group := range [][]string{h.SKU, h.Quantity, h.InventoryDelta, h.LineItems, h.Type} {
		for _, p := range group {
			if _, err := jsonpath.New(p); err != nil {
				bad = append(bad, fmt.Sprintf("%q: %v", p, err))
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid hint paths: %s", strings.Join(bad, "; "))
	}
	return nil
}

// probe returns the first non-empty value found under paths.
func probe(payload map[string]interface{}, paths []string) (interface{}, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	for _, p := range paths {
		v, err := jsonpath.Get(p, payload)
		if err != nil {
			continue
		}
		// jsonpath may wrap a single match in a list
		if list, ok := v.([]interface{}); ok && isWildcard(p) {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		if present(v) {
			return v, true
		}
	}
	return nil, false
}

func isWildcard(path string) bool {
	return strings.ContainsAny(path, "*?") || strings.Contains(path, "..")
}

func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
