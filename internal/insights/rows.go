// Package insights reads numeric values out of provider insight rows, which
// carry most numbers as strings.
package insights

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PurchaseActionTypes lists purchase action types, highest priority first.
var PurchaseActionTypes = []string{
	"omni_purchase",
	"purchase",
	"onsite_conversion.purchase",
	"offsite_conversion.fb_pixel_purchase",
	"catalog_sale",
}

// Float reads v as a float. Missing or unparseable values are 0.
func Float(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return finite(f)
	default:
		return 0
	}
}

// Int reads v as an integer, truncating fractions.
func Int(v any) int64 {
	return int64(Float(v))
}

// String reads v as a string; non-strings render empty.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Purchase returns the value of the highest priority purchase action type
// present with a positive value in actions (a list of {action_type, value}).
func Purchase(actions any) float64 {
	list, ok := actions.([]any)
	if !ok || len(list) == 0 {
		return 0
	}
	for _, actionType := range PurchaseActionTypes {
		for _, item := range list {
			action, ok := item.(map[string]any)
			if !ok || String(action["action_type"]) != actionType {
				continue
			}
			if value := Float(action["value"]); value > 0 {
				return value
			}
			break
		}
	}
	return 0
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ratio returns num/den, or 0 when den is not positive.
func Ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
