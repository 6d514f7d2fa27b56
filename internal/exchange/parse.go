package exchange

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal reads a numeric field that may arrive as a JSON number or a
// quoted string. Missing, null, non-numeric and negative values become zero.
func ParseDecimal(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return decimal.Zero
		}
		s = strings.TrimSpace(unquoted)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseString reads a string field, tolerating numbers and nulls.
func ParseString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return s
	}
	return out
}
