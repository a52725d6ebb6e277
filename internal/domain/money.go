package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount exactly as it appears in canonical strings
// and multipart fields: two decimal places, no grouping. The provider signs
// over this representation, so it must never vary.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseAmount parses a caller-supplied amount and rejects values the
// provider would refuse, before any signature is computed.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() || d.IsZero() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", raw)
	}
	if d.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("amount %s has more than two decimal places", raw)
	}
	return d, nil
}
