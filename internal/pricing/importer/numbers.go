package importer

import (
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount reads a spreadsheet number. Comma is accepted as the decimal
// separator and a leading pound sign is ignored.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "£")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func parsePositive(s string) (decimal.Decimal, bool) {
	v, ok := parseAmount(s)
	if !ok || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}
