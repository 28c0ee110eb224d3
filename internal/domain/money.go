package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"CLP": true,
	"ISK": true,
}

// NormalizeCurrency upper-cases and validates an ISO-4217 code
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", ErrValidationFailed.WithDetail("currency", code)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", ErrValidationFailed.WithDetail("currency", code)
		}
	}
	return c, nil
}

// MinorUnitExponent returns the number of decimal places used by the currency
func MinorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// RoundToCurrency rounds half-to-even to the currency's minor unit
func RoundToCurrency(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnitExponent(currency))
}

// FromMinorUnits converts an integer amount in minor units (cents) to a decimal
func FromMinorUnits(units int64, currency string) decimal.Decimal {
	return decimal.New(units, -MinorUnitExponent(currency))
}
