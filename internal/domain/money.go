package domain

import "github.com/shopspring/decimal"

// CurrencyPlaces is the number of minor-unit digits (cents).
const CurrencyPlaces int32 = 2

// RoundMoney rounds to the currency minor unit using round-half-to-even.
// Every balance that is computed or compared goes through here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CurrencyPlaces)
}

// MustMoney parses a decimal literal, panicking on malformed input.
// Intended for constants and tests.
func MustMoney(s string) decimal.Decimal {
	return RoundMoney(decimal.RequireFromString(s))
}
