// Package domain contains the core business entities and value objects.
// The domain layer is pure: no persistence or transport dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency identifies a currency by its symbol. Equality is by symbol.
type Currency string

// Common currency symbols used in defaults and tests
const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyGBX Currency = "GBX"
)

// CurrencyInfo describes a currency's quote relationship: the reference
// currency it is quoted against and the multiplicative scale factor.
// A subunit currency like GBX (pence) maps to GBP with factor 0.01:
// one unit of the currency equals Factor units of the quote currency.
// This is immutable metadata, not runtime state.
type CurrencyInfo struct {
	Quote  Currency
	Factor decimal.Decimal
}

// CurrencyTable maps currencies to their quote relationships. Currencies
// absent from the table map to themselves with factor 1.
type CurrencyTable map[Currency]CurrencyInfo

// Resolve returns the quote currency and scale factor for c.
// Unknown currencies resolve to themselves with factor 1.
func (t CurrencyTable) Resolve(c Currency) (Currency, decimal.Decimal) {
	if info, ok := t[c]; ok {
		return info.Quote, info.Factor
	}
	return c, decimal.NewFromInt(1)
}

// DefaultCurrencyTable returns the built-in subunit relationships.
// Callers may copy and extend it, or inject their own table entirely.
func DefaultCurrencyTable() CurrencyTable {
	centi := decimal.New(1, -2) // 0.01
	return CurrencyTable{
		"GBX": {Quote: "GBP", Factor: centi},
		"GBp": {Quote: "GBP", Factor: centi},
		"ILA": {Quote: "ILS", Factor: centi},
		"ZAC": {Quote: "ZAR", Factor: centi},
	}
}

// PairKey is a directed currency pair used as a lookup key for fixed rates.
type PairKey struct {
	From Currency
	To   Currency
}

// FixedRates maps currency pairs to hardcoded direct rates that bypass
// any market-data lookup.
type FixedRates map[PairKey]decimal.Decimal

// PairSymbol builds the 6-character FX pair ticker by concatenating the
// two currency codes, e.g. PairSymbol("USD", "EUR") == "USDEUR".
func PairSymbol(from, to Currency) string {
	return string(from) + string(to)
}

// Money is a monetary amount in a single currency with an optional
// value timestamp. Cross-currency arithmetic must go through the
// exchange rate resolver; Money never mixes currencies implicitly.
type Money struct {
	Currency Currency
	Amount   decimal.Decimal
	Time     *time.Time
}

// NewMoney creates a Money without a timestamp
func NewMoney(currency Currency, amount decimal.Decimal) Money {
	return Money{Currency: currency, Amount: amount}
}

// NewMoneyAt creates a Money carrying a value timestamp
func NewMoneyAt(currency Currency, amount decimal.Decimal, at time.Time) Money {
	return Money{Currency: currency, Amount: amount, Time: &at}
}

// IsZero reports whether the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Equal reports whether two Money values share currency and amount.
// Timestamps are ignored.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}
