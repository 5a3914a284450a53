package domain

import "time"

// MarketDataStore supplies historical market data: FX pair daily closes
// keyed by the 6-character pair ticker, and daily closing prices for
// ordinary instruments. A missing data point is (nil, nil), not an error.
type MarketDataStore interface {
	// AllFXRates returns every pair's full daily close history,
	// keyed by pair symbol, each slice in ascending date order.
	AllFXRates() (map[string][]RatePoint, error)

	// FXRateOn returns the pair's closing rate on the exact date
	FXRateOn(symbol string, date time.Time) (*RatePoint, error)

	// LatestFXRateBefore returns the most recent rate strictly before date
	LatestFXRateBefore(symbol string, date time.Time) (*RatePoint, error)

	// InstrumentPriceOn returns an instrument's closing price on the exact date
	InstrumentPriceOn(symbol string, date time.Time) (*RatePoint, error)
}

// ActivityStore supplies the canonical per-account transaction stream
type ActivityStore interface {
	// ListByAccount returns an account's full activity stream ordered by date
	ListByAccount(accountID string) ([]Activity, error)

	// AccountIDs returns the distinct account identifiers present in the store
	AccountIDs() ([]string, error)
}

// SettingsStore exposes application settings, in particular the configured
// primary reporting currency.
type SettingsStore interface {
	PrimaryCurrency() (Currency, error)
}
