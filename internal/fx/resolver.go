package fx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// RateFallbackPolicy decides what happens when no rate can be found for a
// pair on any usable date. The 1:1 fallback trades correctness for
// availability; StrictFallback fails the surrounding computation instead.
type RateFallbackPolicy interface {
	Resolve(from, to domain.Currency, date time.Time) (decimal.Decimal, error)
}

// OneToOneFallback logs a warning and resolves missing rates as 1.
// This is a deliberate, lossy degradation policy: a wrong-but-present value
// keeps the calculation chain alive where a hard failure would take the
// whole batch down.
type OneToOneFallback struct {
	Log zerolog.Logger
}

// Resolve returns rate 1 and logs the degradation
func (p OneToOneFallback) Resolve(from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	p.Log.Warn().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("date", domain.DayString(date)).
		Msg("No exchange rate found, falling back to 1:1")
	return decimal.NewFromInt(1), nil
}

// StrictFallback fails the computation when no rate exists
type StrictFallback struct{}

// Resolve returns an error for the missing pair
func (p StrictFallback) Resolve(from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("no exchange rate for %s/%s on or before %s", from, to, domain.DayString(date))
}

// Resolver converts monetary amounts between currencies on historical dates.
// Currency metadata (quote relationships, fixed rates) is injected and
// immutable, never global state.
type Resolver struct {
	table    domain.CurrencyTable
	fixed    domain.FixedRates
	cache    *RateCache
	market   domain.MarketDataStore
	fallback RateFallbackPolicy
	log      zerolog.Logger
}

// NewResolver creates an exchange rate resolver. A nil fallback defaults to
// the 1:1 policy; a nil table defaults to the built-in subunit relationships.
func NewResolver(
	table domain.CurrencyTable,
	fixed domain.FixedRates,
	cache *RateCache,
	market domain.MarketDataStore,
	fallback RateFallbackPolicy,
	log zerolog.Logger,
) *Resolver {
	scoped := log.With().Str("service", "fx_resolver").Logger()
	if table == nil {
		table = domain.DefaultCurrencyTable()
	}
	if fallback == nil {
		fallback = OneToOneFallback{Log: scoped}
	}
	return &Resolver{
		table:    table,
		fixed:    fixed,
		cache:    cache,
		market:   market,
		fallback: fallback,
		log:      scoped,
	}
}

// Convert returns the money's value in the target currency on the given
// date. The result carries the target currency and the conversion date.
func (r *Resolver) Convert(m domain.Money, target domain.Currency, date time.Time) (domain.Money, error) {
	rate, err := r.Rate(m.Currency, target, date)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoneyAt(target, m.Amount.Mul(rate), domain.Day(date)), nil
}

// Rate resolves the scalar exchange rate from source to target on date:
//  1. Same currency: 1.
//  2. A fixed hardcoded rate between the two (either direction) wins with
//     no lookup.
//  3. Both currencies map to their quote currency and scale factor. Equal
//     quote currencies need no FX data: the rate is the factor ratio.
//  4. Otherwise the synthetic pair ticker is looked up in the warm cache
//     (exact date, then most recent prior date), falling through to direct
//     store queries when the cache is cold or lacks the pair.
//  5. With no rate anywhere, the fallback policy decides.
//
// The resolved quote-to-quote rate is scaled by both scale factors.
func (r *Resolver) Rate(source, target domain.Currency, date time.Time) (decimal.Decimal, error) {
	if source == target {
		return decimal.NewFromInt(1), nil
	}

	if rate, ok := r.fixed[domain.PairKey{From: source, To: target}]; ok {
		return rate, nil
	}
	if inverse, ok := r.fixed[domain.PairKey{From: target, To: source}]; ok && !inverse.IsZero() {
		return decimal.NewFromInt(1).Div(inverse), nil
	}

	sourceQuote, sourceFactor := r.table.Resolve(source)
	targetQuote, targetFactor := r.table.Resolve(target)

	if sourceQuote == targetQuote {
		// Pure subunit triangulation, e.g. GBX vs GBP
		return sourceFactor.Div(targetFactor), nil
	}

	quoteRate, err := r.quoteRate(sourceQuote, targetQuote, date)
	if err != nil {
		return decimal.Zero, err
	}

	return sourceFactor.Mul(quoteRate).Div(targetFactor), nil
}

// quoteRate finds the rate between two plain quote currencies
func (r *Resolver) quoteRate(from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	symbol := domain.PairSymbol(from, to)

	if r.cache != nil && r.cache.Has(symbol) {
		if rate, ok := r.cache.Lookup(symbol, date); ok {
			return rate, nil
		}
	}

	// Cold cache, unknown pair, or no usable cached date: direct queries
	point, err := r.market.FXRateOn(symbol, date)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query rate %s: %w", symbol, err)
	}
	if point == nil {
		point, err = r.market.LatestFXRateBefore(symbol, date)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to query prior rate %s: %w", symbol, err)
		}
	}
	if point != nil {
		return point.Close, nil
	}

	return r.fallback.Resolve(from, to, date)
}
