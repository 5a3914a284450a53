// Package fx resolves historical exchange rates between arbitrary currency
// pairs, including subunit triangulation through quote currencies.
package fx

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// rateSnapshot is the immutable result of one preload. Readers access it
// lock-free through an atomic pointer; it is never mutated after publication.
type rateSnapshot struct {
	// rates maps pair symbol -> date key -> closing rate
	rates map[string]map[string]decimal.Decimal
	// dates maps pair symbol -> ascending date keys, for prior-date lookups
	dates map[string][]string
}

// RateCache holds all known FX-pair daily closes in memory, loaded at most
// once per warm-up. Concurrent callers of PreloadAll block on one mutex and
// re-check the ready flag after acquiring it, so a warm cache never reloads
// and a cold cache never loads twice.
type RateCache struct {
	mu       sync.Mutex
	ready    bool
	snapshot atomic.Pointer[rateSnapshot]

	market domain.MarketDataStore
	log    zerolog.Logger
}

// NewRateCache creates a cold rate cache backed by the given market data store
func NewRateCache(market domain.MarketDataStore, log zerolog.Logger) *RateCache {
	return &RateCache{
		market: market,
		log:    log.With().Str("component", "rate_cache").Logger(),
	}
}

// PreloadAll loads every FX pair's full daily close history into memory.
// A failed or empty load leaves the cache not ready, so resolvers degrade
// to per-query store lookups instead of treating "no data" as a zero rate.
func (c *RateCache) PreloadAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}

	all, err := c.market.AllFXRates()
	if err != nil {
		return fmt.Errorf("failed to preload fx rates: %w", err)
	}
	if len(all) == 0 {
		c.log.Warn().Msg("No FX rates available to preload, cache stays cold")
		return nil
	}

	snap := &rateSnapshot{
		rates: make(map[string]map[string]decimal.Decimal, len(all)),
		dates: make(map[string][]string, len(all)),
	}

	total := 0
	for symbol, points := range all {
		byDate := make(map[string]decimal.Decimal, len(points))
		days := make([]string, 0, len(points))
		for _, p := range points {
			key := domain.DayString(p.Date)
			if _, seen := byDate[key]; !seen {
				days = append(days, key)
			}
			byDate[key] = p.Close
		}
		sort.Strings(days)

		snap.rates[symbol] = byDate
		snap.dates[symbol] = days
		total += len(days)
	}

	c.snapshot.Store(snap)
	c.ready = true

	c.log.Info().
		Int("pairs", len(snap.rates)).
		Int("rates", total).
		Msg("Preloaded FX rate cache")

	return nil
}

// Warm reports whether the cache has finished a successful preload
func (c *RateCache) Warm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Clear resets the ready flag and drops the snapshot. Safe to call
// mid-operation: subsequent resolves fall through to the store.
func (c *RateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	c.snapshot.Store(nil)
}

// Lookup returns the pair's rate on the exact date, or the most recent prior
// date's rate (missing days are weekends and holidays; rates are never
// interpolated). The second return distinguishes "pair unknown or no usable
// date" from a real rate. A cold cache always reports false.
func (c *RateCache) Lookup(symbol string, date time.Time) (decimal.Decimal, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		return decimal.Zero, false
	}

	byDate, ok := snap.rates[symbol]
	if !ok {
		return decimal.Zero, false
	}

	key := domain.DayString(date)
	if rate, ok := byDate[key]; ok {
		return rate, true
	}

	// Most recent prior trading day
	days := snap.dates[symbol]
	idx := sort.SearchStrings(days, key)
	if idx == 0 {
		return decimal.Zero, false
	}
	return byDate[days[idx-1]], true
}

// Has reports whether the cache holds any data for the pair
func (c *RateCache) Has(symbol string) bool {
	snap := c.snapshot.Load()
	if snap == nil {
		return false
	}
	_, ok := snap.rates[symbol]
	return ok
}
