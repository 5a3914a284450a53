package fx

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// stubMarket is an in-memory domain.MarketDataStore for tests
type stubMarket struct {
	mu    sync.Mutex
	loads int
	rates map[string][]domain.RatePoint // ascending date order
}

func (s *stubMarket) AllFXRates() (map[string][]domain.RatePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.rates, nil
}

func (s *stubMarket) FXRateOn(symbol string, date time.Time) (*domain.RatePoint, error) {
	for _, p := range s.rates[symbol] {
		if domain.DayString(p.Date) == domain.DayString(date) {
			point := p
			return &point, nil
		}
	}
	return nil, nil
}

func (s *stubMarket) LatestFXRateBefore(symbol string, date time.Time) (*domain.RatePoint, error) {
	var latest *domain.RatePoint
	for _, p := range s.rates[symbol] {
		if domain.DayString(p.Date) < domain.DayString(date) {
			point := p
			latest = &point
		}
	}
	return latest, nil
}

func (s *stubMarket) InstrumentPriceOn(symbol string, date time.Time) (*domain.RatePoint, error) {
	return nil, nil
}

func (s *stubMarket) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := domain.ParseDay(s)
	require.NoError(t, err)
	return parsed
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ratePoint(t *testing.T, symbol, date, close string) domain.RatePoint {
	t.Helper()
	return domain.RatePoint{Symbol: symbol, Date: day(t, date), Close: dec(close)}
}

func usdEurMarket(t *testing.T) *stubMarket {
	t.Helper()
	return &stubMarket{
		rates: map[string][]domain.RatePoint{
			"USDEUR": {
				ratePoint(t, "USDEUR", "2024-01-05", "0.91"),
				ratePoint(t, "USDEUR", "2024-01-08", "0.92"),
			},
		},
	}
}

func TestPreloadAllLoadsOnce(t *testing.T) {
	market := usdEurMarket(t)
	cache := NewRateCache(market, zerolog.Nop())

	require.NoError(t, cache.PreloadAll())
	require.NoError(t, cache.PreloadAll())
	require.NoError(t, cache.PreloadAll())

	assert.Equal(t, 1, market.loadCount(), "warm cache must never reload")
	assert.True(t, cache.Warm())
}

func TestPreloadAllSingleFlight(t *testing.T) {
	market := usdEurMarket(t)
	cache := NewRateCache(market, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.PreloadAll()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, market.loadCount(), "cold cache must never load twice")
	assert.True(t, cache.Warm())
}

func TestPreloadAllEmptyStoreStaysCold(t *testing.T) {
	market := &stubMarket{rates: map[string][]domain.RatePoint{}}
	cache := NewRateCache(market, zerolog.Nop())

	require.NoError(t, cache.PreloadAll())

	assert.False(t, cache.Warm(), "no data must not be treated as a warm cache")

	_, ok := cache.Lookup("USDEUR", day(t, "2024-01-05"))
	assert.False(t, ok)
}

func TestClearResetsCache(t *testing.T) {
	market := usdEurMarket(t)
	cache := NewRateCache(market, zerolog.Nop())

	require.NoError(t, cache.PreloadAll())
	require.True(t, cache.Warm())

	cache.Clear()

	assert.False(t, cache.Warm())
	_, ok := cache.Lookup("USDEUR", day(t, "2024-01-05"))
	assert.False(t, ok)

	// Reloading after Clear hits the store again
	require.NoError(t, cache.PreloadAll())
	assert.Equal(t, 2, market.loadCount())
	assert.True(t, cache.Warm())
}

func TestLookup(t *testing.T) {
	cache := NewRateCache(usdEurMarket(t), zerolog.Nop())
	require.NoError(t, cache.PreloadAll())

	tests := []struct {
		name   string
		date   string
		want   string
		wantOK bool
	}{
		{name: "exact date", date: "2024-01-05", want: "0.91", wantOK: true},
		{name: "weekend falls back to prior close", date: "2024-01-06", want: "0.91", wantOK: true},
		{name: "later date uses newest close", date: "2024-02-01", want: "0.92", wantOK: true},
		{name: "before first known date", date: "2024-01-01", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, ok := cache.Lookup("USDEUR", day(t, tt.date))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, dec(tt.want).Equal(rate), "want %s got %s", tt.want, rate)
			}
		})
	}
}

func TestLookupUnknownPair(t *testing.T) {
	cache := NewRateCache(usdEurMarket(t), zerolog.Nop())
	require.NoError(t, cache.PreloadAll())

	_, ok := cache.Lookup("EURJPY", day(t, "2024-01-05"))
	assert.False(t, ok)
	assert.False(t, cache.Has("EURJPY"))
	assert.True(t, cache.Has("USDEUR"))
}
