// Package marketdata provides access to historical FX rates and
// instrument prices stored in the history database.
package marketdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// Repository reads and writes FX pair closes and instrument prices.
// Implements domain.MarketDataStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "marketdata_repo").Logger(),
	}
}

// AllFXRates returns every pair's full daily close history, keyed by pair
// symbol, each slice in ascending date order.
func (r *Repository) AllFXRates() (map[string][]domain.RatePoint, error) {
	rows, err := r.db.Query(`
		SELECT symbol, date, close
		FROM fx_rates
		ORDER BY symbol, date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fx rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[string][]domain.RatePoint)
	for rows.Next() {
		point, err := scanRatePoint(rows)
		if err != nil {
			return nil, err
		}
		rates[point.Symbol] = append(rates[point.Symbol], point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fx rates: %w", err)
	}

	return rates, nil
}

// FXRateOn fetches the pair's closing rate on the exact date.
// Returns nil if no rate exists for that day (not an error).
func (r *Repository) FXRateOn(symbol string, date time.Time) (*domain.RatePoint, error) {
	return r.pointOn("fx_rates", symbol, date)
}

// LatestFXRateBefore fetches the most recent rate strictly before date.
// Returns nil if the pair has no earlier data (not an error).
func (r *Repository) LatestFXRateBefore(symbol string, date time.Time) (*domain.RatePoint, error) {
	row := r.db.QueryRow(`
		SELECT symbol, date, close
		FROM fx_rates
		WHERE symbol = ? AND date < ?
		ORDER BY date DESC
		LIMIT 1
	`, symbol, domain.DayString(date))

	return scanRatePointRow(row)
}

// InstrumentPriceOn fetches an instrument's closing price on the exact date.
// Returns nil if no price exists for that day (not an error).
func (r *Repository) InstrumentPriceOn(symbol string, date time.Time) (*domain.RatePoint, error) {
	return r.pointOn("instrument_prices", symbol, date)
}

func (r *Repository) pointOn(table, symbol string, date time.Time) (*domain.RatePoint, error) {
	row := r.db.QueryRow(fmt.Sprintf(`
		SELECT symbol, date, close
		FROM %s
		WHERE symbol = ? AND date = ?
	`, table), symbol, domain.DayString(date))

	return scanRatePointRow(row)
}

// UpsertFXRates inserts or replaces a batch of FX pair closes in one transaction
func (r *Repository) UpsertFXRates(points []domain.RatePoint) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO fx_rates (symbol, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(p.Symbol, domain.DayString(p.Date), p.Close.String()); err != nil {
			return fmt.Errorf("failed to upsert fx rate %s@%s: %w", p.Symbol, domain.DayString(p.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(points)).Msg("Upserted FX rates")
	return nil
}

// UpsertInstrumentPrice inserts or replaces one instrument closing price
func (r *Repository) UpsertInstrumentPrice(p domain.RatePoint) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO instrument_prices (symbol, date, close)
		VALUES (?, ?, ?)
	`, p.Symbol, domain.DayString(p.Date), p.Close.String())
	if err != nil {
		return fmt.Errorf("failed to upsert instrument price: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRatePoint(s rowScanner) (domain.RatePoint, error) {
	var point domain.RatePoint
	var dateStr, closeStr string

	if err := s.Scan(&point.Symbol, &dateStr, &closeStr); err != nil {
		return domain.RatePoint{}, fmt.Errorf("failed to scan rate point: %w", err)
	}

	date, err := domain.ParseDay(dateStr)
	if err != nil {
		return domain.RatePoint{}, fmt.Errorf("failed to parse date %s: %w", dateStr, err)
	}
	point.Date = date

	point.Close, err = decimal.NewFromString(closeStr)
	if err != nil {
		return domain.RatePoint{}, fmt.Errorf("failed to parse close %s: %w", closeStr, err)
	}

	return point, nil
}

func scanRatePointRow(row *sql.Row) (*domain.RatePoint, error) {
	point, err := scanRatePoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found (not an error)
		}
		return nil, err
	}
	return &point, nil
}
