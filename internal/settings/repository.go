// Package settings provides access to application settings stored in the
// portfolio database.
package settings

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// PrimaryCurrencyKey stores the configured primary reporting currency
const PrimaryCurrencyKey = "primary_currency"

// Repository reads and writes settings. Implements domain.SettingsStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new settings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "settings_repo").Logger(),
	}
}

// Get returns a setting value. Returns nil if the key is unset (not an error).
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set inserts or replaces a setting value
func (r *Repository) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Seed stores a setting only when the key is currently unset.
// Used at startup so environment defaults never clobber stored values.
func (r *Repository) Seed(key, value string) error {
	existing, err := r.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	r.log.Info().Str("key", key).Str("value", value).Msg("Seeding setting")
	return r.Set(key, value)
}

// PrimaryCurrency returns the configured primary reporting currency.
// Falls back to EUR when no value has been stored.
func (r *Repository) PrimaryCurrency() (domain.Currency, error) {
	value, err := r.Get(PrimaryCurrencyKey)
	if err != nil {
		return "", err
	}
	if value == nil || *value == "" {
		r.log.Warn().Msg("Primary currency not configured, defaulting to EUR")
		return domain.CurrencyEUR, nil
	}
	return domain.Currency(*value), nil
}
