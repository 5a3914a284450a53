// Package activities provides access to the canonical per-account
// transaction stream produced by the upstream broker parsers.
package activities

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// Repository reads and writes activities. Implements domain.ActivityStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new activity repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "activity_repo").Logger(),
	}
}

// ListByAccount returns an account's full activity stream ordered by date
func (r *Repository) ListByAccount(accountID string) ([]domain.Activity, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, type, date, quantity, amount, currency
		FROM activities
		WHERE account_id = ?
		ORDER BY date ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var idStr, typeStr, dateStr, quantityStr, amountStr, currencyStr string

		if err := rows.Scan(&idStr, &a.AccountID, &typeStr, &dateStr, &quantityStr, &amountStr, &currencyStr); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		a.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity id %s: %w", idStr, err)
		}

		a.Type = domain.ActivityType(typeStr)

		a.Date, err = domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity date %s: %w", dateStr, err)
		}

		a.Quantity, err = decimal.NewFromString(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity quantity %s: %w", quantityStr, err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity amount %s: %w", amountStr, err)
		}
		a.Value = domain.NewMoneyAt(domain.Currency(currencyStr), amount, a.Date)

		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// AccountIDs returns the distinct account identifiers present in the store
func (r *Repository) AccountIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT account_id FROM activities ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query account ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account ids: %w", err)
	}

	return ids, nil
}

// Upsert inserts or replaces one activity keyed by its id
func (r *Repository) Upsert(a domain.Activity) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO activities (id, account_id, type, date, quantity, amount, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID.String(),
		a.AccountID,
		string(a.Type),
		domain.DayString(a.Date),
		a.Quantity.String(),
		a.Value.Amount.String(),
		string(a.Value.Currency),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert activity %s: %w", a.ID, err)
	}

	return nil
}
