// Package portfolio provides access to account balances, holding valuation
// snapshots and their primary-currency projections.
//
// The *_primary_currency tables are derived, disposable projections: they
// are created, updated and deleted exclusively by the primary currency
// converter and are safe to regenerate from the source tables at any time.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
)

// Repository reads and writes balances, snapshots and their mirrors
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "portfolio_repo").Logger(),
	}
}

// --- Source rows (written by upstream components, read here) ---

// UpsertBalance inserts or replaces one source balance keyed by (account, date)
func (r *Repository) UpsertBalance(b domain.Balance) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO balances (account_id, date, amount, currency)
		VALUES (?, ?, ?, ?)
	`, b.AccountID, domain.DayString(b.Date), b.Money.Amount.String(), string(b.Money.Currency))
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// UpsertSnapshot inserts or replaces one source snapshot keyed by
// (holding, account, date)
func (r *Repository) UpsertSnapshot(s domain.CalculatedSnapshot) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO calculated_snapshots
		(holding_id, account_id, date, quantity, average_cost_price, current_unit_price, total_invested, total_value, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.HoldingID, s.AccountID, domain.DayString(s.Date),
		s.Quantity.String(), s.AverageCostPrice.String(), s.CurrentUnitPrice.String(),
		s.TotalInvested.String(), s.TotalValue.String(), string(s.Currency),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes one source snapshot
func (r *Repository) DeleteSnapshot(holdingID, accountID string, date time.Time) error {
	_, err := r.db.Exec(`
		DELETE FROM calculated_snapshots
		WHERE holding_id = ? AND account_id = ? AND date = ?
	`, holdingID, accountID, domain.DayString(date))
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns source snapshots in stable (holding, account, date)
// order, limited to one chunk.
func (r *Repository) ListSnapshots(limit, offset int) ([]domain.CalculatedSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT holding_id, account_id, date, quantity, average_cost_price, current_unit_price, total_invested, total_value, currency
		FROM calculated_snapshots
		ORDER BY holding_id, account_id, date
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.CalculatedSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// ListBalances returns source balances in stable (account, date) order,
// limited to one chunk.
func (r *Repository) ListBalances(limit, offset int) ([]domain.Balance, error) {
	rows, err := r.db.Query(`
		SELECT account_id, date, amount, currency
		FROM balances
		ORDER BY account_id, date
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		var dateStr, amountStr, currencyStr string

		if err := rows.Scan(&b.AccountID, &dateStr, &amountStr, &currencyStr); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}

		b.Date, err = domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance date %s: %w", dateStr, err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance amount %s: %w", amountStr, err)
		}
		b.Money = domain.NewMoneyAt(domain.Currency(currencyStr), amount, b.Date)

		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}

	return balances, nil
}

// FirstBalanceDate returns an account's earliest source balance date,
// or nil when the account has no source balances.
func (r *Repository) FirstBalanceDate(accountID string) (*time.Time, error) {
	var dateStr sql.NullString
	err := r.db.QueryRow(`
		SELECT MIN(date) FROM balances WHERE account_id = ?
	`, accountID).Scan(&dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query first balance date: %w", err)
	}
	if !dateStr.Valid {
		return nil, nil
	}

	date, err := domain.ParseDay(dateStr.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse first balance date %s: %w", dateStr.String, err)
	}
	return &date, nil
}

// --- Primary currency projections (owned by the converter) ---

// UpsertSnapshotMirrors writes one chunk of snapshot projections in a single
// transaction, each keyed by (holding, account, date).
func (r *Repository) UpsertSnapshotMirrors(mirrors []domain.CalculatedSnapshotPrimaryCurrency) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO calculated_snapshots_primary_currency
		(holding_id, account_id, date, quantity, average_cost_price, current_unit_price, total_invested, total_value, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range mirrors {
		_, err := stmt.Exec(
			m.HoldingID, m.AccountID, domain.DayString(m.Date),
			m.Quantity.String(), m.AverageCostPrice.String(), m.CurrentUnitPrice.String(),
			m.TotalInvested.String(), m.TotalValue.String(), string(m.Currency),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert snapshot mirror: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpsertBalanceMirrors writes one chunk of balance projections in a single
// transaction, each keyed by (account, date).
func (r *Repository) UpsertBalanceMirrors(mirrors []domain.BalancePrimaryCurrency) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO balances_primary_currency (account_id, date, amount, currency)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range mirrors {
		_, err := stmt.Exec(m.AccountID, domain.DayString(m.Date), m.Money.Amount.String(), string(m.Money.Currency))
		if err != nil {
			return fmt.Errorf("failed to upsert balance mirror: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListSnapshotMirrors returns snapshot projections in stable
// (holding, account, date) order, limited to one chunk.
func (r *Repository) ListSnapshotMirrors(limit, offset int) ([]domain.CalculatedSnapshotPrimaryCurrency, error) {
	rows, err := r.db.Query(`
		SELECT holding_id, account_id, date, quantity, average_cost_price, current_unit_price, total_invested, total_value, currency
		FROM calculated_snapshots_primary_currency
		ORDER BY holding_id, account_id, date
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot mirrors: %w", err)
	}
	defer rows.Close()

	var mirrors []domain.CalculatedSnapshotPrimaryCurrency
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		mirrors = append(mirrors, domain.CalculatedSnapshotPrimaryCurrency(s))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot mirrors: %w", err)
	}

	return mirrors, nil
}

// PrimaryBalanceAccountIDs returns the accounts that currently have
// primary-currency balance rows.
func (r *Repository) PrimaryBalanceAccountIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT account_id FROM balances_primary_currency ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query primary balance accounts: %w", err)
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

// PrimaryBalancesByAccount returns an account's primary-currency balances
// in ascending date order.
func (r *Repository) PrimaryBalancesByAccount(accountID string) ([]domain.BalancePrimaryCurrency, error) {
	return r.queryPrimaryBalances(`
		SELECT account_id, date, amount, currency
		FROM balances_primary_currency
		WHERE account_id = ?
		ORDER BY date ASC
	`, accountID)
}

// AnchoredPrimaryBalancesByAccount returns an account's primary-currency
// balances restricted to dates backed by a row in the source balances table,
// in ascending date order. Projection rows on other dates were written by a
// previous extrapolation pass and carry no information of their own.
func (r *Repository) AnchoredPrimaryBalancesByAccount(accountID string) ([]domain.BalancePrimaryCurrency, error) {
	return r.queryPrimaryBalances(`
		SELECT p.account_id, p.date, p.amount, p.currency
		FROM balances_primary_currency p
		JOIN balances b ON b.account_id = p.account_id AND b.date = p.date
		WHERE p.account_id = ?
		ORDER BY p.date ASC
	`, accountID)
}

func (r *Repository) queryPrimaryBalances(query string, args ...any) ([]domain.BalancePrimaryCurrency, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.BalancePrimaryCurrency
	for rows.Next() {
		var b domain.BalancePrimaryCurrency
		var dateStr, amountStr, currencyStr string

		if err := rows.Scan(&b.AccountID, &dateStr, &amountStr, &currencyStr); err != nil {
			return nil, fmt.Errorf("failed to scan primary balance: %w", err)
		}

		b.Date, err = domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse primary balance date %s: %w", dateStr, err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse primary balance amount %s: %w", amountStr, err)
		}
		b.Money = domain.NewMoneyAt(domain.Currency(currencyStr), amount, b.Date)

		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating primary balances: %w", err)
	}

	return balances, nil
}

// DeleteOrphanSnapshotMirrors removes projections whose source snapshot no
// longer exists at the same (holding, account, date). Returns rows deleted.
func (r *Repository) DeleteOrphanSnapshotMirrors() (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM calculated_snapshots_primary_currency
		WHERE NOT EXISTS (
			SELECT 1 FROM calculated_snapshots s
			WHERE s.holding_id = calculated_snapshots_primary_currency.holding_id
			  AND s.account_id = calculated_snapshots_primary_currency.account_id
			  AND s.date = calculated_snapshots_primary_currency.date
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan snapshot mirrors: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// DeletePrimaryBalancesBefore removes an account's projections that predate
// its first real balance date. These are stale leftovers from a previous
// run's extrapolation window. Returns rows deleted.
func (r *Repository) DeletePrimaryBalancesBefore(accountID string, date time.Time) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM balances_primary_currency
		WHERE account_id = ? AND date < ?
	`, accountID, domain.DayString(date))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale primary balances: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// CountSnapshotMirrors returns the number of snapshot projection rows
func (r *Repository) CountSnapshotMirrors() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM calculated_snapshots_primary_currency").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshot mirrors: %w", err)
	}
	return count, nil
}

// CountPrimaryBalances returns the number of balance projection rows
func (r *Repository) CountPrimaryBalances() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM balances_primary_currency").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count primary balances: %w", err)
	}
	return count, nil
}

func scanSnapshot(rows *sql.Rows) (domain.CalculatedSnapshot, error) {
	var s domain.CalculatedSnapshot
	var dateStr, quantityStr, avgCostStr, unitPriceStr, investedStr, valueStr, currencyStr string

	err := rows.Scan(
		&s.HoldingID, &s.AccountID, &dateStr,
		&quantityStr, &avgCostStr, &unitPriceStr, &investedStr, &valueStr, &currencyStr,
	)
	if err != nil {
		return domain.CalculatedSnapshot{}, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	s.Date, err = domain.ParseDay(dateStr)
	if err != nil {
		return domain.CalculatedSnapshot{}, fmt.Errorf("failed to parse snapshot date %s: %w", dateStr, err)
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&s.Quantity, quantityStr},
		{&s.AverageCostPrice, avgCostStr},
		{&s.CurrentUnitPrice, unitPriceStr},
		{&s.TotalInvested, investedStr},
		{&s.TotalValue, valueStr},
	}
	for _, f := range fields {
		*f.dst, err = decimal.NewFromString(f.src)
		if err != nil {
			return domain.CalculatedSnapshot{}, fmt.Errorf("failed to parse snapshot decimal %s: %w", f.src, err)
		}
	}

	s.Currency = domain.Currency(currencyStr)
	return s, nil
}
