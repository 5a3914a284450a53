// Package converter projects source balances and holding snapshots into the
// configured primary currency.
package converter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/balances"
	"github.com/mkarlsen/fxbase/internal/domain"
	"github.com/mkarlsen/fxbase/internal/fx"
	"github.com/mkarlsen/fxbase/internal/portfolio"
)

// chunkSize bounds how many source rows are converted per transaction.
// Cancellation is only honored between chunks, never inside one.
const chunkSize = 1000

// Converter is the primary currency conversion job. Each run rebuilds
// account balances from the activity streams, then regenerates the
// *_primary_currency projections from their source tables: convert every
// snapshot and balance, carry the last known balance of each account forward
// to today, then drop orphaned and stale projection rows. Runs are
// idempotent; re-running against unchanged sources rewrites identical rows.
type Converter struct {
	portfolio     *portfolio.Repository
	activities    domain.ActivityStore
	reconstructor *balances.Reconstructor
	settings      domain.SettingsStore
	resolver      *fx.Resolver
	cache         *fx.RateCache
	now           func() time.Time
	log           zerolog.Logger
}

// NewConverter creates the primary currency conversion job
func NewConverter(
	portfolioRepo *portfolio.Repository,
	activityRepo domain.ActivityStore,
	reconstructor *balances.Reconstructor,
	settings domain.SettingsStore,
	resolver *fx.Resolver,
	cache *fx.RateCache,
	log zerolog.Logger,
) *Converter {
	return &Converter{
		portfolio:     portfolioRepo,
		activities:    activityRepo,
		reconstructor: reconstructor,
		settings:      settings,
		resolver:      resolver,
		cache:         cache,
		now:           time.Now,
		log:           log.With().Str("job", "primary_currency_converter").Logger(),
	}
}

// Name returns the job name used by the scheduler
func (c *Converter) Name() string {
	return "primary_currency_converter"
}

// Run executes one full conversion pass
func (c *Converter) Run(ctx context.Context) error {
	started := c.now()

	primary, err := c.settings.PrimaryCurrency()
	if err != nil {
		return fmt.Errorf("failed to resolve primary currency: %w", err)
	}

	if err := c.cache.PreloadAll(); err != nil {
		return fmt.Errorf("failed to preload exchange rates: %w", err)
	}

	rebuilt, err := c.rebuildBalances(ctx, primary)
	if err != nil {
		return fmt.Errorf("balance reconstruction failed: %w", err)
	}

	snapshots, err := c.convertSnapshots(ctx, primary)
	if err != nil {
		return fmt.Errorf("snapshot conversion failed: %w", err)
	}

	balances, err := c.convertBalances(ctx, primary)
	if err != nil {
		return fmt.Errorf("balance conversion failed: %w", err)
	}

	extrapolated, err := c.extrapolateBalances(ctx, primary)
	if err != nil {
		return fmt.Errorf("balance extrapolation failed: %w", err)
	}

	orphans, stale, err := c.cleanup(ctx)
	if err != nil {
		return fmt.Errorf("projection cleanup failed: %w", err)
	}

	c.log.Info().
		Str("primary_currency", string(primary)).
		Int("balances_rebuilt", rebuilt).
		Int("snapshots", snapshots).
		Int("balances", balances).
		Int("extrapolated", extrapolated).
		Int64("orphans_deleted", orphans).
		Int64("stale_deleted", stale).
		Dur("duration", c.now().Sub(started)).
		Msg("Primary currency conversion completed")

	return nil
}

// rebuildBalances reconstructs each account's daily balances from its
// activity stream and writes them to the source balances table. Accounts
// without activities keep whatever balance rows an upstream writer supplied.
func (c *Converter) rebuildBalances(ctx context.Context, primary domain.Currency) (int, error) {
	accountIDs, err := c.activities.AccountIDs()
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, accountID := range accountIDs {
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}

		activities, err := c.activities.ListByAccount(accountID)
		if err != nil {
			return rebuilt, err
		}
		if len(activities) == 0 {
			continue
		}

		accountBalances, err := c.reconstructor.Calculate(primary, activities)
		if err != nil {
			return rebuilt, fmt.Errorf("account %s: %w", accountID, err)
		}

		for _, b := range accountBalances {
			b.AccountID = accountID
			if err := c.portfolio.UpsertBalance(b); err != nil {
				return rebuilt, err
			}
		}
		rebuilt += len(accountBalances)
	}

	return rebuilt, nil
}

// convertSnapshots mirrors every source snapshot into the primary currency.
// Monetary fields convert at the snapshot's own date; quantity passes through
// unchanged and the average cost price is rederived from the converted
// totals rather than converted directly.
func (c *Converter) convertSnapshots(ctx context.Context, primary domain.Currency) (int, error) {
	converted := 0

	for offset := 0; ; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			return converted, err
		}

		snapshots, err := c.portfolio.ListSnapshots(chunkSize, offset)
		if err != nil {
			return converted, err
		}
		if len(snapshots) == 0 {
			break
		}

		mirrors := make([]domain.CalculatedSnapshotPrimaryCurrency, 0, len(snapshots))
		for _, s := range snapshots {
			mirror, err := c.convertSnapshot(s, primary)
			if err != nil {
				return converted, err
			}
			mirrors = append(mirrors, mirror)
		}

		if err := c.portfolio.UpsertSnapshotMirrors(mirrors); err != nil {
			return converted, err
		}
		converted += len(mirrors)

		if len(snapshots) < chunkSize {
			break
		}
	}

	return converted, nil
}

func (c *Converter) convertSnapshot(s domain.CalculatedSnapshot, primary domain.Currency) (domain.CalculatedSnapshotPrimaryCurrency, error) {
	invested, err := c.convertAmount(s.TotalInvested, s.Currency, primary, s.Date)
	if err != nil {
		return domain.CalculatedSnapshotPrimaryCurrency{}, err
	}
	value, err := c.convertAmount(s.TotalValue, s.Currency, primary, s.Date)
	if err != nil {
		return domain.CalculatedSnapshotPrimaryCurrency{}, err
	}
	unitPrice, err := c.convertAmount(s.CurrentUnitPrice, s.Currency, primary, s.Date)
	if err != nil {
		return domain.CalculatedSnapshotPrimaryCurrency{}, err
	}

	avgCost := decimal.Zero
	if !s.Quantity.IsZero() {
		avgCost = invested.Div(s.Quantity)
	}

	return domain.CalculatedSnapshotPrimaryCurrency{
		HoldingID:        s.HoldingID,
		AccountID:        s.AccountID,
		Date:             s.Date,
		Quantity:         s.Quantity,
		AverageCostPrice: avgCost,
		CurrentUnitPrice: unitPrice,
		TotalInvested:    invested,
		TotalValue:       value,
		Currency:         primary,
	}, nil
}

// convertBalances mirrors every source balance into the primary currency at
// the balance's own date.
func (c *Converter) convertBalances(ctx context.Context, primary domain.Currency) (int, error) {
	converted := 0

	for offset := 0; ; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			return converted, err
		}

		balances, err := c.portfolio.ListBalances(chunkSize, offset)
		if err != nil {
			return converted, err
		}
		if len(balances) == 0 {
			break
		}

		mirrors := make([]domain.BalancePrimaryCurrency, 0, len(balances))
		for _, b := range balances {
			money, err := c.resolver.Convert(b.Money, primary, b.Date)
			if err != nil {
				return converted, err
			}
			mirrors = append(mirrors, domain.BalancePrimaryCurrency{
				AccountID: b.AccountID,
				Date:      b.Date,
				Money:     money,
			})
		}

		if err := c.portfolio.UpsertBalanceMirrors(mirrors); err != nil {
			return converted, err
		}
		converted += len(mirrors)

		if len(balances) < chunkSize {
			break
		}
	}

	return converted, nil
}

// extrapolateBalances fills every calendar-day gap in each account's
// primary-currency balances with the nearest prior day's amount, then
// carries the last known amount forward through today. The result is one
// row per day, no gaps, from the first known date to today.
//
// Only rows backed by a source balance act as carry-forward anchors; days
// without a source row are rewritten unconditionally, so a corrected source
// amount overwrites fill rows left behind by earlier runs.
func (c *Converter) extrapolateBalances(ctx context.Context, primary domain.Currency) (int, error) {
	accountIDs, err := c.portfolio.PrimaryBalanceAccountIDs()
	if err != nil {
		return 0, err
	}

	today := domain.Day(c.now())
	extrapolated := 0

	for _, accountID := range accountIDs {
		if err := ctx.Err(); err != nil {
			return extrapolated, err
		}

		known, err := c.portfolio.AnchoredPrimaryBalancesByAccount(accountID)
		if err != nil {
			return extrapolated, err
		}
		if len(known) == 0 {
			continue
		}

		var fill []domain.BalancePrimaryCurrency
		flush := func() error {
			if len(fill) == 0 {
				return nil
			}
			if err := c.portfolio.UpsertBalanceMirrors(fill); err != nil {
				return err
			}
			extrapolated += len(fill)
			fill = fill[:0]
			return nil
		}

		amount := known[0].Money.Amount
		next := 0
		for d := known[0].Date; !d.After(today); d = d.AddDate(0, 0, 1) {
			if next < len(known) && domain.DayString(known[next].Date) == domain.DayString(d) {
				amount = known[next].Money.Amount
				next++
				continue
			}

			fill = append(fill, domain.BalancePrimaryCurrency{
				AccountID: accountID,
				Date:      d,
				Money:     domain.NewMoneyAt(primary, amount, d),
			})
			if len(fill) == chunkSize {
				if err := flush(); err != nil {
					return extrapolated, err
				}
			}
		}
		if err := flush(); err != nil {
			return extrapolated, err
		}
	}

	return extrapolated, nil
}

// cleanup removes snapshot projections whose source row is gone, and balance
// projections that predate an account's first real balance. Both are
// leftovers a source-side delete or backfill can strand.
func (c *Converter) cleanup(ctx context.Context) (orphans, stale int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	orphans, err = c.portfolio.DeleteOrphanSnapshotMirrors()
	if err != nil {
		return 0, 0, err
	}

	accountIDs, err := c.portfolio.PrimaryBalanceAccountIDs()
	if err != nil {
		return orphans, 0, err
	}

	for _, accountID := range accountIDs {
		first, err := c.portfolio.FirstBalanceDate(accountID)
		if err != nil {
			return orphans, stale, err
		}
		if first == nil {
			continue
		}

		deleted, err := c.portfolio.DeletePrimaryBalancesBefore(accountID, *first)
		if err != nil {
			return orphans, stale, err
		}
		stale += deleted
	}

	return orphans, stale, nil
}

// convertAmount converts a bare decimal amount between currencies on a date
func (c *Converter) convertAmount(amount decimal.Decimal, from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	money, err := c.resolver.Convert(domain.NewMoneyAt(from, amount, date), to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return money.Amount, nil
}
