// Package balances derives day-indexed cash balance histories for accounts
// from their raw activity streams.
package balances

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarlsen/fxbase/internal/domain"
	"github.com/mkarlsen/fxbase/internal/fx"
)

// tieBreak orders activities that fall on the same calendar day. Cash
// arriving before cash leaving keeps intraday running totals sensible.
var tieBreak = map[domain.ActivityType]int{
	domain.ActivityKnownBalance:  0,
	domain.ActivityDeposit:       1,
	domain.ActivityBondRepayment: 2,
	domain.ActivityDividend:      3,
	domain.ActivityInterest:      4,
	domain.ActivityStakingReward: 5,
	domain.ActivitySell:          6,
	domain.ActivityBuy:           7,
	domain.ActivityFee:           8,
	domain.ActivityWithdrawal:    9,
	domain.ActivityTransfer:      10,
	domain.ActivityGift:          11,
	domain.ActivityLiability:     12,
	domain.ActivityValuable:      13,
}

// Reconstructor rebuilds an account's balance history from activities
type Reconstructor struct {
	resolver *fx.Resolver
	log      zerolog.Logger
}

// NewReconstructor creates a balance reconstructor
func NewReconstructor(resolver *fx.Resolver, log zerolog.Logger) *Reconstructor {
	return &Reconstructor{
		resolver: resolver,
		log:      log.With().Str("service", "balance_reconstructor").Logger(),
	}
}

// Calculate derives the account's balance history in baseCurrency.
//
// When explicit known-balance checkpoints exist they are trusted
// exclusively: sorted descending by date, deduplicated to the latest entry
// per distinct day, and returned directly with no cash-flow math.
//
// Without checkpoints, every activity contributes a signed cash delta
// converted into baseCurrency at its own date, and one cumulative Balance
// is emitted per distinct calendar day.
func (r *Reconstructor) Calculate(baseCurrency domain.Currency, activities []domain.Activity) ([]domain.Balance, error) {
	var checkpoints []domain.Activity
	for _, a := range activities {
		if a.Type == domain.ActivityKnownBalance {
			checkpoints = append(checkpoints, a)
		}
	}

	if len(checkpoints) > 0 {
		return r.fromCheckpoints(baseCurrency, checkpoints)
	}

	return r.fromCashFlows(baseCurrency, activities)
}

func (r *Reconstructor) fromCheckpoints(baseCurrency domain.Currency, checkpoints []domain.Activity) ([]domain.Balance, error) {
	// Latest checkpoint per distinct day wins; stream order breaks ties
	latest := make(map[string]domain.Activity, len(checkpoints))
	for _, c := range checkpoints {
		latest[domain.DayString(c.Date)] = c
	}

	balances := make([]domain.Balance, 0, len(latest))
	for _, c := range latest {
		converted, err := r.resolver.Convert(c.Value, baseCurrency, c.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to convert checkpoint on %s: %w", domain.DayString(c.Date), err)
		}
		balances = append(balances, domain.Balance{
			AccountID: c.AccountID,
			Date:      domain.Day(c.Date),
			Money:     converted,
		})
	}

	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Date.After(balances[j].Date)
	})

	r.log.Debug().
		Int("checkpoints", len(checkpoints)).
		Int("balances", len(balances)).
		Msg("Reconstructed balances from checkpoints")

	return balances, nil
}

func (r *Reconstructor) fromCashFlows(baseCurrency domain.Currency, activities []domain.Activity) ([]domain.Balance, error) {
	ordered := make([]domain.Activity, len(activities))
	copy(ordered, activities)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return tieBreak[ordered[i].Type] < tieBreak[ordered[j].Type]
	})

	var balances []domain.Balance
	total := decimal.Zero
	currentDay := ""
	var accountID string

	flush := func() error {
		if currentDay == "" {
			return nil
		}
		date, err := domain.ParseDay(currentDay)
		if err != nil {
			return fmt.Errorf("failed to parse balance day %s: %w", currentDay, err)
		}
		balances = append(balances, domain.Balance{
			AccountID: accountID,
			Date:      date,
			Money:     domain.NewMoneyAt(baseCurrency, total, date),
		})
		return nil
	}

	for _, a := range ordered {
		delta, err := cashDelta(a)
		if err != nil {
			return nil, err
		}

		day := domain.DayString(a.Date)
		if day != currentDay {
			if err := flush(); err != nil {
				return nil, err
			}
			currentDay = day
		}
		accountID = a.AccountID

		if delta.IsZero() {
			continue
		}

		converted, err := r.resolver.Convert(domain.NewMoneyAt(a.Value.Currency, delta, a.Date), baseCurrency, a.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to convert activity %s on %s: %w", a.ID, day, err)
		}
		total = total.Add(converted.Amount)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return balances, nil
}

// cashDelta returns the signed cash contribution of one activity.
// Transfers, staking rewards, gifts of assets and pure liability/valuable
// bookkeeping entries move no cash and contribute zero. An activity type
// with no rule here is a hard error: new upstream kinds must never
// silently corrupt balances.
func cashDelta(a domain.Activity) (decimal.Decimal, error) {
	amount := a.Value.Amount

	switch a.Type {
	case domain.ActivityDeposit,
		domain.ActivityDividend,
		domain.ActivityInterest,
		domain.ActivityBondRepayment:
		return amount, nil

	case domain.ActivityBuy,
		domain.ActivityWithdrawal,
		domain.ActivityFee:
		return amount.Neg(), nil

	case domain.ActivitySell:
		// A negative traded quantity flips the sale into an outflow
		if a.Quantity.IsNegative() {
			return amount.Neg(), nil
		}
		return amount, nil

	case domain.ActivityTransfer,
		domain.ActivityStakingReward,
		domain.ActivityGift,
		domain.ActivityLiability,
		domain.ActivityValuable:
		return decimal.Zero, nil

	default:
		return decimal.Zero, fmt.Errorf("cash delta not implemented for activity type %s", a.Type)
	}
}
