package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateFormat is the canonical calendar-day format used across the system.
// Lexicographic order of formatted dates equals chronological order.
const DateFormat = "2006-01-02"

// Day truncates a timestamp to midnight UTC, the canonical day key
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayString formats a timestamp as its canonical day key
func DayString(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// ParseDay parses a canonical day key into a midnight-UTC timestamp
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}

// ActivityType classifies transactions in the canonical activity model
type ActivityType string

// Canonical activity types produced by the upstream broker parsers
const (
	ActivityBuy           ActivityType = "buy"
	ActivitySell          ActivityType = "sell"
	ActivityDeposit       ActivityType = "deposit"
	ActivityWithdrawal    ActivityType = "withdrawal"
	ActivityDividend      ActivityType = "dividend"
	ActivityInterest      ActivityType = "interest"
	ActivityFee           ActivityType = "fee"
	ActivityTransfer      ActivityType = "transfer"
	ActivityStakingReward ActivityType = "staking_reward"
	ActivityGift          ActivityType = "gift"
	ActivityBondRepayment ActivityType = "bond_repayment"
	ActivityLiability     ActivityType = "liability"
	ActivityValuable      ActivityType = "valuable"
	// ActivityKnownBalance is an explicit balance checkpoint. When present,
	// checkpoints are trusted exclusively and no cash-flow math is performed.
	ActivityKnownBalance ActivityType = "known_balance"
)

// Activity is one entry of an account's canonical transaction stream.
// Value carries the activity's total monetary amount in its native currency;
// Quantity is the traded quantity for buy/sell entries (signed).
type Activity struct {
	ID        uuid.UUID
	AccountID string
	Type      ActivityType
	Date      time.Time
	Quantity  decimal.Decimal
	Value     Money
}

// Balance is an account's cash balance on a calendar day, in the
// account's native currency.
type Balance struct {
	AccountID string
	Date      time.Time
	Money     Money
}

// BalancePrimaryCurrency mirrors a Balance converted into the configured
// primary currency. Keyed by (account, date); exactly one row per calendar
// day once normalized. Owned exclusively by the primary currency converter.
type BalancePrimaryCurrency struct {
	AccountID string
	Date      time.Time
	Money     Money
}

// CalculatedSnapshot is a dated valuation record for a holding within an
// account, in the holding's native currency.
type CalculatedSnapshot struct {
	HoldingID        string
	AccountID        string
	Date             time.Time
	Quantity         decimal.Decimal
	AverageCostPrice decimal.Decimal
	CurrentUnitPrice decimal.Decimal
	TotalInvested    decimal.Decimal
	TotalValue       decimal.Decimal
	Currency         Currency
}

// CalculatedSnapshotPrimaryCurrency mirrors a CalculatedSnapshot in the
// primary currency. Invariant: exactly one row per (holding, account, date)
// with a matching source row; orphans are removed by the converter's cleanup.
type CalculatedSnapshotPrimaryCurrency struct {
	HoldingID        string
	AccountID        string
	Date             time.Time
	Quantity         decimal.Decimal
	AverageCostPrice decimal.Decimal
	CurrentUnitPrice decimal.Decimal
	TotalInvested    decimal.Decimal
	TotalValue       decimal.Decimal
	Currency         Currency
}

// RatePoint is one FX pair daily closing price
type RatePoint struct {
	Symbol string // 6-character pair ticker, e.g. USDEUR
	Date   time.Time
	Close  decimal.Decimal
}

// ReturnFrequency declares the periodicity of a return series
type ReturnFrequency string

// Supported return series frequencies
const (
	FrequencyDaily   ReturnFrequency = "daily"
	FrequencyWeekly  ReturnFrequency = "weekly"
	FrequencyMonthly ReturnFrequency = "monthly"
	FrequencyYearly  ReturnFrequency = "yearly"
)

// ReturnObservation is one periodic return, optionally with the portfolio
// value at that date.
type ReturnObservation struct {
	Date   time.Time
	Return float64
	Value  *float64
}

// ReturnSeries is an ordered sequence of return observations with a declared
// frequency and currency. Insertion order is significant and represents
// time order.
type ReturnSeries struct {
	Frequency    ReturnFrequency
	Currency     Currency
	Observations []ReturnObservation
}

// Returns extracts the bare return values in time order
func (s ReturnSeries) Returns() []float64 {
	out := make([]float64, len(s.Observations))
	for i, obs := range s.Observations {
		out[i] = obs.Return
	}
	return out
}

// Values extracts the portfolio values in time order, skipping observations
// without a value.
func (s ReturnSeries) Values() []float64 {
	out := make([]float64, 0, len(s.Observations))
	for _, obs := range s.Observations {
		if obs.Value != nil {
			out = append(out, *obs.Value)
		}
	}
	return out
}
