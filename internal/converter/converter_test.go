package converter

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/fxbase/internal/activities"
	"github.com/mkarlsen/fxbase/internal/balances"
	"github.com/mkarlsen/fxbase/internal/domain"
	"github.com/mkarlsen/fxbase/internal/fx"
	"github.com/mkarlsen/fxbase/internal/marketdata"
	"github.com/mkarlsen/fxbase/internal/portfolio"
	"github.com/mkarlsen/fxbase/internal/settings"
	testdb "github.com/mkarlsen/fxbase/internal/testing"
)

type fixture struct {
	converter     *Converter
	portfolioRepo *portfolio.Repository
	activityRepo  *activities.Repository
	marketRepo    *marketdata.Repository
}

func newFixture(t *testing.T, now string) *fixture {
	t.Helper()

	portfolioDB, cleanupPortfolio := testdb.NewTestDB(t, "portfolio")
	t.Cleanup(cleanupPortfolio)
	historyDB, cleanupHistory := testdb.NewTestDB(t, "history")
	t.Cleanup(cleanupHistory)

	log := zerolog.Nop()
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	activityRepo := activities.NewRepository(portfolioDB.Conn(), log)
	settingsRepo := settings.NewRepository(portfolioDB.Conn(), log)
	marketRepo := marketdata.NewRepository(historyDB.Conn(), log)

	require.NoError(t, settingsRepo.Seed(settings.PrimaryCurrencyKey, "EUR"))

	cache := fx.NewRateCache(marketRepo, log)
	resolver := fx.NewResolver(nil, nil, cache, marketRepo, fx.StrictFallback{}, log)
	reconstructor := balances.NewReconstructor(resolver, log)

	c := NewConverter(portfolioRepo, activityRepo, reconstructor, settingsRepo, resolver, cache, log)
	fixed := day(t, now)
	c.now = func() time.Time { return fixed }

	return &fixture{
		converter:     c,
		portfolioRepo: portfolioRepo,
		activityRepo:  activityRepo,
		marketRepo:    marketRepo,
	}
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

func balance(t *testing.T, accountID, date, amount string, currency domain.Currency) domain.Balance {
	t.Helper()
	d := day(t, date)
	return domain.Balance{
		AccountID: accountID,
		Date:      d,
		Money:     domain.NewMoneyAt(currency, dec(amount), d),
	}
}

func TestRunCarriesBalancesForwardToToday(t *testing.T) {
	f := newFixture(t, "2024-01-10")

	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))

	require.NoError(t, f.converter.Run(context.Background()))

	balances, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	require.Len(t, balances, 10, "one row per day from the balance date through today")
	assert.Equal(t, day(t, "2024-01-01"), balances[0].Date)
	assert.Equal(t, day(t, "2024-01-10"), balances[9].Date)
	for _, b := range balances {
		assert.True(t, dec("100").Equal(b.Money.Amount), "day %s", domain.DayString(b.Date))
		assert.Equal(t, domain.CurrencyEUR, b.Money.Currency)
	}
}

func TestRunRebuildsBalancesFromActivities(t *testing.T) {
	f := newFixture(t, "2024-01-04")

	deposit := domain.Activity{
		ID:        uuid.New(),
		AccountID: "acc-1",
		Type:      domain.ActivityDeposit,
		Date:      day(t, "2024-01-01"),
		Quantity:  decimal.NewFromInt(1),
		Value:     domain.NewMoneyAt(domain.CurrencyEUR, dec("100"), day(t, "2024-01-01")),
	}
	buy := domain.Activity{
		ID:        uuid.New(),
		AccountID: "acc-1",
		Type:      domain.ActivityBuy,
		Date:      day(t, "2024-01-02"),
		Quantity:  decimal.NewFromInt(2),
		Value:     domain.NewMoneyAt(domain.CurrencyEUR, dec("40"), day(t, "2024-01-02")),
	}
	require.NoError(t, f.activityRepo.Upsert(deposit))
	require.NoError(t, f.activityRepo.Upsert(buy))

	require.NoError(t, f.converter.Run(context.Background()))

	balances, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	// 100 on the deposit day, 60 after the buy, carried forward to today
	require.Len(t, balances, 4)
	assert.True(t, dec("100").Equal(balances[0].Money.Amount))
	assert.True(t, dec("60").Equal(balances[1].Money.Amount))
	assert.True(t, dec("60").Equal(balances[2].Money.Amount))
	assert.True(t, dec("60").Equal(balances[3].Money.Amount))
}

func TestRunFillsInteriorGapsWithPriorAmount(t *testing.T) {
	f := newFixture(t, "2024-01-12")

	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))
	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-10", "150", domain.CurrencyEUR)))

	require.NoError(t, f.converter.Run(context.Background()))

	balances, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	require.Len(t, balances, 12)
	for i, b := range balances {
		expected := "100"
		if i >= 9 { // 2024-01-10 onward
			expected = "150"
		}
		assert.True(t, dec(expected).Equal(b.Money.Amount),
			"day %s: want %s got %s", domain.DayString(b.Date), expected, b.Money.Amount)
	}
}

func TestRunPropagatesCorrectedBalanceToFilledDays(t *testing.T) {
	f := newFixture(t, "2024-01-05")

	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))
	require.NoError(t, f.converter.Run(context.Background()))

	// Upstream corrects the balance after the fill rows were written.
	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "200", domain.CurrencyEUR)))
	require.NoError(t, f.converter.Run(context.Background()))

	balances, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	require.Len(t, balances, 5)
	for _, b := range balances {
		assert.True(t, dec("200").Equal(b.Money.Amount),
			"day %s: fill rows from the earlier run must not pin the old amount, got %s",
			domain.DayString(b.Date), b.Money.Amount)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, "2024-01-05")

	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))
	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-03", "250", domain.CurrencyEUR)))

	require.NoError(t, f.converter.Run(context.Background()))
	first, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	require.NoError(t, f.converter.Run(context.Background()))
	second, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Date, second[i].Date)
		assert.True(t, first[i].Money.Amount.Equal(second[i].Money.Amount))
	}
}

func TestRunConvertsSnapshotsAndDerivesAverageCost(t *testing.T) {
	f := newFixture(t, "2024-01-02")

	require.NoError(t, f.marketRepo.UpsertFXRates([]domain.RatePoint{
		{Symbol: "USDEUR", Date: day(t, "2024-01-02"), Close: dec("0.5")},
	}))

	require.NoError(t, f.portfolioRepo.UpsertSnapshot(domain.CalculatedSnapshot{
		HoldingID:        "hold-1",
		AccountID:        "acc-1",
		Date:             day(t, "2024-01-02"),
		Quantity:         dec("4"),
		AverageCostPrice: dec("25"),
		CurrentUnitPrice: dec("30"),
		TotalInvested:    dec("100"),
		TotalValue:       dec("120"),
		Currency:         domain.CurrencyUSD,
	}))
	require.NoError(t, f.portfolioRepo.UpsertSnapshot(domain.CalculatedSnapshot{
		HoldingID:        "hold-empty",
		AccountID:        "acc-1",
		Date:             day(t, "2024-01-02"),
		Quantity:         decimal.Zero,
		AverageCostPrice: decimal.Zero,
		CurrentUnitPrice: dec("30"),
		TotalInvested:    decimal.Zero,
		TotalValue:       decimal.Zero,
		Currency:         domain.CurrencyUSD,
	}))

	require.NoError(t, f.converter.Run(context.Background()))

	count, err := f.portfolioRepo.CountSnapshotMirrors()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mirrors, err := listSnapshotMirrors(t, f.portfolioRepo)
	require.NoError(t, err)
	require.Len(t, mirrors, 2)

	converted := mirrors["hold-1"]
	assert.True(t, dec("50").Equal(converted.TotalInvested), "100 USD at 0.5 is 50 EUR, got %s", converted.TotalInvested)
	assert.True(t, dec("60").Equal(converted.TotalValue))
	assert.True(t, dec("15").Equal(converted.CurrentUnitPrice))
	assert.True(t, dec("12.5").Equal(converted.AverageCostPrice), "average cost is rederived from converted totals")
	assert.True(t, dec("4").Equal(converted.Quantity), "quantity never converts")
	assert.Equal(t, domain.CurrencyEUR, converted.Currency)

	empty := mirrors["hold-empty"]
	assert.True(t, empty.AverageCostPrice.IsZero(), "zero quantity must not divide")
}

func TestRunDeletesOrphanedSnapshotMirrors(t *testing.T) {
	f := newFixture(t, "2024-01-02")

	snapshot := domain.CalculatedSnapshot{
		HoldingID:        "hold-1",
		AccountID:        "acc-1",
		Date:             day(t, "2024-01-02"),
		Quantity:         dec("1"),
		AverageCostPrice: dec("10"),
		CurrentUnitPrice: dec("10"),
		TotalInvested:    dec("10"),
		TotalValue:       dec("10"),
		Currency:         domain.CurrencyEUR,
	}
	require.NoError(t, f.portfolioRepo.UpsertSnapshot(snapshot))
	require.NoError(t, f.converter.Run(context.Background()))

	count, err := f.portfolioRepo.CountSnapshotMirrors()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, f.portfolioRepo.DeleteSnapshot("hold-1", "acc-1", snapshot.Date))
	require.NoError(t, f.converter.Run(context.Background()))

	count, err = f.portfolioRepo.CountSnapshotMirrors()
	require.NoError(t, err)
	assert.Equal(t, 0, count, "mirror without a source row must be removed")
}

func TestRunDeletesStalePreFirstBalanceRows(t *testing.T) {
	f := newFixture(t, "2024-01-05")

	// Leftover projection from a run before the source history was rewritten.
	require.NoError(t, f.portfolioRepo.UpsertBalanceMirrors([]domain.BalancePrimaryCurrency{
		{AccountID: "acc-1", Date: day(t, "2023-12-20"), Money: domain.NewMoneyAt(domain.CurrencyEUR, dec("5"), day(t, "2023-12-20"))},
	}))
	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))

	require.NoError(t, f.converter.Run(context.Background()))

	balances, err := f.portfolioRepo.PrimaryBalancesByAccount("acc-1")
	require.NoError(t, err)
	require.NotEmpty(t, balances)
	assert.Equal(t, day(t, "2024-01-01"), balances[0].Date, "rows before the first real balance must be purged")
}

func TestRunHonorsCancellation(t *testing.T) {
	f := newFixture(t, "2024-01-05")

	require.NoError(t, f.portfolioRepo.UpsertBalance(balance(t, "acc-1", "2024-01-01", "100", domain.CurrencyEUR)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.converter.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func listSnapshotMirrors(t *testing.T, repo *portfolio.Repository) (map[string]domain.CalculatedSnapshotPrimaryCurrency, error) {
	t.Helper()
	rows, err := repo.ListSnapshotMirrors(100, 0)
	if err != nil {
		return nil, err
	}
	mirrors := make(map[string]domain.CalculatedSnapshotPrimaryCurrency, len(rows))
	for _, m := range rows {
		mirrors[m.HoldingID] = m
	}
	return mirrors, nil
}
