package activities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/fxbase/internal/domain"
	testdb "github.com/mkarlsen/fxbase/internal/testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testdb.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func newActivity(t *testing.T, accountID string, typ domain.ActivityType, date string) domain.Activity {
	t.Helper()
	d, err := domain.ParseDay(date)
	require.NoError(t, err)
	return domain.Activity{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Date:      d,
		Quantity:  decimal.NewFromInt(1),
		Value:     domain.NewMoneyAt(domain.CurrencyEUR, decimal.NewFromInt(100), d),
	}
}

func TestListByAccountOrdersByDate(t *testing.T) {
	repo := newTestRepo(t)

	// Inserted out of order on purpose
	require.NoError(t, repo.Upsert(newActivity(t, "acc-1", domain.ActivityBuy, "2024-02-15")))
	require.NoError(t, repo.Upsert(newActivity(t, "acc-1", domain.ActivityDeposit, "2024-01-03")))
	require.NoError(t, repo.Upsert(newActivity(t, "acc-2", domain.ActivityDeposit, "2024-01-01")))

	activities, err := repo.ListByAccount("acc-1")
	require.NoError(t, err)

	require.Len(t, activities, 2)
	assert.Equal(t, domain.ActivityDeposit, activities[0].Type)
	assert.Equal(t, domain.ActivityBuy, activities[1].Type)
	assert.True(t, activities[0].Date.Before(activities[1].Date))
	assert.True(t, decimal.NewFromInt(100).Equal(activities[0].Value.Amount))
}

func TestListByAccountUnknownAccountIsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	activities, err := repo.ListByAccount("nobody")
	require.NoError(t, err)
	assert.Empty(t, activities)
}

func TestUpsertReplacesByID(t *testing.T) {
	repo := newTestRepo(t)

	a := newActivity(t, "acc-1", domain.ActivityDeposit, "2024-01-03")
	require.NoError(t, repo.Upsert(a))

	a.Value = domain.NewMoneyAt(domain.CurrencyEUR, decimal.NewFromInt(250), a.Date)
	require.NoError(t, repo.Upsert(a))

	activities, err := repo.ListByAccount("acc-1")
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(activities[0].Value.Amount))
}

func TestAccountIDsAreDistinctAndSorted(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Upsert(newActivity(t, "acc-b", domain.ActivityDeposit, "2024-01-01")))
	require.NoError(t, repo.Upsert(newActivity(t, "acc-a", domain.ActivityDeposit, "2024-01-02")))
	require.NoError(t, repo.Upsert(newActivity(t, "acc-a", domain.ActivityBuy, "2024-01-03")))

	ids, err := repo.AccountIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-a", "acc-b"}, ids)
}
