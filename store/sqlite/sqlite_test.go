package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testAccount(id, owner string) ledger.Account {
	return ledger.Account{
		Meta:           ledger.Meta{ID: id, CreatedAt: t0, UpdatedAt: t0},
		OwnerID:        owner,
		Name:           "Compte " + id,
		Type:           ledger.AccountCurrent,
		InitialBalance: 100000,
		Balance:        100000,
	}
}

func TestNew_SeedsSystemCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cats, err := store.ListCategories(ctx, ledger.CategoryFilter{OwnerID: "user-1"})
	require.NoError(t, err)
	require.Len(t, cats, len(systemCategories))
	for _, c := range cats {
		assert.True(t, c.IsSystem)
		assert.True(t, c.IsShared())
	}

	salary, err := store.GetCategory(ctx, SystemCategoryID("Salaire", ledger.CategoryIncome))
	require.NoError(t, err)
	assert.Equal(t, "Salaire", salary.Name)
}

func TestAccounts_RoundTripAndTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAccount("acc-1", "user-1")
	a.IsDefault = true
	require.NoError(t, store.CreateAccount(ctx, a))

	got, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.True(t, got.IsDefault)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Nil(t, got.DeletedAt)

	deletedAt := t0.Add(time.Hour)
	got.MarkDeleted(deletedAt)
	require.NoError(t, store.UpdateAccount(ctx, got))

	live, err := store.ListAccounts(ctx, ledger.AccountFilter{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := store.ListAccounts(ctx, ledger.AccountFilter{OwnerID: "user-1", IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].DeletedAt)
	assert.True(t, all[0].DeletedAt.Equal(deletedAt))
}

func TestGetAccount_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAccount(context.Background(), "missing")
	assert.True(t, ledger.IsNotFound(err))

	err = store.UpdateAccount(context.Background(), testAccount("missing", "user-1"))
	assert.True(t, ledger.IsNotFound(err))
}

func TestClearDefaultAccounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		a := testAccount(id, "user-1")
		a.IsDefault = true
		require.NoError(t, store.CreateAccount(ctx, a))
	}
	require.NoError(t, store.ClearDefaultAccounts(ctx, "user-1", "b", t0.Add(time.Minute)))

	a, _ := store.GetAccount(ctx, "a")
	b, _ := store.GetAccount(ctx, "b")
	assert.False(t, a.IsDefault)
	assert.True(t, a.UpdatedAt.After(t0), "cleared account must be picked up by the next pull")
	assert.True(t, b.IsDefault)
}

func TestSumTransactions_ExcludesTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, testAccount("acc-1", "user-1")))

	day := ledger.MustParseDate("2026-03-02")
	for i, amount := range []int64{1000, 2500, 4000} {
		tx := ledger.Transaction{
			Meta:      ledger.Meta{ID: string(rune('a' + i)), CreatedAt: t0, UpdatedAt: t0},
			OwnerID:   "user-1",
			Amount:    amount,
			Type:      ledger.TxExpense,
			AccountID: "acc-1",
			Date:      day,
		}
		require.NoError(t, store.CreateTransaction(ctx, tx))
	}

	c, err := store.GetTransaction(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, day, c.Date)
	c.MarkDeleted(t0.Add(time.Hour))
	require.NoError(t, store.UpdateTransaction(ctx, c))

	sum, err := store.SumTransactions(ctx, ledger.TransactionFilter{AccountID: "acc-1", Type: ledger.TxExpense})
	require.NoError(t, err)
	assert.Equal(t, int64(3500), sum)

	from := ledger.MustParseDate("2026-03-03")
	sum, err = store.SumTransactions(ctx, ledger.TransactionFilter{AccountID: "acc-1", From: &from})
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestListTransactions_UpdatedSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	early := ledger.Transaction{
		Meta: ledger.Meta{ID: "early", CreatedAt: t0, UpdatedAt: t0},
		OwnerID: "user-1", Amount: 100, Type: ledger.TxIncome, AccountID: "acc-1",
		Date: ledger.MustParseDate("2026-03-01"),
	}
	late := early
	late.ID = "late"
	late.UpdatedAt = t0.Add(2 * time.Hour)
	late.MarkDeleted(t0.Add(2 * time.Hour))
	require.NoError(t, store.CreateTransaction(ctx, early))
	require.NoError(t, store.CreateTransaction(ctx, late))

	since := t0.Add(time.Hour)
	got, err := store.ListTransactions(ctx, ledger.TransactionFilter{
		OwnerID: "user-1", UpdatedSince: &since, IncludeDeleted: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)
	assert.True(t, got[0].IsDeleted())
}

func TestRecurring_DueQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := 31
	end := ledger.MustParseDate("2026-12-31")
	r := ledger.RecurringTransaction{
		Meta:        ledger.Meta{ID: "rec-1", CreatedAt: t0, UpdatedAt: t0},
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Type:        ledger.TxExpense,
		Amount:      5000,
		Frequency:   ledger.FreqMonthly,
		DayOfMonth:  &day,
		StartDate:   ledger.MustParseDate("2026-01-31"),
		EndDate:     &end,
		NextDueDate: ledger.MustParseDate("2026-03-31"),
		IsActive:    true,
	}
	require.NoError(t, store.CreateRecurring(ctx, r))

	got, err := store.GetRecurring(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got.DayOfMonth)
	assert.Equal(t, 31, *got.DayOfMonth)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, end, *got.EndDate)
	assert.Nil(t, got.LastGeneratedDate)
	assert.Nil(t, got.RemainingOccurrences)

	owners, err := store.OwnersWithDueRecurring(ctx, ledger.MustParseDate("2026-03-30"))
	require.NoError(t, err)
	assert.Empty(t, owners)

	owners, err = store.OwnersWithDueRecurring(ctx, ledger.MustParseDate("2026-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, owners)
}

func TestBudgetSettings_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetBudgetSettings(ctx, "user-1")
	assert.True(t, ledger.IsNotFound(err))

	s := ledger.DefaultBudgetSettings("user-1")
	s.UpdatedAt = t0
	require.NoError(t, store.SaveBudgetSettings(ctx, s))

	s.PreferredStartDay = 25
	s.ToleranceStartDay = 23
	s.ToleranceEndDay = 3
	require.NoError(t, store.SaveBudgetSettings(ctx, s))

	got, err := store.GetBudgetSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25, got.PreferredStartDay)
	assert.Equal(t, 3, got.ToleranceEndDay)
}

func TestBudgetCycles_OneActivePerOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ActiveCycle(ctx, "user-1")
	assert.ErrorIs(t, err, ledger.ErrNoActiveCycle)

	c := ledger.BudgetCycle{
		Meta:       ledger.Meta{ID: "cyc-1", CreatedAt: t0, UpdatedAt: t0},
		OwnerID:    "user-1",
		StartDate:  ledger.MustParseDate("2026-03-01"),
		PeriodName: "Mars 2026",
		Status:     ledger.CycleActive,
	}
	require.NoError(t, store.CreateCycle(ctx, c))

	second := c
	second.ID = "cyc-2"
	err = store.CreateCycle(ctx, second)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	end := ledger.MustParseDate("2026-03-31")
	c.Status = ledger.CycleClosed
	c.EndDate = &end
	require.NoError(t, store.UpdateCycle(ctx, c))
	require.NoError(t, store.CreateCycle(ctx, second))

	active, err := store.ActiveCycle(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cyc-2", active.ID)
}

func TestWithTx_SavepointRollsBackOnlyInnerWork(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(repo ledger.Repository) error {
		if err := repo.CreateAccount(ctx, testAccount("outer", "user-1")); err != nil {
			return err
		}
		innerErr := repo.WithTx(ctx, func(inner ledger.Repository) error {
			if err := inner.CreateAccount(ctx, testAccount("inner", "user-1")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, innerErr, boom)
		return nil
	})
	require.NoError(t, err)

	_, err = store.GetAccount(ctx, "outer")
	assert.NoError(t, err)
	_, err = store.GetAccount(ctx, "inner")
	assert.True(t, ledger.IsNotFound(err))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(repo ledger.Repository) error {
		if err := repo.CreateAccount(ctx, testAccount("acc-1", "user-1")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = store.GetAccount(ctx, "acc-1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDebtsAndGoals_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	due := ledger.MustParseDate("2026-06-30")
	d := ledger.Debt{
		Meta: ledger.Meta{ID: "debt-1", CreatedAt: t0, UpdatedAt: t0},
		OwnerID: "user-1", Name: "Prêt", Type: ledger.DebtOwed,
		InitialAmount: 20000, CurrentAmount: 20000, DueDate: &due, Status: ledger.DebtActive,
	}
	require.NoError(t, store.CreateDebt(ctx, d))
	gotDebt, err := store.GetDebt(ctx, "debt-1")
	require.NoError(t, err)
	require.NotNil(t, gotDebt.DueDate)
	assert.Equal(t, due, *gotDebt.DueDate)

	g := ledger.Goal{
		Meta: ledger.Meta{ID: "goal-1", CreatedAt: t0, UpdatedAt: t0},
		OwnerID: "user-1", Name: "Vacances", Type: ledger.GoalSavings,
		TargetAmount: 100000, Status: ledger.GoalActive,
	}
	require.NoError(t, store.CreateGoal(ctx, g))
	goals, err := store.ListGoals(ctx, ledger.OwnedFilter{OwnerID: "user-1"})
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Nil(t, goals[0].TargetDate)
	assert.Nil(t, goals[0].LinkedAccountID)
}
