package budget

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/store/sqlite"
)

type fixture struct {
	ctx     context.Context
	clock   *ledger.ManualClock
	ledger  *ledger.Ledger
	manager *Manager
	account ledger.Account
	food    ledger.Category
	salary  ledger.Category
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewManualClock(d(today).Time.Add(10 * time.Hour))
	l := ledger.New(store, clock)
	ctx := context.Background()

	acc, err := l.CreateAccount(ctx, "user-1", ledger.Account{Name: "Courant", InitialBalance: 500000})
	require.NoError(t, err)

	limit := int64(60000)
	food, err := l.CreateCategory(ctx, "user-1", ledger.Category{Name: "Courses", Type: ledger.CategoryExpense, BudgetLimit: &limit})
	require.NoError(t, err)
	salary, err := l.CreateCategory(ctx, "user-1", ledger.Category{Name: "Paie", Type: ledger.CategoryIncome})
	require.NoError(t, err)

	return &fixture{ctx: ctx, clock: clock, ledger: l, manager: NewManager(l), account: acc, food: food, salary: salary}
}

func (f *fixture) spend(t *testing.T, amount int64, date string) ledger.Transaction {
	t.Helper()
	tx, err := f.ledger.CreateTransaction(f.ctx, "user-1", ledger.Transaction{
		Amount: amount, Type: ledger.TxExpense, AccountID: f.account.ID, CategoryID: &f.food.ID, Date: d(date),
	})
	require.NoError(t, err)
	return tx
}

func TestCurrentCycle_CreatesDefaultFromSettings(t *testing.T) {
	// GIVEN: Cycles start on the 25th and today is Mar 10
	f := newFixture(t, "2026-03-10")
	s := ledger.DefaultBudgetSettings("user-1")
	s.PreferredStartDay = 25
	_, err := f.manager.SaveSettings(f.ctx, "user-1", s)
	require.NoError(t, err)

	// WHEN: Reading the current cycle
	c, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)

	// THEN: It started last month on the 25th and is named for March
	assert.Equal(t, d("2026-02-25"), c.StartDate)
	assert.Equal(t, "Mars 2026", c.PeriodName)
	assert.Equal(t, ledger.CycleActive, c.Status)
	assert.Nil(t, c.EndDate)

	// AND: Reading again returns the same cycle
	again, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestCurrentCycle_TotalsAreLive(t *testing.T) {
	f := newFixture(t, "2026-03-10")
	f.spend(t, 12000, "2026-03-02")
	f.spend(t, 5000, "2026-02-27") // before the cycle

	c, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), c.TotalSpent)
	assert.Equal(t, int64(60000), c.TotalBudget)

	// A limit edit retroactively changes the open cycle's budget
	_, err = f.ledger.UpdateCategory(f.ctx, "user-1", f.food.ID, func(c *ledger.Category) error {
		limit := int64(80000)
		c.BudgetLimit = &limit
		return nil
	})
	require.NoError(t, err)

	c, err = f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80000), c.TotalBudget)
}

func TestStart_ClosesPreviousAndFreezesIt(t *testing.T) {
	// GIVEN: An active cycle with spending
	f := newFixture(t, "2026-03-10")
	first, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)
	f.spend(t, 10000, "2026-03-05")

	// WHEN: Starting a new cycle on Mar 28
	f.clock.Set(d("2026-03-28").Time)
	second, err := f.manager.Start(f.ctx, "user-1", d("2026-03-28"), nil)
	require.NoError(t, err)

	// THEN: The new cycle is active and named for April
	assert.Equal(t, "Avril 2026", second.PeriodName)
	assert.Zero(t, second.TotalSpent)

	// AND: The previous one closed the day before with frozen totals
	closed, err := f.manager.Cycle(f.ctx, "user-1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleClosed, closed.Status)
	require.NotNil(t, closed.EndDate)
	assert.Equal(t, d("2026-03-27"), *closed.EndDate)
	assert.Equal(t, int64(10000), closed.TotalSpent)

	// AND: Later spending and limit edits do not touch the closed cycle
	f.spend(t, 3000, "2026-03-20")
	_, err = f.ledger.UpdateCategory(f.ctx, "user-1", f.food.ID, func(c *ledger.Category) error {
		c.BudgetLimit = nil
		return nil
	})
	require.NoError(t, err)
	closed, err = f.manager.Cycle(f.ctx, "user-1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), closed.TotalSpent)
	assert.Equal(t, int64(60000), closed.TotalBudget)

	// AND: Exactly one cycle is active
	cycles, err := f.manager.ListCycles(f.ctx, "user-1")
	require.NoError(t, err)
	active := 0
	for _, c := range cycles {
		if c.Status == ledger.CycleActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestStart_RejectsStartBeforeCurrent(t *testing.T) {
	f := newFixture(t, "2026-03-10")
	_, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)

	_, err = f.manager.Start(f.ctx, "user-1", d("2026-02-15"), nil)
	assert.True(t, ledger.IsClientError(err))
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t, "2026-03-10")
	c, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)

	closed, err := f.manager.Close(f.ctx, "user-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleClosed, closed.Status)
	require.NotNil(t, closed.EndDate)
	assert.Equal(t, d("2026-03-10"), *closed.EndDate)

	again, err := f.manager.Close(f.ctx, "user-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, *closed.EndDate, *again.EndDate)

	_, err = f.manager.Close(f.ctx, "intruder", c.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestMaybeRollover_OnSalary(t *testing.T) {
	// GIVEN: Auto rollover on, salary expected between the 27th and the 3rd
	f := newFixture(t, "2026-03-10")
	f.manager.AutoRollover = true
	s := ledger.DefaultBudgetSettings("user-1")
	s.AutoDetectSalary = true
	s.ToleranceStartDay, s.ToleranceEndDay = 27, 3
	s.SalaryCategoryID = &f.salary.ID
	_, err := f.manager.SaveSettings(f.ctx, "user-1", s)
	require.NoError(t, err)
	before, err := f.manager.CurrentCycle(f.ctx, "user-1")
	require.NoError(t, err)

	// WHEN: The salary lands on Mar 28
	f.clock.Set(d("2026-03-28").Time)
	salary, err := f.ledger.CreateTransaction(f.ctx, "user-1", ledger.Transaction{
		Amount: 250000, Type: ledger.TxIncome, AccountID: f.account.ID, CategoryID: &f.salary.ID, Date: d("2026-03-28"),
	})
	require.NoError(t, err)
	c, rolled, err := f.manager.MaybeRollover(f.ctx, "user-1", salary)
	require.NoError(t, err)

	// THEN: A new cycle starts on the salary date, linked to it
	require.True(t, rolled)
	assert.NotEqual(t, before.ID, c.ID)
	assert.Equal(t, d("2026-03-28"), c.StartDate)
	require.NotNil(t, c.TriggerTransactionID)
	assert.Equal(t, salary.ID, *c.TriggerTransactionID)

	// AND: The same salary does not roll over twice
	_, rolled, err = f.manager.MaybeRollover(f.ctx, "user-1", salary)
	require.NoError(t, err)
	assert.False(t, rolled)
}

func TestMaybeRollover_DisabledByDefault(t *testing.T) {
	f := newFixture(t, "2026-03-28")
	tx := ledger.Transaction{Type: ledger.TxIncome, Date: d("2026-03-28")}
	_, rolled, err := f.manager.MaybeRollover(f.ctx, "user-1", tx)
	require.NoError(t, err)
	assert.False(t, rolled)
}

func TestSaveSettings_Validation(t *testing.T) {
	f := newFixture(t, "2026-03-10")
	s := ledger.DefaultBudgetSettings("user-1")
	s.PreferredStartDay = 0
	_, err := f.manager.SaveSettings(f.ctx, "user-1", s)
	assert.True(t, ledger.IsClientError(err))

	s = ledger.DefaultBudgetSettings("user-1")
	s.SalaryCategoryID = &f.food.ID
	_, err = f.manager.SaveSettings(f.ctx, "user-1", s)
	assert.True(t, ledger.IsClientError(err), "salary category must be an income category")
}

func TestSummary(t *testing.T) {
	// GIVEN: Mar 20, monthly cycles on the 1st, 15000 spent on food
	f := newFixture(t, "2026-03-20")
	f.spend(t, 15000, "2026-03-04")

	// WHEN: Summarizing
	s, err := f.manager.Summary(f.ctx, "user-1")
	require.NoError(t, err)

	// THEN: 12 days to Apr 1 and 45000 left to spend
	assert.Equal(t, 12, s.DaysRemaining)
	assert.Equal(t, int64(45000), s.Remaining)
	assert.Equal(t, int64(3750), s.DailyBudget)
	assert.Equal(t, d("2026-04-01"), s.NextStart)

	require.Len(t, s.Categories, 1)
	usage := s.Categories[0]
	assert.Equal(t, f.food.ID, usage.CategoryID)
	assert.Equal(t, int64(45000), usage.Remaining)
	assert.True(t, decimal.NewFromInt(25).Equal(usage.Percent), "got %s", usage.Percent)
}
