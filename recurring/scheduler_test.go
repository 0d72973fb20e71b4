package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/store/sqlite"
)

type fixture struct {
	ctx       context.Context
	clock     *ledger.ManualClock
	ledger    *ledger.Ledger
	scheduler *Scheduler
	account   ledger.Account
}

func newFixture(t *testing.T, now string) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewManualClock(d(now).Time.Add(9 * time.Hour))
	l := ledger.New(store, clock)
	ctx := context.Background()

	acc, err := l.CreateAccount(ctx, "user-1", ledger.Account{Name: "Courant", InitialBalance: 100000})
	require.NoError(t, err)

	return &fixture{ctx: ctx, clock: clock, ledger: l, scheduler: NewScheduler(l), account: acc}
}

func TestProcessDue_GeneratesAndReconciles(t *testing.T) {
	// GIVEN: A monthly rent due Mar 1 and a subscription due later
	f := newFixture(t, "2026-03-02")
	rent, err := f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxExpense, Amount: 30000,
		Frequency: ledger.FreqMonthly, StartDate: d("2026-03-01"), IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, d("2026-03-01"), rent.NextDueDate, "next due defaults to start date")

	_, err = f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxExpense, Amount: 1500,
		Frequency: ledger.FreqMonthly, StartDate: d("2026-03-20"), IsActive: true,
	})
	require.NoError(t, err)

	// WHEN: Sweeping
	report, err := f.scheduler.ProcessDue(f.ctx, "user-1")
	require.NoError(t, err)

	// THEN: Only the rent was generated and linked to its template
	require.Len(t, report.Generated, 1)
	assert.Empty(t, report.Failed)
	assert.Equal(t, rent.ID, report.Generated[0].RecurringID)

	tx, err := f.ledger.GetTransaction(f.ctx, "user-1", report.Generated[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, d("2026-03-01"), tx.Date)
	require.NotNil(t, tx.RecurringTransactionID)
	assert.Equal(t, rent.ID, *tx.RecurringTransactionID)

	// AND: The balance was reconciled and the schedule advanced
	acc, err := f.ledger.GetAccount(f.ctx, "user-1", f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), acc.Balance)

	advanced, err := f.scheduler.Get(f.ctx, "user-1", rent.ID)
	require.NoError(t, err)
	assert.Equal(t, d("2026-04-01"), advanced.NextDueDate)

	// AND: A second sweep the same day generates nothing
	report, err = f.scheduler.ProcessDue(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
}

func TestProcessDue_IsolatesFailures(t *testing.T) {
	// GIVEN: Two due schedules, one pointing at an account deleted afterwards
	f := newFixture(t, "2026-03-10")
	doomed, err := f.ledger.CreateAccount(f.ctx, "user-1", ledger.Account{Name: "Ancien"})
	require.NoError(t, err)

	bad, err := f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: doomed.ID, Type: ledger.TxIncome, Amount: 1000,
		Frequency: ledger.FreqWeekly, StartDate: d("2026-03-01"), IsActive: true,
	})
	require.NoError(t, err)
	good, err := f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxIncome, Amount: 2000,
		Frequency: ledger.FreqWeekly, StartDate: d("2026-03-05"), IsActive: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.ledger.DeleteAccount(f.ctx, "user-1", doomed.ID))

	// WHEN: Sweeping
	report, err := f.scheduler.ProcessDue(f.ctx, "user-1")
	require.NoError(t, err)

	// THEN: The bad one failed without blocking the good one
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad.ID, report.Failed[0].RecurringID)
	require.Len(t, report.Generated, 1)
	assert.Equal(t, good.ID, report.Generated[0].RecurringID)

	// AND: The failed schedule was not advanced
	stuck, err := f.scheduler.Get(f.ctx, "user-1", bad.ID)
	require.NoError(t, err)
	assert.Equal(t, d("2026-03-01"), stuck.NextDueDate)
	assert.Nil(t, stuck.LastGeneratedDate)
}

func TestGenerateNow_LastOccurrenceDeactivates(t *testing.T) {
	f := newFixture(t, "2026-03-01")
	one := 1
	r, err := f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxExpense, Amount: 5000,
		Frequency: ledger.FreqMonthly, StartDate: d("2026-04-10"),
		RemainingOccurrences: &one, IsActive: true,
	})
	require.NoError(t, err)

	tx, updated, err := f.scheduler.GenerateNow(f.ctx, "user-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, d("2026-04-10"), tx.Date)
	assert.False(t, updated.IsActive)

	_, _, err = f.scheduler.GenerateNow(f.ctx, "user-1", r.ID)
	assert.True(t, ledger.IsClientError(err), "dormant schedules never generate")
}

func TestScheduler_OwnerScoping(t *testing.T) {
	f := newFixture(t, "2026-03-01")
	r, err := f.scheduler.Create(f.ctx, "user-1", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxExpense, Amount: 5000,
		Frequency: ledger.FreqMonthly, StartDate: d("2026-03-10"), IsActive: true,
	})
	require.NoError(t, err)

	_, err = f.scheduler.Get(f.ctx, "intruder", r.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = f.scheduler.Create(f.ctx, "intruder", ledger.RecurringTransaction{
		AccountID: f.account.ID, Type: ledger.TxExpense, Amount: 5000,
		Frequency: ledger.FreqMonthly, StartDate: d("2026-03-10"), IsActive: true,
	})
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	require.NoError(t, f.scheduler.Delete(f.ctx, "user-1", r.ID))
	_, err = f.scheduler.Get(f.ctx, "user-1", r.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestProcessAllDue_SweepsEveryOwner(t *testing.T) {
	f := newFixture(t, "2026-03-15")
	other, err := f.ledger.CreateAccount(f.ctx, "user-2", ledger.Account{Name: "Autre"})
	require.NoError(t, err)

	for owner, acc := range map[string]string{"user-1": f.account.ID, "user-2": other.ID} {
		_, err := f.scheduler.Create(f.ctx, owner, ledger.RecurringTransaction{
			AccountID: acc, Type: ledger.TxIncome, Amount: 100,
			Frequency: ledger.FreqDaily, StartDate: d("2026-03-15"), IsActive: true,
		})
		require.NoError(t, err)
	}

	reports, err := f.scheduler.ProcessAllDue(f.ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Len(t, reports["user-2"].Generated, 1)
}
