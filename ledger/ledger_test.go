package ledger_test

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

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner = "user-1"

func newTestLedger(t *testing.T) (*ledger.Ledger, *ledger.ManualClock) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := ledger.NewManualClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	return ledger.New(store, clock), clock
}

func createAccount(t *testing.T, l *ledger.Ledger, name string, initial int64) ledger.Account {
	t.Helper()
	a, err := l.CreateAccount(context.Background(), owner, ledger.Account{Name: name, InitialBalance: initial})
	require.NoError(t, err)
	return a
}

func balanceOf(t *testing.T, l *ledger.Ledger, id string) int64 {
	t.Helper()
	a, err := l.GetAccount(context.Background(), owner, id)
	require.NoError(t, err)
	return a.Balance
}

// independentBalance recomputes the balance from the live transaction list,
// without going through the reconciler.
func independentBalance(t *testing.T, l *ledger.Ledger, a ledger.Account) int64 {
	t.Helper()
	txs, err := l.ListTransactions(context.Background(), owner, ledger.TransactionFilter{})
	require.NoError(t, err)
	total := a.InitialBalance
	for _, tx := range txs {
		switch {
		case tx.Type == ledger.TxIncome && tx.AccountID == a.ID:
			total += tx.Amount
		case tx.Type == ledger.TxExpense && tx.AccountID == a.ID:
			total -= tx.Amount
		case tx.Type == ledger.TxTransfer && tx.AccountID == a.ID:
			total -= tx.Amount
		case tx.Type == ledger.TxTransfer && tx.TransferToAccountID != nil && *tx.TransferToAccountID == a.ID:
			total += tx.Amount
		}
	}
	return total
}

// =============================================================================
// BALANCE RECONCILIATION
// =============================================================================

func TestScenario_ExpenseThenDelete(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: An account opened with 100000
	acc := createAccount(t, l, "Courant", 100000)
	assert.Equal(t, int64(100000), acc.Balance)

	// WHEN: Recording a 30000 expense
	tx, err := l.CreateTransaction(ctx, owner, ledger.Transaction{
		Amount: 30000, Type: ledger.TxExpense, AccountID: acc.ID,
	})
	require.NoError(t, err)

	// THEN: Balance is 70000
	assert.Equal(t, int64(70000), balanceOf(t, l, acc.ID))

	// WHEN: Deleting it
	require.NoError(t, l.DeleteTransaction(ctx, owner, tx.ID))

	// THEN: Balance is back to 100000
	assert.Equal(t, int64(100000), balanceOf(t, l, acc.ID))

	// AND: Deleting again is a no-op
	require.NoError(t, l.DeleteTransaction(ctx, owner, tx.ID))
	assert.Equal(t, int64(100000), balanceOf(t, l, acc.ID))

	// AND: Restoring brings the expense back
	_, err = l.RestoreTransaction(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), balanceOf(t, l, acc.ID))
}

func TestScenario_Transfer(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: X with 100000 and Y with 50000
	x := createAccount(t, l, "X", 100000)
	y := createAccount(t, l, "Y", 50000)

	// WHEN: Transferring 25000 from X to Y
	_, err := l.CreateTransaction(ctx, owner, ledger.Transaction{
		Amount: 25000, Type: ledger.TxTransfer, AccountID: x.ID, TransferToAccountID: &y.ID,
	})
	require.NoError(t, err)

	// THEN: Both hold 75000
	assert.Equal(t, int64(75000), balanceOf(t, l, x.ID))
	assert.Equal(t, int64(75000), balanceOf(t, l, y.ID))
}

func TestUpdateTransaction_ReconcilesOldAndNewAccounts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	a := createAccount(t, l, "A", 100000)
	b := createAccount(t, l, "B", 100000)
	c := createAccount(t, l, "C", 100000)

	// GIVEN: A transfer A -> B
	tx, err := l.CreateTransaction(ctx, owner, ledger.Transaction{
		Amount: 10000, Type: ledger.TxTransfer, AccountID: a.ID, TransferToAccountID: &b.ID,
	})
	require.NoError(t, err)

	// WHEN: It becomes an expense on C
	_, err = l.UpdateTransaction(ctx, owner, tx.ID, func(tx *ledger.Transaction) error {
		tx.Type = ledger.TxExpense
		tx.AccountID = c.ID
		tx.TransferToAccountID = nil
		return nil
	})
	require.NoError(t, err)

	// THEN: A and B are restored, C is debited
	assert.Equal(t, int64(100000), balanceOf(t, l, a.ID))
	assert.Equal(t, int64(100000), balanceOf(t, l, b.ID))
	assert.Equal(t, int64(90000), balanceOf(t, l, c.ID))
}

func TestBalanceInvariant_AfterMixedMutations(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	x := createAccount(t, l, "X", 100000)
	y := createAccount(t, l, "Y", 20000)
	accounts := []ledger.Account{x, y}

	check := func() {
		t.Helper()
		for _, a := range accounts {
			assert.Equal(t, independentBalance(t, l, a), balanceOf(t, l, a.ID), "account %s", a.Name)
		}
	}

	income, err := l.CreateTransaction(ctx, owner, ledger.Transaction{Amount: 5000, Type: ledger.TxIncome, AccountID: y.ID})
	require.NoError(t, err)
	check()

	transfer, err := l.CreateTransaction(ctx, owner, ledger.Transaction{
		Amount: 7000, Type: ledger.TxTransfer, AccountID: y.ID, TransferToAccountID: &x.ID,
	})
	require.NoError(t, err)
	check()

	_, err = l.UpdateTransaction(ctx, owner, transfer.ID, func(tx *ledger.Transaction) error {
		tx.Amount = 9000
		tx.AccountID, tx.TransferToAccountID = x.ID, &y.ID
		return nil
	})
	require.NoError(t, err)
	check()

	_, err = l.CreateTransaction(ctx, owner, ledger.Transaction{Amount: 1200, Type: ledger.TxExpense, AccountID: x.ID})
	require.NoError(t, err)
	check()

	require.NoError(t, l.DeleteTransaction(ctx, owner, income.ID))
	check()

	_, err = l.UpdateAccount(ctx, owner, x.ID, func(a *ledger.Account) error {
		a.InitialBalance = 150000
		return nil
	})
	require.NoError(t, err)
	accounts[0].InitialBalance = 150000
	check()
}

func TestRecalculate_Idempotent(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()
	acc := createAccount(t, l, "Courant", 100000)
	_, err := l.CreateTransaction(ctx, owner, ledger.Transaction{Amount: 4200, Type: ledger.TxExpense, AccountID: acc.ID})
	require.NoError(t, err)

	first, err := l.RecalculateBalance(ctx, owner, acc.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := l.RecalculateBalance(ctx, owner, acc.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(95800), first.Balance)
	assert.Equal(t, first.Balance, second.Balance)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "an unchanged balance is not rewritten")
}

func TestRecalculate_MissingAccountIsNoop(t *testing.T) {
	l, _ := newTestLedger(t)
	var r ledger.BalanceReconciler

	a, err := r.Recalculate(context.Background(), l.Repo, "gone", time.Now())
	assert.NoError(t, err)
	assert.Empty(t, a.ID)
}

// =============================================================================
// VALIDATION AND OWNERSHIP
// =============================================================================

func TestCreateTransaction_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	acc := createAccount(t, l, "Courant", 0)
	salary := sqlite.SystemCategoryID("Salaire", ledger.CategoryIncome)

	tests := []struct {
		name  string
		tx    ledger.Transaction
		field string
	}{
		{"negative amount", ledger.Transaction{Amount: -1, Type: ledger.TxExpense, AccountID: acc.ID}, "amount"},
		{"unknown type", ledger.Transaction{Amount: 1, Type: "gift", AccountID: acc.ID}, "type"},
		{"transfer without destination", ledger.Transaction{Amount: 1, Type: ledger.TxTransfer, AccountID: acc.ID}, "transfer_to_account_id"},
		{"transfer to itself", ledger.Transaction{Amount: 1, Type: ledger.TxTransfer, AccountID: acc.ID, TransferToAccountID: &acc.ID}, "transfer_to_account_id"},
		{"transfer with category", ledger.Transaction{Amount: 1, Type: ledger.TxTransfer, AccountID: acc.ID, TransferToAccountID: strPtr("other"), CategoryID: &salary}, "category_id"},
		{"category type mismatch", ledger.Transaction{Amount: 1, Type: ledger.TxExpense, AccountID: acc.ID, CategoryID: &salary}, "category_id"},
		{"unknown account", ledger.Transaction{Amount: 1, Type: ledger.TxExpense, AccountID: "nope"}, "account_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateTransaction(ctx, owner, tt.tx)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	// Nothing was written
	assert.Equal(t, int64(0), balanceOf(t, l, acc.ID))
	txs, err := l.ListTransactions(ctx, owner, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func strPtr(s string) *string { return &s }

func TestCrossOwnerAccessIsForbidden(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	acc := createAccount(t, l, "Courant", 100000)

	_, err := l.GetAccount(ctx, "intruder", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = l.CreateTransaction(ctx, "intruder", ledger.Transaction{Amount: 1, Type: ledger.TxExpense, AccountID: acc.ID})
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	assert.ErrorIs(t, l.DeleteAccount(ctx, "intruder", acc.ID), ledger.ErrForbidden)
}

func TestDefaultAccountIsUnique(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.CreateAccount(ctx, owner, ledger.Account{Name: "A", IsDefault: true})
	require.NoError(t, err)
	second, err := l.CreateAccount(ctx, owner, ledger.Account{Name: "B", IsDefault: true})
	require.NoError(t, err)

	a, _ := l.GetAccount(ctx, owner, first.ID)
	b, _ := l.GetAccount(ctx, owner, second.ID)
	assert.False(t, a.IsDefault)
	assert.True(t, b.IsDefault)
}

func TestAccountSoftDeleteAndRestore(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	acc := createAccount(t, l, "Courant", 1000)

	require.NoError(t, l.DeleteAccount(ctx, owner, acc.ID))
	_, err := l.GetAccount(ctx, owner, acc.ID)
	assert.True(t, ledger.IsNotFound(err))

	_, err = l.CreateTransaction(ctx, owner, ledger.Transaction{Amount: 1, Type: ledger.TxIncome, AccountID: acc.ID})
	assert.True(t, ledger.IsClientError(err), "deleted accounts cannot receive transactions")

	restored, err := l.RestoreAccount(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted())
	assert.Equal(t, int64(1000), restored.Balance)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestSystemCategoryIsReadOnly(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	id := sqlite.SystemCategoryID("Alimentation", ledger.CategoryExpense)

	// Visible to everyone
	c, err := l.GetCategory(ctx, owner, id)
	require.NoError(t, err)
	assert.True(t, c.IsSystem)

	// Never editable nor deletable
	err = l.DeleteCategory(ctx, owner, id)
	assert.ErrorIs(t, err, ledger.ErrSystemCategory)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = l.UpdateCategory(ctx, owner, id, func(c *ledger.Category) error {
		c.Name = "Food"
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestCategoryNesting(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	parent, err := l.CreateCategory(ctx, owner, ledger.Category{Name: "Maison", Type: ledger.CategoryExpense})
	require.NoError(t, err)
	child, err := l.CreateCategory(ctx, owner, ledger.Category{Name: "Électricité", Type: ledger.CategoryExpense, ParentID: &parent.ID})
	require.NoError(t, err)

	// One level only
	_, err = l.CreateCategory(ctx, owner, ledger.Category{Name: "Compteur", Type: ledger.CategoryExpense, ParentID: &child.ID})
	assert.True(t, ledger.IsClientError(err))

	// Same type only
	_, err = l.CreateCategory(ctx, owner, ledger.Category{Name: "Loyer perçu", Type: ledger.CategoryIncome, ParentID: &parent.ID})
	assert.True(t, ledger.IsClientError(err))

	// Another owner's parent is forbidden
	_, err = l.CreateCategory(ctx, "intruder", ledger.Category{Name: "X", Type: ledger.CategoryExpense, ParentID: &parent.ID})
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestUpdateCategory_ParentWithChildrenCannotBeNested(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN Maison > Électricité and a separate top-level Logement
	maison, err := l.CreateCategory(ctx, owner, ledger.Category{Name: "Maison", Type: ledger.CategoryExpense})
	require.NoError(t, err)
	child, err := l.CreateCategory(ctx, owner, ledger.Category{Name: "Électricité", Type: ledger.CategoryExpense, ParentID: &maison.ID})
	require.NoError(t, err)
	logement, err := l.CreateCategory(ctx, owner, ledger.Category{Name: "Logement", Type: ledger.CategoryExpense})
	require.NoError(t, err)

	// WHEN Maison is moved under Logement
	_, err = l.UpdateCategory(ctx, owner, maison.ID, func(c *ledger.Category) error {
		c.ParentID = &logement.ID
		return nil
	})

	// THEN it is rejected: that would make two levels
	require.ErrorIs(t, err, ledger.ErrValidation)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "parent_id")

	// AND once its only child is deleted, the move is allowed
	require.NoError(t, l.DeleteCategory(ctx, owner, child.ID))
	moved, err := l.UpdateCategory(ctx, owner, maison.ID, func(c *ledger.Category) error {
		c.ParentID = &logement.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, logement.ID, *moved.ParentID)
}

// =============================================================================
// DEBTS AND GOALS
// =============================================================================

func TestGoal_AddAmountCompletes(t *testing.T) {
	g := ledger.Goal{TargetAmount: 100000, CurrentAmount: 80000, Status: ledger.GoalActive}

	g.AddAmount(30000)

	assert.Equal(t, int64(110000), g.CurrentAmount)
	assert.Equal(t, ledger.GoalCompleted, g.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(g.Progress()), "progress is clamped to 100")
	assert.Zero(t, g.Remaining())
}

func TestGoal_Progress(t *testing.T) {
	g := ledger.Goal{TargetAmount: 30000, CurrentAmount: 10000}
	assert.Equal(t, "33.33", g.Progress().StringFixed(2))

	g.CurrentAmount = -5
	assert.True(t, g.Progress().IsZero())
}

func TestDebt_PaymentFloorsAtZero(t *testing.T) {
	d := ledger.Debt{InitialAmount: 20000, CurrentAmount: 20000, Status: ledger.DebtActive}

	d.ApplyPayment(50000)

	assert.Equal(t, int64(0), d.CurrentAmount)
	assert.Equal(t, ledger.DebtPaid, d.Status)
}

func TestDebt_CurrentAmountOnlyDecreases(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN a debt of 20000 with 5000 already repaid
	debt, err := l.CreateDebt(ctx, owner, ledger.Debt{Name: "Prêt Awa", InitialAmount: 20000})
	require.NoError(t, err)
	debt, err = l.AddDebtPayment(ctx, owner, debt.ID, 5000)
	require.NoError(t, err)
	require.Equal(t, int64(15000), debt.CurrentAmount)

	setCurrent := func(v int64) error {
		_, err := l.UpdateDebt(ctx, owner, debt.ID, func(d *ledger.Debt) error {
			d.CurrentAmount = v
			return nil
		})
		return err
	}

	// WHEN the remaining amount is raised, even within initial_amount
	// THEN the update is rejected
	assert.ErrorIs(t, setCurrent(18000), ledger.ErrValidation)
	assert.ErrorIs(t, setCurrent(90000), ledger.ErrValidation)

	// AND lowering it to zero settles the debt
	require.NoError(t, setCurrent(0))
	debt, err = l.GetDebt(ctx, owner, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DebtPaid, debt.Status)
}

func TestCreateDebt_CurrentAmountBoundedByInitial(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateDebt(ctx, owner, ledger.Debt{Name: "Prêt", InitialAmount: 20000, CurrentAmount: 30000})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.CreateDebt(ctx, owner, ledger.Debt{Name: "Prêt", InitialAmount: 20000, CurrentAmount: 5000, Status: ledger.DebtPaid})
	assert.ErrorIs(t, err, ledger.ErrValidation, "paid means nothing left")
}

func TestDebtAndGoalServices(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	acc := createAccount(t, l, "Épargne", 0)

	debt, err := l.CreateDebt(ctx, owner, ledger.Debt{Name: "Prêt Paul", Type: ledger.DebtCredit, InitialAmount: 20000})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), debt.CurrentAmount)
	assert.Equal(t, ledger.DebtActive, debt.Status)

	debt, err = l.AddDebtPayment(ctx, owner, debt.ID, 50000)
	require.NoError(t, err)
	assert.Zero(t, debt.CurrentAmount)
	assert.Equal(t, ledger.DebtPaid, debt.Status)

	_, err = l.AddDebtPayment(ctx, owner, debt.ID, 0)
	assert.True(t, ledger.IsClientError(err))

	// A paid debt cannot be topped back up through an update
	_, err = l.UpdateDebt(ctx, owner, debt.ID, func(d *ledger.Debt) error {
		d.CurrentAmount = 90000
		return nil
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	debt, err = l.GetDebt(ctx, owner, debt.ID)
	require.NoError(t, err)
	assert.Zero(t, debt.CurrentAmount)
	assert.Equal(t, ledger.DebtPaid, debt.Status)

	goal, err := l.CreateGoal(ctx, owner, ledger.Goal{Name: "Voyage", TargetAmount: 100000, CurrentAmount: 80000, LinkedAccountID: &acc.ID})
	require.NoError(t, err)
	assert.Equal(t, ledger.GoalSavings, goal.Type)

	goal, err = l.ContributeToGoal(ctx, owner, goal.ID, 30000)
	require.NoError(t, err)
	assert.Equal(t, int64(110000), goal.CurrentAmount)
	assert.Equal(t, ledger.GoalCompleted, goal.Status)

	_, err = l.ContributeToGoal(ctx, "intruder", goal.ID, 1)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	require.NoError(t, l.DeleteGoal(ctx, owner, goal.ID))
	goals, err := l.ListGoals(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, goals)
}
