/*
balance.go - Account balance reconciliation

PURPOSE:
  Keeps Account.Balance consistent with the transaction set. The balance is a
  cache: it is always recomputed from scratch, never adjusted incrementally,
  so it cannot drift regardless of how writes interleave.

FORMULA:
  balance = initial_balance
          + Σ income       (account_id = A)
          - Σ expense      (account_id = A)
          - Σ transfer     (account_id = A)
          + Σ transfer     (transfer_to_account_id = A)
  over non-deleted transactions only.

WHEN IT RUNS:
  Synchronously, inside the same store transaction as the write that changed
  the transaction set (see Ledger.CreateTransaction and friends), so it reads
  the just-written rows.

MISSING ACCOUNTS:
  Recalculating an account that no longer exists is a no-op. This happens
  when a delete races with a transaction write and is not a caller error.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// BalanceReconciler recomputes cached account balances.
type BalanceReconciler struct{}

// BalanceBreakdown is the set of sums behind a balance.
type BalanceBreakdown struct {
	Initial      int64
	Income       int64
	Expense      int64
	TransfersOut int64
	TransfersIn  int64
}

// Total applies the balance formula.
func (b BalanceBreakdown) Total() int64 {
	return b.Initial + b.Income - b.Expense - b.TransfersOut + b.TransfersIn
}

// Compute aggregates the live transactions of account a.
func (BalanceReconciler) Compute(ctx context.Context, store TransactionStore, a Account) (BalanceBreakdown, error) {
	b := BalanceBreakdown{Initial: a.InitialBalance}

	sums := []struct {
		filter TransactionFilter
		into   *int64
	}{
		{TransactionFilter{AccountID: a.ID, Type: TxIncome}, &b.Income},
		{TransactionFilter{AccountID: a.ID, Type: TxExpense}, &b.Expense},
		{TransactionFilter{AccountID: a.ID, Type: TxTransfer}, &b.TransfersOut},
		{TransactionFilter{TransferToAccountID: a.ID, Type: TxTransfer}, &b.TransfersIn},
	}
	for _, s := range sums {
		v, err := store.SumTransactions(ctx, s.filter)
		if err != nil {
			return BalanceBreakdown{}, fmt.Errorf("sum %s for account %s: %w", s.filter.Type, a.ID, err)
		}
		*s.into = v
	}
	return b, nil
}

// Recalculate recomputes and persists the balance of accountID.
// Returns the account as stored after the call.
func (r BalanceReconciler) Recalculate(ctx context.Context, repo Repository, accountID string, at time.Time) (Account, error) {
	a, err := repo.GetAccount(ctx, accountID)
	if IsNotFound(err) {
		return Account{}, nil
	}
	if err != nil {
		return Account{}, err
	}

	b, err := r.Compute(ctx, repo, a)
	if err != nil {
		return Account{}, err
	}

	if total := b.Total(); total != a.Balance {
		a.Balance = total
		a.UpdatedAt = at
		if err := repo.UpdateAccount(ctx, a); err != nil {
			return Account{}, fmt.Errorf("persist balance for account %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// RecalculateAll reconciles each distinct id once, skipping blanks.
func (r BalanceReconciler) RecalculateAll(ctx context.Context, repo Repository, at time.Time, accountIDs ...string) error {
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := r.Recalculate(ctx, repo, id, at); err != nil {
			return err
		}
	}
	return nil
}
