package ledger

import (
	"context"
	"time"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// validateTransaction checks shape first, then references. A transfer moves
// money between two distinct accounts of the owner and never has a category.
func (l *Ledger) validateTransaction(ctx context.Context, owner string, tx Transaction) error {
	var v Validator
	v.Check(tx.Amount > 0, "amount", "must be a positive amount in minor units")
	v.Check(tx.Type.Valid(), "type", "must be one of income, expense, transfer")
	v.Check(tx.AccountID != "", "account_id", "is required")
	v.Check(!tx.Date.IsZero(), "date", "is required")
	if tx.Type == TxTransfer {
		v.Check(tx.TransferToAccountID != nil, "transfer_to_account_id", "is required for transfers")
		v.Check(tx.TransferToAccountID == nil || *tx.TransferToAccountID != tx.AccountID,
			"transfer_to_account_id", "must differ from account_id")
		v.Check(tx.CategoryID == nil, "category_id", "transfers cannot carry a category")
	} else {
		v.Check(tx.TransferToAccountID == nil, "transfer_to_account_id", "only allowed for transfers")
	}
	if err := v.Err(); err != nil {
		return err
	}

	if err := l.accountRef(ctx, owner, "account_id", tx.AccountID); err != nil {
		return err
	}
	if tx.TransferToAccountID != nil {
		if err := l.accountRef(ctx, owner, "transfer_to_account_id", *tx.TransferToAccountID); err != nil {
			return err
		}
	}
	if tx.CategoryID != nil {
		c, err := l.categoryRef(ctx, owner, "category_id", *tx.CategoryID)
		if err != nil {
			return err
		}
		if string(c.Type) != string(tx.Type) {
			return Invalid("category_id", "category type must match transaction type")
		}
	}
	return nil
}

func normalizeTransaction(tx *Transaction) {
	normalizeRef(&tx.CategoryID)
	normalizeRef(&tx.TransferToAccountID)
	normalizeRef(&tx.RecurringTransactionID)
}

// CreateTransaction stores tx and reconciles the source account and, for
// transfers, the destination account.
func (l *Ledger) CreateTransaction(ctx context.Context, owner string, tx Transaction) (Transaction, error) {
	normalizeTransaction(&tx)
	if tx.Date.IsZero() {
		tx.Date = l.Today()
	}
	if tx.ID == "" {
		tx.ID = NewID()
	}
	tx.OwnerID = owner
	tx.DeletedAt = nil
	tx.CreatedAt = time.Time{}

	err := l.InTx(ctx, func(tl *Ledger) error {
		if err := tl.validateTransaction(ctx, owner, tx); err != nil {
			return err
		}
		now := tl.Now()
		tx.Touch(now)
		if err := tl.Repo.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		return tl.Reconciler.RecalculateAll(ctx, tl.Repo, now, tx.AffectedAccounts()...)
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// UpdateTransaction applies mutate and reconciles every account the
// transaction referenced before or after the change.
//
// A tombstoned transaction can only be updated when mutate restores it; the
// sync engine does that explicitly for updates arriving from clients.
func (l *Ledger) UpdateTransaction(ctx context.Context, owner, id string, mutate func(*Transaction) error) (Transaction, error) {
	var out Transaction
	err := l.InTx(ctx, func(tl *Ledger) error {
		current, err := tl.Repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckOwner(owner, current.OwnerID); err != nil {
			return err
		}

		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		normalizeTransaction(&next)
		next.ID, next.OwnerID, next.CreatedAt = current.ID, current.OwnerID, current.CreatedAt
		if next.IsDeleted() {
			return &NotFoundError{Kind: "transaction", ID: id}
		}
		if err := tl.validateTransaction(ctx, owner, next); err != nil {
			return err
		}

		now := tl.Now()
		next.Touch(now)
		if err := tl.Repo.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		affected := append(current.AffectedAccounts(), next.AffectedAccounts()...)
		if err := tl.Reconciler.RecalculateAll(ctx, tl.Repo, now, affected...); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// DeleteTransaction tombstones the transaction and reconciles its accounts.
// Deleting an already deleted transaction is a no-op.
func (l *Ledger) DeleteTransaction(ctx context.Context, owner, id string) error {
	return l.InTx(ctx, func(tl *Ledger) error {
		tx, err := tl.Repo.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckOwner(owner, tx.OwnerID); err != nil {
			return err
		}
		if tx.IsDeleted() {
			return nil
		}
		now := tl.Now()
		tx.MarkDeleted(now)
		if err := tl.Repo.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		return tl.Reconciler.RecalculateAll(ctx, tl.Repo, now, tx.AffectedAccounts()...)
	})
}

// RestoreTransaction clears the tombstone. The transaction is re-validated
// because its accounts may have been deleted meanwhile.
func (l *Ledger) RestoreTransaction(ctx context.Context, owner, id string) (Transaction, error) {
	return l.UpdateTransaction(ctx, owner, id, func(tx *Transaction) error {
		tx.DeletedAt = nil
		return nil
	})
}

// GetTransaction returns a live transaction of owner.
func (l *Ledger) GetTransaction(ctx context.Context, owner, id string) (Transaction, error) {
	tx, err := l.Repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if err := CheckOwner(owner, tx.OwnerID); err != nil {
		return Transaction{}, err
	}
	if tx.IsDeleted() {
		return Transaction{}, &NotFoundError{Kind: "transaction", ID: id}
	}
	return tx, nil
}

// ListTransactions returns owner's live transactions matching f, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, owner string, f TransactionFilter) ([]Transaction, error) {
	f.OwnerID = owner
	f.IncludeDeleted = false
	f.UpdatedSince = nil
	return l.Repo.ListTransactions(ctx, f)
}
