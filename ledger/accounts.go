package ledger

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

func validateAccount(a Account) error {
	var v Validator
	v.Check(strings.TrimSpace(a.Name) != "", "name", "is required")
	v.Check(a.Type.Valid(), "type", "must be one of current, checking, savings, cash, credit, investment")
	return v.Err()
}

// CreateAccount stores a new account. Its balance starts at initial_balance.
func (l *Ledger) CreateAccount(ctx context.Context, owner string, a Account) (Account, error) {
	if a.Type == "" {
		a.Type = AccountCurrent
	}
	if err := validateAccount(a); err != nil {
		return Account{}, err
	}

	now := l.Now()
	if a.ID == "" {
		a.ID = NewID()
	}
	a.OwnerID = owner
	a.Balance = a.InitialBalance
	a.DeletedAt = nil
	a.CreatedAt = time.Time{}
	a.Touch(now)

	err := l.InTx(ctx, func(tl *Ledger) error {
		if err := tl.Repo.CreateAccount(ctx, a); err != nil {
			return err
		}
		if a.IsDefault {
			return tl.Repo.ClearDefaultAccounts(ctx, owner, a.ID, now)
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// UpdateAccount applies mutate to the account and recomputes its balance,
// since initial_balance may have changed.
func (l *Ledger) UpdateAccount(ctx context.Context, owner, id string, mutate func(*Account) error) (Account, error) {
	var out Account
	err := l.InTx(ctx, func(tl *Ledger) error {
		current, err := tl.Repo.GetAccount(ctx, id)
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
		next.ID, next.OwnerID, next.CreatedAt, next.Balance = current.ID, current.OwnerID, current.CreatedAt, current.Balance
		if next.IsDeleted() {
			return &NotFoundError{Kind: "account", ID: id}
		}
		if err := validateAccount(next); err != nil {
			return err
		}

		now := tl.Now()
		next.Touch(now)
		if err := tl.Repo.UpdateAccount(ctx, next); err != nil {
			return err
		}
		if next.IsDefault {
			if err := tl.Repo.ClearDefaultAccounts(ctx, owner, next.ID, now); err != nil {
				return err
			}
		}
		out, err = tl.Reconciler.Recalculate(ctx, tl.Repo, next.ID, now)
		return err
	})
	return out, err
}

// DeleteAccount tombstones the account. Its transactions are kept.
func (l *Ledger) DeleteAccount(ctx context.Context, owner, id string) error {
	return l.InTx(ctx, func(tl *Ledger) error {
		a, err := tl.Repo.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckOwner(owner, a.OwnerID); err != nil {
			return err
		}
		if a.IsDeleted() {
			return nil
		}
		a.MarkDeleted(tl.Now())
		a.IsDefault = false
		return tl.Repo.UpdateAccount(ctx, a)
	})
}

// RestoreAccount clears the tombstone and reconciles the balance.
func (l *Ledger) RestoreAccount(ctx context.Context, owner, id string) (Account, error) {
	var out Account
	err := l.InTx(ctx, func(tl *Ledger) error {
		a, err := tl.Repo.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckOwner(owner, a.OwnerID); err != nil {
			return err
		}
		now := tl.Now()
		if a.IsDeleted() {
			a.Restore(now)
			if err := tl.Repo.UpdateAccount(ctx, a); err != nil {
				return err
			}
		}
		out, err = tl.Reconciler.Recalculate(ctx, tl.Repo, a.ID, now)
		return err
	})
	return out, err
}

// GetAccount returns a live account of owner.
func (l *Ledger) GetAccount(ctx context.Context, owner, id string) (Account, error) {
	a, err := l.Repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err := CheckOwner(owner, a.OwnerID); err != nil {
		return Account{}, err
	}
	if a.IsDeleted() {
		return Account{}, &NotFoundError{Kind: "account", ID: id}
	}
	return a, nil
}

// ListAccounts returns owner's live accounts by order_index.
func (l *Ledger) ListAccounts(ctx context.Context, owner string) ([]Account, error) {
	return l.Repo.ListAccounts(ctx, AccountFilter{OwnerID: owner})
}

// RecalculateBalance forces a reconciliation of one account.
func (l *Ledger) RecalculateBalance(ctx context.Context, owner, id string) (Account, error) {
	var out Account
	err := l.InTx(ctx, func(tl *Ledger) error {
		a, err := tl.Repo.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckOwner(owner, a.OwnerID); err != nil {
			return err
		}
		out, err = tl.Reconciler.Recalculate(ctx, tl.Repo, id, tl.Now())
		return err
	})
	return out, err
}

// accountRef checks that id names a live account of owner.
func (l *Ledger) accountRef(ctx context.Context, owner, field, id string) error {
	a, err := l.Repo.GetAccount(ctx, id)
	if IsNotFound(err) {
		return Invalid(field, "account not found")
	}
	if err != nil {
		return err
	}
	if err := CheckOwner(owner, a.OwnerID); err != nil {
		return err
	}
	if a.IsDeleted() {
		return Invalid(field, "account is deleted")
	}
	return nil
}
