package ledger

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// DEBTS
// =============================================================================

// ApplyPayment reduces the remaining amount, floored at zero. A debt that
// reaches zero becomes paid.
func (d *Debt) ApplyPayment(amount int64) {
	d.CurrentAmount -= amount
	if d.CurrentAmount < 0 {
		d.CurrentAmount = 0
	}
	d.settle()
}

func (d *Debt) settle() {
	if d.CurrentAmount == 0 && d.Status == DebtActive {
		d.Status = DebtPaid
	}
}

func validateDebt(d Debt) error {
	var v Validator
	v.Check(strings.TrimSpace(d.Name) != "", "name", "is required")
	v.Check(d.Type == DebtOwed || d.Type == DebtCredit, "type", "must be debt or credit")
	v.Check(d.InitialAmount > 0, "initial_amount", "must be positive")
	v.Check(d.CurrentAmount >= 0, "current_amount", "must not be negative")
	v.Check(d.CurrentAmount <= d.InitialAmount, "current_amount", "must not exceed initial_amount")
	v.Check(d.Status != DebtPaid || d.CurrentAmount == 0, "status", "a paid debt has nothing left to pay")
	v.Check(d.Status == DebtActive || d.Status == DebtPaid || d.Status == DebtCancelled,
		"status", "must be active, paid or cancelled")
	return v.Err()
}

// CreateDebt stores a debt. current_amount defaults to initial_amount.
func (l *Ledger) CreateDebt(ctx context.Context, owner string, d Debt) (Debt, error) {
	if d.ID == "" {
		d.ID = NewID()
	}
	d.OwnerID = owner
	d.DeletedAt = nil
	d.CreatedAt = time.Time{}
	if d.CurrentAmount == 0 && d.Status != DebtPaid {
		d.CurrentAmount = d.InitialAmount
	}
	if d.Type == "" {
		d.Type = DebtOwed
	}
	if d.Status == "" {
		d.Status = DebtActive
	}
	if err := validateDebt(d); err != nil {
		return Debt{}, err
	}
	d.settle()
	d.Touch(l.Now())
	if err := l.Repo.CreateDebt(ctx, d); err != nil {
		return Debt{}, err
	}
	return d, nil
}

// UpdateDebt applies mutate to an owned debt. current_amount only goes down;
// payments are the way to reduce it.
func (l *Ledger) UpdateDebt(ctx context.Context, owner, id string, mutate func(*Debt) error) (Debt, error) {
	var out Debt
	err := l.InTx(ctx, func(tl *Ledger) error {
		current, err := tl.Repo.GetDebt(ctx, id)
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
		next.ID, next.OwnerID, next.CreatedAt = current.ID, current.OwnerID, current.CreatedAt
		if next.IsDeleted() {
			return &NotFoundError{Kind: "debt", ID: id}
		}
		if next.CurrentAmount > current.CurrentAmount {
			return Invalid("current_amount", "cannot increase")
		}
		if err := validateDebt(next); err != nil {
			return err
		}
		next.settle()
		next.Touch(tl.Now())
		if err := tl.Repo.UpdateDebt(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// AddDebtPayment records a payment against an active debt.
func (l *Ledger) AddDebtPayment(ctx context.Context, owner, id string, amount int64) (Debt, error) {
	if amount <= 0 {
		return Debt{}, Invalid("amount", "must be positive")
	}
	return l.UpdateDebt(ctx, owner, id, func(d *Debt) error {
		if d.Status == DebtCancelled {
			return Invalid("status", "cannot pay a cancelled debt")
		}
		d.ApplyPayment(amount)
		return nil
	})
}

// DeleteDebt tombstones an owned debt.
func (l *Ledger) DeleteDebt(ctx context.Context, owner, id string) error {
	d, err := l.Repo.GetDebt(ctx, id)
	if err != nil {
		return err
	}
	if err := CheckOwner(owner, d.OwnerID); err != nil {
		return err
	}
	if d.IsDeleted() {
		return nil
	}
	d.MarkDeleted(l.Now())
	return l.Repo.UpdateDebt(ctx, d)
}

// GetDebt returns a live debt of owner.
func (l *Ledger) GetDebt(ctx context.Context, owner, id string) (Debt, error) {
	d, err := l.Repo.GetDebt(ctx, id)
	if err != nil {
		return Debt{}, err
	}
	if err := CheckOwner(owner, d.OwnerID); err != nil {
		return Debt{}, err
	}
	if d.IsDeleted() {
		return Debt{}, &NotFoundError{Kind: "debt", ID: id}
	}
	return d, nil
}

func (l *Ledger) ListDebts(ctx context.Context, owner string) ([]Debt, error) {
	return l.Repo.ListDebts(ctx, OwnedFilter{OwnerID: owner})
}
