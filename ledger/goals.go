package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GOALS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// AddAmount contributes to the goal. Reaching the target completes it.
func (g *Goal) AddAmount(amount int64) {
	g.CurrentAmount += amount
	g.settle()
}

func (g *Goal) settle() {
	if g.Status == GoalActive && g.CurrentAmount >= g.TargetAmount {
		g.Status = GoalCompleted
	}
}

// Progress is current/target as a percentage in [0, 100], 2 decimal places.
func (g Goal) Progress() decimal.Decimal {
	if g.TargetAmount <= 0 {
		return decimal.Zero
	}
	p := decimal.NewFromInt(g.CurrentAmount).Mul(hundred).Div(decimal.NewFromInt(g.TargetAmount))
	if p.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p.Round(2)
}

// Remaining is the amount still needed, never negative.
func (g Goal) Remaining() int64 {
	if r := g.TargetAmount - g.CurrentAmount; r > 0 {
		return r
	}
	return 0
}

func validateGoal(g Goal) error {
	var v Validator
	v.Check(strings.TrimSpace(g.Name) != "", "name", "is required")
	v.Check(g.Type.Valid(), "type", "must be one of savings, debt, investment, custom, emergency_fund")
	v.Check(g.TargetAmount > 0, "target_amount", "must be positive")
	v.Check(g.CurrentAmount >= 0, "current_amount", "must not be negative")
	v.Check(g.Status == GoalActive || g.Status == GoalCompleted || g.Status == GoalCancelled,
		"status", "must be active, completed or cancelled")
	return v.Err()
}

func (l *Ledger) checkGoalAccount(ctx context.Context, owner string, g *Goal) error {
	normalizeRef(&g.LinkedAccountID)
	if g.LinkedAccountID == nil {
		return nil
	}
	return l.accountRef(ctx, owner, "linked_account_id", *g.LinkedAccountID)
}

// CreateGoal stores a goal for owner.
func (l *Ledger) CreateGoal(ctx context.Context, owner string, g Goal) (Goal, error) {
	if g.ID == "" {
		g.ID = NewID()
	}
	if g.Type == "" {
		g.Type = GoalSavings
	}
	if g.Status == "" {
		g.Status = GoalActive
	}
	g.OwnerID = owner
	g.DeletedAt = nil
	g.CreatedAt = time.Time{}
	if err := validateGoal(g); err != nil {
		return Goal{}, err
	}
	if err := l.checkGoalAccount(ctx, owner, &g); err != nil {
		return Goal{}, err
	}
	g.settle()
	g.Touch(l.Now())
	if err := l.Repo.CreateGoal(ctx, g); err != nil {
		return Goal{}, err
	}
	return g, nil
}

// UpdateGoal applies mutate to an owned goal.
func (l *Ledger) UpdateGoal(ctx context.Context, owner, id string, mutate func(*Goal) error) (Goal, error) {
	var out Goal
	err := l.InTx(ctx, func(tl *Ledger) error {
		current, err := tl.Repo.GetGoal(ctx, id)
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
			return &NotFoundError{Kind: "goal", ID: id}
		}
		if err := validateGoal(next); err != nil {
			return err
		}
		if err := tl.checkGoalAccount(ctx, owner, &next); err != nil {
			return err
		}
		next.settle()
		next.Touch(tl.Now())
		if err := tl.Repo.UpdateGoal(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// ContributeToGoal adds amount to an owned goal.
func (l *Ledger) ContributeToGoal(ctx context.Context, owner, id string, amount int64) (Goal, error) {
	if amount <= 0 {
		return Goal{}, Invalid("amount", "must be positive")
	}
	return l.UpdateGoal(ctx, owner, id, func(g *Goal) error {
		if g.Status == GoalCancelled {
			return Invalid("status", "cannot contribute to a cancelled goal")
		}
		g.AddAmount(amount)
		return nil
	})
}

// DeleteGoal tombstones an owned goal.
func (l *Ledger) DeleteGoal(ctx context.Context, owner, id string) error {
	g, err := l.Repo.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if err := CheckOwner(owner, g.OwnerID); err != nil {
		return err
	}
	if g.IsDeleted() {
		return nil
	}
	g.MarkDeleted(l.Now())
	return l.Repo.UpdateGoal(ctx, g)
}

// GetGoal returns a live goal of owner.
func (l *Ledger) GetGoal(ctx context.Context, owner, id string) (Goal, error) {
	g, err := l.Repo.GetGoal(ctx, id)
	if err != nil {
		return Goal{}, err
	}
	if err := CheckOwner(owner, g.OwnerID); err != nil {
		return Goal{}, err
	}
	if g.IsDeleted() {
		return Goal{}, &NotFoundError{Kind: "goal", ID: id}
	}
	return g, nil
}

func (l *Ledger) ListGoals(ctx context.Context, owner string) ([]Goal, error) {
	return l.Repo.ListGoals(ctx, OwnedFilter{OwnerID: owner})
}
