package budget

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// MANAGER - Persistence-backed cycle operations
// =============================================================================

// Manager runs budget settings and cycle operations over the ledger.
type Manager struct {
	Ledger *ledger.Ledger

	// AutoRollover starts a new cycle when an income transaction passes
	// CheckSalaryTrigger (see MaybeRollover).
	AutoRollover bool
}

// NewManager creates a manager over l.
func NewManager(l *ledger.Ledger) *Manager {
	return &Manager{Ledger: l}
}

func (m *Manager) bind(l *ledger.Ledger) *Manager {
	c := *m
	c.Ledger = l
	return &c
}

// inTx runs fn with a manager bound to a transaction.
func (m *Manager) inTx(ctx context.Context, fn func(*Manager) error) error {
	return m.Ledger.InTx(ctx, func(tl *ledger.Ledger) error {
		return fn(m.bind(tl))
	})
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns owner's settings, or the defaults when never saved.
func (m *Manager) Settings(ctx context.Context, owner string) (ledger.BudgetSettings, error) {
	s, err := m.Ledger.Repo.GetBudgetSettings(ctx, owner)
	if ledger.IsNotFound(err) {
		return ledger.DefaultBudgetSettings(owner), nil
	}
	return s, err
}

func validateSettings(s ledger.BudgetSettings) error {
	var v ledger.Validator
	v.Check(s.PreferredStartDay >= 1 && s.PreferredStartDay <= 31, "preferred_start_day", "must be between 1 and 31")
	v.Check(s.ToleranceStartDay >= 1 && s.ToleranceStartDay <= 31, "tolerance_start_day", "must be between 1 and 31")
	v.Check(s.ToleranceEndDay >= 1 && s.ToleranceEndDay <= 31, "tolerance_end_day", "must be between 1 and 31")
	return v.Err()
}

// SaveSettings validates and stores owner's settings.
func (m *Manager) SaveSettings(ctx context.Context, owner string, s ledger.BudgetSettings) (ledger.BudgetSettings, error) {
	if s.SalaryCategoryID != nil && *s.SalaryCategoryID == "" {
		s.SalaryCategoryID = nil
	}
	if s.SalaryAccountID != nil && *s.SalaryAccountID == "" {
		s.SalaryAccountID = nil
	}
	s.OwnerID = owner
	if err := validateSettings(s); err != nil {
		return ledger.BudgetSettings{}, err
	}
	if s.SalaryCategoryID != nil {
		if err := m.Ledger.RequireCategory(ctx, owner, "salary_category_id", *s.SalaryCategoryID, ledger.CategoryIncome); err != nil {
			return ledger.BudgetSettings{}, err
		}
	}
	if s.SalaryAccountID != nil {
		if err := m.Ledger.RequireAccount(ctx, owner, "salary_account_id", *s.SalaryAccountID); err != nil {
			return ledger.BudgetSettings{}, err
		}
	}
	s.UpdatedAt = m.Ledger.Now()
	if err := m.Ledger.Repo.SaveBudgetSettings(ctx, s); err != nil {
		return ledger.BudgetSettings{}, err
	}
	return s, nil
}

// =============================================================================
// CYCLES
// =============================================================================

// computeTotals sets total_spent from expenses dated within the cycle and
// total_budget from the current expense category limits.
func (m *Manager) computeTotals(ctx context.Context, c *ledger.BudgetCycle) error {
	repo := m.Ledger.Repo
	from := c.StartDate
	spent, err := repo.SumTransactions(ctx, ledger.TransactionFilter{
		OwnerID: c.OwnerID,
		Type:    ledger.TxExpense,
		From:    &from,
		To:      c.EndDate,
	})
	if err != nil {
		return err
	}
	budget, err := repo.SumBudgetLimits(ctx, c.OwnerID, ledger.CategoryExpense)
	if err != nil {
		return err
	}
	c.TotalSpent = spent
	c.TotalBudget = budget
	return nil
}

// UpdateTotals recomputes an active cycle's totals and persists them when
// they changed. Closed cycles are frozen and returned as stored.
func (m *Manager) UpdateTotals(ctx context.Context, c ledger.BudgetCycle) (ledger.BudgetCycle, error) {
	if c.Status != ledger.CycleActive {
		return c, nil
	}
	before := c
	if err := m.computeTotals(ctx, &c); err != nil {
		return ledger.BudgetCycle{}, err
	}
	if c.TotalSpent == before.TotalSpent && c.TotalBudget == before.TotalBudget {
		return c, nil
	}
	c.Touch(m.Ledger.Now())
	if err := m.Ledger.Repo.UpdateCycle(ctx, c); err != nil {
		return ledger.BudgetCycle{}, err
	}
	return c, nil
}

// CurrentCycle returns owner's active cycle with fresh totals. When none is
// active a default cycle is created from the preferred start day.
func (m *Manager) CurrentCycle(ctx context.Context, owner string) (ledger.BudgetCycle, error) {
	var out ledger.BudgetCycle
	err := m.inTx(ctx, func(tm *Manager) error {
		c, err := tm.Ledger.Repo.ActiveCycle(ctx, owner)
		if ledger.IsNotFound(err) {
			settings, err := tm.Settings(ctx, owner)
			if err != nil {
				return err
			}
			start := DefaultStartDate(tm.Ledger.Today(), settings.PreferredStartDay)
			c, err = tm.create(ctx, owner, start, nil)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		out, err = tm.UpdateTotals(ctx, c)
		return err
	})
	return out, err
}

func (m *Manager) create(ctx context.Context, owner string, start ledger.Date, trigger *string) (ledger.BudgetCycle, error) {
	c := ledger.BudgetCycle{
		Meta:                 ledger.Meta{ID: ledger.NewID()},
		OwnerID:              owner,
		StartDate:            start,
		PeriodName:           PeriodName(start),
		Status:               ledger.CycleActive,
		TriggerTransactionID: trigger,
	}
	budget, err := m.Ledger.Repo.SumBudgetLimits(ctx, owner, ledger.CategoryExpense)
	if err != nil {
		return ledger.BudgetCycle{}, err
	}
	c.TotalBudget = budget
	c.Touch(m.Ledger.Now())
	if err := m.Ledger.Repo.CreateCycle(ctx, c); err != nil {
		return ledger.BudgetCycle{}, err
	}
	return c, nil
}

// closeCycle freezes c ending on end.
func (m *Manager) closeCycle(ctx context.Context, c ledger.BudgetCycle, end ledger.Date) (ledger.BudgetCycle, error) {
	c.EndDate = &end
	if err := m.computeTotals(ctx, &c); err != nil {
		return ledger.BudgetCycle{}, err
	}
	c.Status = ledger.CycleClosed
	c.Touch(m.Ledger.Now())
	if err := m.Ledger.Repo.UpdateCycle(ctx, c); err != nil {
		return ledger.BudgetCycle{}, err
	}
	return c, nil
}

// Start opens a new active cycle on start, closing the current one the day
// before. trigger names the income transaction that caused the rollover.
func (m *Manager) Start(ctx context.Context, owner string, start ledger.Date, trigger *string) (ledger.BudgetCycle, error) {
	if start.IsZero() {
		return ledger.BudgetCycle{}, ledger.Invalid("start_date", "is required")
	}
	if trigger != nil && *trigger == "" {
		trigger = nil
	}

	var out ledger.BudgetCycle
	err := m.inTx(ctx, func(tm *Manager) error {
		if trigger != nil {
			tx, err := tm.Ledger.GetTransaction(ctx, owner, *trigger)
			if ledger.IsNotFound(err) {
				return ledger.Invalid("trigger_transaction_id", "transaction not found")
			}
			if err != nil {
				return err
			}
			if tx.Type != ledger.TxIncome {
				return ledger.Invalid("trigger_transaction_id", "must be an income transaction")
			}
		}

		current, err := tm.Ledger.Repo.ActiveCycle(ctx, owner)
		switch {
		case err == nil:
			if start.BeforeOrEqual(current.StartDate) {
				return ledger.Invalid("start_date", "must be after the current cycle start "+current.StartDate.String())
			}
			if _, err := tm.closeCycle(ctx, current, start.AddDays(-1)); err != nil {
				return err
			}
		case !ledger.IsNotFound(err):
			return err
		}

		out, err = tm.create(ctx, owner, start, trigger)
		return err
	})
	return out, err
}

// Close ends an active cycle of owner today (or on its start day if it
// starts in the future) and freezes its totals.
func (m *Manager) Close(ctx context.Context, owner, id string) (ledger.BudgetCycle, error) {
	var out ledger.BudgetCycle
	err := m.inTx(ctx, func(tm *Manager) error {
		c, err := tm.Ledger.Repo.GetCycle(ctx, id)
		if err != nil {
			return err
		}
		if err := ledger.CheckOwner(owner, c.OwnerID); err != nil {
			return err
		}
		if c.IsDeleted() {
			return &ledger.NotFoundError{Kind: "budget cycle", ID: id}
		}
		if c.Status == ledger.CycleClosed {
			out = c
			return nil
		}
		end := tm.Ledger.Today()
		if end.Before(c.StartDate) {
			end = c.StartDate
		}
		out, err = tm.closeCycle(ctx, c, end)
		return err
	})
	return out, err
}

// Cycle returns one cycle of owner, refreshed if active.
func (m *Manager) Cycle(ctx context.Context, owner, id string) (ledger.BudgetCycle, error) {
	c, err := m.Ledger.Repo.GetCycle(ctx, id)
	if err != nil {
		return ledger.BudgetCycle{}, err
	}
	if err := ledger.CheckOwner(owner, c.OwnerID); err != nil {
		return ledger.BudgetCycle{}, err
	}
	if c.IsDeleted() {
		return ledger.BudgetCycle{}, &ledger.NotFoundError{Kind: "budget cycle", ID: id}
	}
	return m.UpdateTotals(ctx, c)
}

// ListCycles returns owner's cycles newest first; the active one refreshed.
func (m *Manager) ListCycles(ctx context.Context, owner string) ([]ledger.BudgetCycle, error) {
	cycles, err := m.Ledger.Repo.ListCycles(ctx, ledger.OwnedFilter{OwnerID: owner})
	if err != nil {
		return nil, err
	}
	for i, c := range cycles {
		if c.Status != ledger.CycleActive {
			continue
		}
		if cycles[i], err = m.UpdateTotals(ctx, c); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

// MaybeRollover starts a new cycle dated on tx when auto rollover is on, tx
// passes CheckSalaryTrigger and it is later than the active cycle's start.
// Returns the new cycle and true when a rollover happened.
func (m *Manager) MaybeRollover(ctx context.Context, owner string, tx ledger.Transaction) (ledger.BudgetCycle, bool, error) {
	if !m.AutoRollover {
		return ledger.BudgetCycle{}, false, nil
	}
	settings, err := m.Settings(ctx, owner)
	if err != nil {
		return ledger.BudgetCycle{}, false, err
	}
	if !CheckSalaryTrigger(settings, tx) {
		return ledger.BudgetCycle{}, false, nil
	}
	current, err := m.Ledger.Repo.ActiveCycle(ctx, owner)
	if err == nil && tx.Date.BeforeOrEqual(current.StartDate) {
		return ledger.BudgetCycle{}, false, nil
	}
	if err != nil && !ledger.IsNotFound(err) {
		return ledger.BudgetCycle{}, false, err
	}

	id := tx.ID
	c, err := m.Start(ctx, owner, tx.Date, &id)
	if err != nil {
		return ledger.BudgetCycle{}, false, err
	}
	log.Printf("[Budget] Rolled over %s to %s (trigger %s)", owner, c.PeriodName, tx.ID)
	return c, true, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// CategoryUsage is spending against one category's budget limit.
type CategoryUsage struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Limit      int64           `json:"limit"`
	Spent      int64           `json:"spent"`
	Remaining  int64           `json:"remaining"`
	Percent    decimal.Decimal `json:"percent"`
}

// Summary is the dashboard view of the active cycle.
type Summary struct {
	Cycle         ledger.BudgetCycle `json:"cycle"`
	Remaining     int64              `json:"remaining"`
	DaysRemaining int                `json:"days_remaining"`
	DailyBudget   int64              `json:"daily_budget"`
	NextStart     ledger.Date        `json:"next_start_date"`
	Categories    []CategoryUsage    `json:"categories"`
}

var hundred = decimal.NewFromInt(100)

// Usage is spent/limit as a percentage rounded to 2 places; 0 without a limit.
func Usage(spent, limit int64) decimal.Decimal {
	if limit <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(spent).Mul(hundred).Div(decimal.NewFromInt(limit)).Round(2)
}

// Summary computes the active cycle's figures and per-category usage.
func (m *Manager) Summary(ctx context.Context, owner string) (Summary, error) {
	c, err := m.CurrentCycle(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	settings, err := m.Settings(ctx, owner)
	if err != nil {
		return Summary{}, err
	}

	today := m.Ledger.Today()
	days := DaysRemaining(c, today, settings.PreferredStartDay)
	s := Summary{
		Cycle:         c,
		Remaining:     c.Remaining(),
		DaysRemaining: days,
		DailyBudget:   DailyBudget(c, days),
		NextStart:     NextStartDate(today, settings.PreferredStartDay),
		Categories:    []CategoryUsage{},
	}

	cats, err := m.Ledger.ListCategories(ctx, owner, ledger.CategoryExpense)
	if err != nil {
		return Summary{}, err
	}
	from := c.StartDate
	for _, cat := range cats {
		if cat.BudgetLimit == nil {
			continue
		}
		spent, err := m.Ledger.Repo.SumTransactions(ctx, ledger.TransactionFilter{
			OwnerID:    owner,
			CategoryID: cat.ID,
			Type:       ledger.TxExpense,
			From:       &from,
			To:         c.EndDate,
		})
		if err != nil {
			return Summary{}, err
		}
		s.Categories = append(s.Categories, CategoryUsage{
			CategoryID: cat.ID,
			Name:       cat.Name,
			Limit:      *cat.BudgetLimit,
			Spent:      spent,
			Remaining:  *cat.BudgetLimit - spent,
			Percent:    Usage(spent, *cat.BudgetLimit),
		})
	}
	return s, nil
}

