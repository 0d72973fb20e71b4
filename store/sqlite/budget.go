package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// BUDGET STORE - Settings and cycles
// =============================================================================

func (q queries) GetBudgetSettings(ctx context.Context, ownerID string) (ledger.BudgetSettings, error) {
	var (
		s              ledger.BudgetSettings
		salaryCategory sql.NullString
		salaryAccount  sql.NullString
		autoDetect     int
		updatedAt      string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT user_id, preferred_start_day, tolerance_start_day, tolerance_end_day,
		       salary_category_id, salary_account_id, auto_detect_salary, updated_at
		FROM budget_settings WHERE user_id = ?
	`, ownerID).Scan(&s.OwnerID, &s.PreferredStartDay, &s.ToleranceStartDay, &s.ToleranceEndDay,
		&salaryCategory, &salaryAccount, &autoDetect, &updatedAt)
	if err != nil {
		return ledger.BudgetSettings{}, notFound(err, "budget settings", ownerID)
	}
	s.SalaryCategoryID = scanNullString(salaryCategory)
	s.SalaryAccountID = scanNullString(salaryAccount)
	s.AutoDetectSalary = autoDetect != 0
	s.UpdatedAt = parseTS(updatedAt)
	return s, nil
}

// SaveBudgetSettings upserts the owner's settings row.
func (q queries) SaveBudgetSettings(ctx context.Context, s ledger.BudgetSettings) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO budget_settings
		(user_id, preferred_start_day, tolerance_start_day, tolerance_end_day,
		 salary_category_id, salary_account_id, auto_detect_salary, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_start_day = excluded.preferred_start_day,
			tolerance_start_day = excluded.tolerance_start_day,
			tolerance_end_day = excluded.tolerance_end_day,
			salary_category_id = excluded.salary_category_id,
			salary_account_id = excluded.salary_account_id,
			auto_detect_salary = excluded.auto_detect_salary,
			updated_at = excluded.updated_at
	`,
		s.OwnerID, s.PreferredStartDay, s.ToleranceStartDay, s.ToleranceEndDay,
		nullString(s.SalaryCategoryID), nullString(s.SalaryAccountID), boolInt(s.AutoDetectSalary), formatTS(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save budget settings: %w", err)
	}
	return nil
}

const cycleColumns = `id, user_id, start_date, end_date, period_name, total_budget, total_spent,
	status, trigger_transaction_id, created_at, updated_at, deleted_at`

// CreateCycle fails with ErrConflict when the owner already has an active cycle.
func (q queries) CreateCycle(ctx context.Context, c ledger.BudgetCycle) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO budget_cycles (`+cycleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.OwnerID, c.StartDate.String(), nullDate(c.EndDate), c.PeriodName, c.TotalBudget, c.TotalSpent,
		c.Status, nullString(c.TriggerTransactionID), formatTS(c.CreatedAt), formatTS(c.UpdatedAt), nullTS(c.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("owner %s already has an active cycle: %w", c.OwnerID, ledger.ErrConflict)
		}
		return fmt.Errorf("failed to create budget cycle: %w", err)
	}
	return nil
}

func (q queries) UpdateCycle(ctx context.Context, c ledger.BudgetCycle) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE budget_cycles SET
			start_date = ?, end_date = ?, period_name = ?, total_budget = ?, total_spent = ?,
			status = ?, trigger_transaction_id = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		c.StartDate.String(), nullDate(c.EndDate), c.PeriodName, c.TotalBudget, c.TotalSpent,
		c.Status, nullString(c.TriggerTransactionID), formatTS(c.UpdatedAt), nullTS(c.DeletedAt),
		c.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("owner %s already has an active cycle: %w", c.OwnerID, ledger.ErrConflict)
		}
		return fmt.Errorf("failed to update budget cycle: %w", err)
	}
	return expectRow(res, "budget cycle", c.ID)
}

func (q queries) GetCycle(ctx context.Context, id string) (ledger.BudgetCycle, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM budget_cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if err != nil {
		return ledger.BudgetCycle{}, notFound(err, "budget cycle", id)
	}
	return c, nil
}

func (q queries) ActiveCycle(ctx context.Context, ownerID string) (ledger.BudgetCycle, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+cycleColumns+` FROM budget_cycles
		WHERE user_id = ? AND status = ? AND deleted_at IS NULL
	`, ownerID, ledger.CycleActive)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.BudgetCycle{}, ledger.ErrNoActiveCycle
	}
	if err != nil {
		return ledger.BudgetCycle{}, fmt.Errorf("failed to load active cycle: %w", err)
	}
	return c, nil
}

// ListCycles returns cycles newest first.
func (q queries) ListCycles(ctx context.Context, f ledger.OwnedFilter) ([]ledger.BudgetCycle, error) {
	var w where
	w.add("user_id = ?", f.OwnerID)
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM budget_cycles`+w.String()+` ORDER BY start_date DESC, created_at DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget cycles: %w", err)
	}
	defer rows.Close()

	var out []ledger.BudgetCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCycle(s scanner) (ledger.BudgetCycle, error) {
	var (
		c                    ledger.BudgetCycle
		endDate              ledger.Date
		trigger              sql.NullString
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&c.ID, &c.OwnerID, &c.StartDate, &endDate, &c.PeriodName, &c.TotalBudget, &c.TotalSpent,
		&c.Status, &trigger, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.BudgetCycle{}, err
	}
	c.EndDate = optDate(endDate)
	c.TriggerTransactionID = scanNullString(trigger)
	c.CreatedAt = parseTS(createdAt)
	c.UpdatedAt = parseTS(updatedAt)
	c.DeletedAt = scanNullTS(deletedAt)
	return c, nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
