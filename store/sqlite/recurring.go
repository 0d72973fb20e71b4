package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// RECURRING STORE
// =============================================================================

const recurringColumns = `id, user_id, account_id, category_id, type, amount, beneficiary, description,
	frequency, day_of_month, start_date, end_date, last_generated_date, next_due_date,
	remaining_occurrences, is_active, created_at, updated_at, deleted_at`

func (q queries) CreateRecurring(ctx context.Context, r ledger.RecurringTransaction) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO recurring_transactions (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.OwnerID, r.AccountID, nullString(r.CategoryID), r.Type, r.Amount, r.Beneficiary, r.Description,
		r.Frequency, nullInt(r.DayOfMonth), r.StartDate.String(), nullDate(r.EndDate), nullDate(r.LastGeneratedDate),
		r.NextDueDate.String(), nullInt(r.RemainingOccurrences), boolInt(r.IsActive),
		formatTS(r.CreatedAt), formatTS(r.UpdatedAt), nullTS(r.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create recurring transaction: %w", err)
	}
	return nil
}

func (q queries) UpdateRecurring(ctx context.Context, r ledger.RecurringTransaction) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE recurring_transactions SET
			account_id = ?, category_id = ?, type = ?, amount = ?, beneficiary = ?, description = ?,
			frequency = ?, day_of_month = ?, start_date = ?, end_date = ?, last_generated_date = ?,
			next_due_date = ?, remaining_occurrences = ?, is_active = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		r.AccountID, nullString(r.CategoryID), r.Type, r.Amount, r.Beneficiary, r.Description,
		r.Frequency, nullInt(r.DayOfMonth), r.StartDate.String(), nullDate(r.EndDate), nullDate(r.LastGeneratedDate),
		r.NextDueDate.String(), nullInt(r.RemainingOccurrences), boolInt(r.IsActive), formatTS(r.UpdatedAt), nullTS(r.DeletedAt),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recurring transaction: %w", err)
	}
	return expectRow(res, "recurring transaction", r.ID)
}

func (q queries) GetRecurring(ctx context.Context, id string) (ledger.RecurringTransaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	r, err := scanRecurring(row)
	if err != nil {
		return ledger.RecurringTransaction{}, notFound(err, "recurring transaction", id)
	}
	return r, nil
}

// ListRecurring orders by next due date so the scheduler processes oldest first.
func (q queries) ListRecurring(ctx context.Context, f ledger.RecurringFilter) ([]ledger.RecurringTransaction, error) {
	var w where
	if f.OwnerID != "" {
		w.add("user_id = ?", f.OwnerID)
	}
	if f.ActiveOnly {
		w.add("is_active = 1")
	}
	if f.DueBy != nil {
		w.add("next_due_date <= ?", f.DueBy.String())
	}
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions`+w.String()+` ORDER BY next_due_date ASC, created_at ASC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.RecurringTransaction
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q queries) OwnersWithDueRecurring(ctx context.Context, day ledger.Date) ([]string, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM recurring_transactions
		WHERE is_active = 1 AND deleted_at IS NULL AND next_due_date <= ?
		ORDER BY user_id
	`, day.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list owners with due schedules: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func scanRecurring(s scanner) (ledger.RecurringTransaction, error) {
	var (
		r                    ledger.RecurringTransaction
		category             sql.NullString
		dayOfMonth, left     sql.NullInt64
		endDate, lastGen     ledger.Date
		isActive             int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&r.ID, &r.OwnerID, &r.AccountID, &category, &r.Type, &r.Amount, &r.Beneficiary, &r.Description,
		&r.Frequency, &dayOfMonth, &r.StartDate, &endDate, &lastGen, &r.NextDueDate,
		&left, &isActive, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.RecurringTransaction{}, err
	}
	r.CategoryID = scanNullString(category)
	r.DayOfMonth = scanNullInt(dayOfMonth)
	r.EndDate = optDate(endDate)
	r.LastGeneratedDate = optDate(lastGen)
	r.RemainingOccurrences = scanNullInt(left)
	r.IsActive = isActive != 0
	r.CreatedAt = parseTS(createdAt)
	r.UpdatedAt = parseTS(updatedAt)
	r.DeletedAt = scanNullTS(deletedAt)
	return r, nil
}
