package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// DEBT STORE
// =============================================================================

const debtColumns = `id, user_id, name, type, initial_amount, current_amount, due_date,
	contact_name, contact_phone, contact_email, description, status, created_at, updated_at, deleted_at`

func (q queries) CreateDebt(ctx context.Context, d ledger.Debt) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO debts (`+debtColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.OwnerID, d.Name, d.Type, d.InitialAmount, d.CurrentAmount, nullDate(d.DueDate),
		d.ContactName, d.ContactPhone, d.ContactEmail, d.Description, d.Status,
		formatTS(d.CreatedAt), formatTS(d.UpdatedAt), nullTS(d.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create debt: %w", err)
	}
	return nil
}

func (q queries) UpdateDebt(ctx context.Context, d ledger.Debt) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE debts SET
			name = ?, type = ?, initial_amount = ?, current_amount = ?, due_date = ?,
			contact_name = ?, contact_phone = ?, contact_email = ?, description = ?, status = ?,
			updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		d.Name, d.Type, d.InitialAmount, d.CurrentAmount, nullDate(d.DueDate),
		d.ContactName, d.ContactPhone, d.ContactEmail, d.Description, d.Status,
		formatTS(d.UpdatedAt), nullTS(d.DeletedAt),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	return expectRow(res, "debt", d.ID)
}

func (q queries) GetDebt(ctx context.Context, id string) (ledger.Debt, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, id)
	d, err := scanDebt(row)
	if err != nil {
		return ledger.Debt{}, notFound(err, "debt", id)
	}
	return d, nil
}

func (q queries) ListDebts(ctx context.Context, f ledger.OwnedFilter) ([]ledger.Debt, error) {
	var w where
	w.add("user_id = ?", f.OwnerID)
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+debtColumns+` FROM debts`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDebt(s scanner) (ledger.Debt, error) {
	var (
		d                    ledger.Debt
		due                  ledger.Date
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Type, &d.InitialAmount, &d.CurrentAmount, &due,
		&d.ContactName, &d.ContactPhone, &d.ContactEmail, &d.Description, &d.Status,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.Debt{}, err
	}
	d.DueDate = optDate(due)
	d.CreatedAt = parseTS(createdAt)
	d.UpdatedAt = parseTS(updatedAt)
	d.DeletedAt = scanNullTS(deletedAt)
	return d, nil
}
