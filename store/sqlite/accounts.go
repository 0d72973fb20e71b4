package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

const accountColumns = `id, user_id, name, type, initial_balance, balance, color, icon,
	is_default, order_index, created_at, updated_at, deleted_at`

func (q queries) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.OwnerID, a.Name, a.Type, a.InitialBalance, a.Balance, a.Color, a.Icon,
		boolInt(a.IsDefault), a.OrderIndex, formatTS(a.CreatedAt), formatTS(a.UpdatedAt), nullTS(a.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (q queries) UpdateAccount(ctx context.Context, a ledger.Account) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET
			name = ?, type = ?, initial_balance = ?, balance = ?, color = ?, icon = ?,
			is_default = ?, order_index = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		a.Name, a.Type, a.InitialBalance, a.Balance, a.Color, a.Icon,
		boolInt(a.IsDefault), a.OrderIndex, formatTS(a.UpdatedAt), nullTS(a.DeletedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectRow(res, "account", a.ID)
}

func (q queries) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return ledger.Account{}, notFound(err, "account", id)
	}
	return a, nil
}

// ListAccounts orders by order_index then name, like the client account list.
func (q queries) ListAccounts(ctx context.Context, f ledger.AccountFilter) ([]ledger.Account, error) {
	var w where
	w.add("user_id = ?", f.OwnerID)
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts`+w.String()+` ORDER BY order_index ASC, name ASC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q queries) ClearDefaultAccounts(ctx context.Context, ownerID, keepID string, at time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET is_default = 0, updated_at = ?
		WHERE user_id = ? AND id != ? AND is_default = 1
	`, formatTS(at), ownerID, keepID)
	if err != nil {
		return fmt.Errorf("failed to clear default accounts: %w", err)
	}
	return nil
}

func scanAccount(s scanner) (ledger.Account, error) {
	var (
		a                    ledger.Account
		isDefault            int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.InitialBalance, &a.Balance, &a.Color, &a.Icon,
		&isDefault, &a.OrderIndex, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	a.IsDefault = isDefault != 0
	a.CreatedAt = parseTS(createdAt)
	a.UpdatedAt = parseTS(updatedAt)
	a.DeletedAt = scanNullTS(deletedAt)
	return a, nil
}
