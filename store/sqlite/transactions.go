package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const transactionColumns = `id, user_id, amount, type, category_id, account_id, transfer_to_account_id,
	beneficiary, description, date, recurring_transaction_id, created_at, updated_at, deleted_at`

func (q queries) CreateTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID, tx.OwnerID, tx.Amount, tx.Type, nullString(tx.CategoryID), tx.AccountID,
		nullString(tx.TransferToAccountID), tx.Beneficiary, tx.Description, tx.Date.String(),
		nullString(tx.RecurringTransactionID), formatTS(tx.CreatedAt), formatTS(tx.UpdatedAt), nullTS(tx.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (q queries) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE transactions SET
			amount = ?, type = ?, category_id = ?, account_id = ?, transfer_to_account_id = ?,
			beneficiary = ?, description = ?, date = ?, recurring_transaction_id = ?,
			updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		tx.Amount, tx.Type, nullString(tx.CategoryID), tx.AccountID, nullString(tx.TransferToAccountID),
		tx.Beneficiary, tx.Description, tx.Date.String(), nullString(tx.RecurringTransactionID),
		formatTS(tx.UpdatedAt), nullTS(tx.DeletedAt),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectRow(res, "transaction", tx.ID)
}

func (q queries) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return ledger.Transaction{}, notFound(err, "transaction", id)
	}
	return tx, nil
}

// ListTransactions returns matching transactions, newest first.
func (q queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	w := transactionWhere(f)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + w.String() +
		` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q queries) SumTransactions(ctx context.Context, f ledger.TransactionFilter) (int64, error) {
	w := transactionWhere(f)
	var total int64
	err := q.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions`+w.String(), w.args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return total, nil
}

func transactionWhere(f ledger.TransactionFilter) *where {
	w := &where{}
	if f.OwnerID != "" {
		w.add("user_id = ?", f.OwnerID)
	}
	if f.AccountID != "" {
		w.add("account_id = ?", f.AccountID)
	}
	if f.TransferToAccountID != "" {
		w.add("transfer_to_account_id = ?", f.TransferToAccountID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.From != nil {
		w.add("date >= ?", f.From.String())
	}
	if f.To != nil {
		w.add("date <= ?", f.To.String())
	}
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)
	return w
}

func scanTransaction(s scanner) (ledger.Transaction, error) {
	var (
		tx                          ledger.Transaction
		category, transferTo, recur sql.NullString
		createdAt, updatedAt        string
		deletedAt                   sql.NullString
	)
	err := s.Scan(&tx.ID, &tx.OwnerID, &tx.Amount, &tx.Type, &category, &tx.AccountID, &transferTo,
		&tx.Beneficiary, &tx.Description, &tx.Date, &recur, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	tx.CategoryID = scanNullString(category)
	tx.TransferToAccountID = scanNullString(transferTo)
	tx.RecurringTransactionID = scanNullString(recur)
	tx.CreatedAt = parseTS(createdAt)
	tx.UpdatedAt = parseTS(updatedAt)
	tx.DeletedAt = scanNullTS(deletedAt)
	return tx, nil
}
