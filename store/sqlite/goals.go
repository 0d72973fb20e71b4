package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// GOAL STORE
// =============================================================================

const goalColumns = `id, user_id, name, type, target_amount, current_amount, target_date,
	linked_account_id, description, status, created_at, updated_at, deleted_at`

func (q queries) CreateGoal(ctx context.Context, g ledger.Goal) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID, g.OwnerID, g.Name, g.Type, g.TargetAmount, g.CurrentAmount, nullDate(g.TargetDate),
		nullString(g.LinkedAccountID), g.Description, g.Status,
		formatTS(g.CreatedAt), formatTS(g.UpdatedAt), nullTS(g.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

func (q queries) UpdateGoal(ctx context.Context, g ledger.Goal) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE goals SET
			name = ?, type = ?, target_amount = ?, current_amount = ?, target_date = ?,
			linked_account_id = ?, description = ?, status = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		g.Name, g.Type, g.TargetAmount, g.CurrentAmount, nullDate(g.TargetDate),
		nullString(g.LinkedAccountID), g.Description, g.Status, formatTS(g.UpdatedAt), nullTS(g.DeletedAt),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	return expectRow(res, "goal", g.ID)
}

func (q queries) GetGoal(ctx context.Context, id string) (ledger.Goal, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err != nil {
		return ledger.Goal{}, notFound(err, "goal", id)
	}
	return g, nil
}

func (q queries) ListGoals(ctx context.Context, f ledger.OwnedFilter) ([]ledger.Goal, error) {
	var w where
	w.add("user_id = ?", f.OwnerID)
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var out []ledger.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGoal(s scanner) (ledger.Goal, error) {
	var (
		g                    ledger.Goal
		target               ledger.Date
		linked               sql.NullString
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Type, &g.TargetAmount, &g.CurrentAmount, &target,
		&linked, &g.Description, &g.Status, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.Goal{}, err
	}
	g.TargetDate = optDate(target)
	g.LinkedAccountID = scanNullString(linked)
	g.CreatedAt = parseTS(createdAt)
	g.UpdatedAt = parseTS(updatedAt)
	g.DeletedAt = scanNullTS(deletedAt)
	return g, nil
}
