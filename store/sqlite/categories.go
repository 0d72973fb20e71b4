package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// CATEGORY STORE
// =============================================================================

const categoryColumns = `id, user_id, name, type, parent_id, budget_limit, color, icon,
	is_system, created_at, updated_at, deleted_at`

// systemNamespace derives stable ids for seeded categories, identical on every install.
var systemNamespace = uuid.MustParse("6f1c2b9e-3a4d-4c8e-9b1f-2d7e5a0c8f31")

var systemCategories = []struct {
	Name  string
	Type  ledger.CategoryType
	Color string
	Icon  string
}{
	{"Salaire", ledger.CategoryIncome, "#2E7D32", "wallet"},
	{"Autres revenus", ledger.CategoryIncome, "#66BB6A", "plus-circle"},
	{"Alimentation", ledger.CategoryExpense, "#EF6C00", "shopping-cart"},
	{"Logement", ledger.CategoryExpense, "#5D4037", "home"},
	{"Transport", ledger.CategoryExpense, "#1565C0", "car"},
	{"Santé", ledger.CategoryExpense, "#C62828", "heart"},
	{"Loisirs", ledger.CategoryExpense, "#6A1B9A", "music"},
	{"Factures", ledger.CategoryExpense, "#455A64", "file-text"},
	{"Autres dépenses", ledger.CategoryExpense, "#9E9E9E", "more-horizontal"},
}

// SystemCategoryID returns the id of a seeded system category.
func SystemCategoryID(name string, typ ledger.CategoryType) string {
	return uuid.NewSHA1(systemNamespace, []byte(string(typ)+":"+name)).String()
}

// systemSeedTime is the updated_at of every seeded category, on every install.
var systemSeedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *Store) seedSystemCategories(ctx context.Context) error {
	now := formatTS(systemSeedTime)
	for _, c := range systemCategories {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO categories (`+categoryColumns+`)
			VALUES (?, NULL, ?, ?, NULL, NULL, ?, ?, 1, ?, ?, NULL)
		`, SystemCategoryID(c.Name, c.Type), c.Name, c.Type, c.Color, c.Icon, now, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (q queries) CreateCategory(ctx context.Context, c ledger.Category) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, ownerOrNull(c.OwnerID), c.Name, c.Type, nullString(c.ParentID), nullInt64(c.BudgetLimit),
		c.Color, c.Icon, boolInt(c.IsSystem), formatTS(c.CreatedAt), formatTS(c.UpdatedAt), nullTS(c.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (q queries) UpdateCategory(ctx context.Context, c ledger.Category) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE categories SET
			name = ?, type = ?, parent_id = ?, budget_limit = ?, color = ?, icon = ?,
			updated_at = ?, deleted_at = ?
		WHERE id = ? AND is_system = 0
	`,
		c.Name, c.Type, nullString(c.ParentID), nullInt64(c.BudgetLimit), c.Color, c.Icon,
		formatTS(c.UpdatedAt), nullTS(c.DeletedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return expectRow(res, "category", c.ID)
}

func (q queries) GetCategory(ctx context.Context, id string) (ledger.Category, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		return ledger.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

// ListCategories returns the owner's categories plus shared ones unless OwnedOnly.
func (q queries) ListCategories(ctx context.Context, f ledger.CategoryFilter) ([]ledger.Category, error) {
	var w where
	if f.OwnedOnly {
		w.add("user_id = ?", f.OwnerID)
	} else {
		w.add("(user_id = ? OR user_id IS NULL)", f.OwnerID)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.ParentID != "" {
		w.add("parent_id = ?", f.ParentID)
	}
	w.liveOrSince(f.IncludeDeleted, f.UpdatedSince)

	rows, err := q.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories`+w.String()+` ORDER BY is_system DESC, name ASC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) SumBudgetLimits(ctx context.Context, ownerID string, typ ledger.CategoryType) (int64, error) {
	var total int64
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(budget_limit), 0) FROM categories
		WHERE (user_id = ? OR user_id IS NULL) AND type = ? AND deleted_at IS NULL
	`, ownerID, typ).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum budget limits: %w", err)
	}
	return total, nil
}

func scanCategory(s scanner) (ledger.Category, error) {
	var (
		c                    ledger.Category
		owner, parent        sql.NullString
		limit                sql.NullInt64
		isSystem             int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := s.Scan(&c.ID, &owner, &c.Name, &c.Type, &parent, &limit, &c.Color, &c.Icon,
		&isSystem, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return ledger.Category{}, err
	}
	c.OwnerID = owner.String
	c.ParentID = scanNullString(parent)
	c.BudgetLimit = scanNullInt64(limit)
	c.IsSystem = isSystem != 0
	c.CreatedAt = parseTS(createdAt)
	c.UpdatedAt = parseTS(updatedAt)
	c.DeletedAt = scanNullTS(deletedAt)
	return c, nil
}

func ownerOrNull(owner string) any {
	if owner == "" {
		return nil
	}
	return owner
}
