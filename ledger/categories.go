package ledger

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// CATEGORIES
// =============================================================================
//
// Owners manage their own categories. Shared categories (no owner) are
// visible to everyone and read-only; system categories are always shared and
// can never be edited or deleted.

func validateCategory(c Category) error {
	var v Validator
	v.Check(strings.TrimSpace(c.Name) != "", "name", "is required")
	v.Check(c.Type.Valid(), "type", "must be expense or income")
	v.Check(c.BudgetLimit == nil || *c.BudgetLimit >= 0, "budget_limit", "must not be negative")
	v.Check(c.ParentID == nil || *c.ParentID != c.ID, "parent_id", "cannot be the category itself")
	return v.Err()
}

// checkParent enforces a single nesting level with matching types: the
// parent is top-level and c itself has no live subcategories.
func (l *Ledger) checkParent(ctx context.Context, owner string, c Category) error {
	if c.ParentID == nil {
		return nil
	}
	parent, err := l.categoryRef(ctx, owner, "parent_id", *c.ParentID)
	if err != nil {
		return err
	}
	children, err := l.Repo.ListCategories(ctx, CategoryFilter{OwnerID: owner, OwnedOnly: true, ParentID: c.ID})
	if err != nil {
		return err
	}
	var v Validator
	v.Check(parent.ParentID == nil, "parent_id", "parent must be a top-level category")
	v.Check(parent.Type == c.Type, "parent_id", "parent must have the same type")
	v.Check(len(children) == 0, "parent_id", "a category with subcategories cannot have a parent")
	return v.Err()
}

// CreateCategory stores a category owned by owner.
func (l *Ledger) CreateCategory(ctx context.Context, owner string, c Category) (Category, error) {
	normalizeRef(&c.ParentID)
	if c.ID == "" {
		c.ID = NewID()
	}
	c.OwnerID = owner
	c.IsSystem = false
	c.DeletedAt = nil
	c.CreatedAt = time.Time{}
	if err := validateCategory(c); err != nil {
		return Category{}, err
	}
	if err := l.checkParent(ctx, owner, c); err != nil {
		return Category{}, err
	}
	c.Touch(l.Now())
	if err := l.Repo.CreateCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

// editable loads a category the owner may mutate.
func (l *Ledger) editable(ctx context.Context, owner, id string) (Category, error) {
	c, err := l.Repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if c.IsSystem {
		return Category{}, ErrSystemCategory
	}
	if err := CheckOwner(owner, c.OwnerID); err != nil {
		return Category{}, err
	}
	return c, nil
}

// UpdateCategory applies mutate to an owned category.
func (l *Ledger) UpdateCategory(ctx context.Context, owner, id string, mutate func(*Category) error) (Category, error) {
	var out Category
	err := l.InTx(ctx, func(tl *Ledger) error {
		current, err := tl.editable(ctx, owner, id)
		if err != nil {
			return err
		}
		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		normalizeRef(&next.ParentID)
		next.ID, next.OwnerID, next.CreatedAt, next.IsSystem = current.ID, current.OwnerID, current.CreatedAt, false
		if next.IsDeleted() {
			return &NotFoundError{Kind: "category", ID: id}
		}
		if err := validateCategory(next); err != nil {
			return err
		}
		if err := tl.checkParent(ctx, owner, next); err != nil {
			return err
		}
		next.Touch(tl.Now())
		if err := tl.Repo.UpdateCategory(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// DeleteCategory tombstones an owned category. Transactions keep their
// category reference.
func (l *Ledger) DeleteCategory(ctx context.Context, owner, id string) error {
	c, err := l.editable(ctx, owner, id)
	if err != nil {
		return err
	}
	if c.IsDeleted() {
		return nil
	}
	c.MarkDeleted(l.Now())
	return l.Repo.UpdateCategory(ctx, c)
}

// GetCategory returns a live category visible to owner.
func (l *Ledger) GetCategory(ctx context.Context, owner, id string) (Category, error) {
	c, err := l.Repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if !c.VisibleTo(owner) {
		return Category{}, ErrForbidden
	}
	if c.IsDeleted() {
		return Category{}, &NotFoundError{Kind: "category", ID: id}
	}
	return c, nil
}

// ListCategories returns live categories visible to owner, optionally by type.
func (l *Ledger) ListCategories(ctx context.Context, owner string, typ CategoryType) ([]Category, error) {
	return l.Repo.ListCategories(ctx, CategoryFilter{OwnerID: owner, Type: typ})
}

// categoryRef checks that id names a live category visible to owner.
func (l *Ledger) categoryRef(ctx context.Context, owner, field, id string) (Category, error) {
	c, err := l.Repo.GetCategory(ctx, id)
	if IsNotFound(err) {
		return Category{}, Invalid(field, "category not found")
	}
	if err != nil {
		return Category{}, err
	}
	if !c.VisibleTo(owner) {
		return Category{}, ErrForbidden
	}
	if c.IsDeleted() {
		return Category{}, Invalid(field, "category is deleted")
	}
	return c, nil
}
