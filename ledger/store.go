/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between the finance rules and the database. Every
  record is soft-deletable: delete sets DeletedAt, restore clears it, and
  nothing is physically removed, so the sync engine can ship tombstones.

KEY INTERFACES:
  AccountStore, CategoryStore, TransactionStore, RecurringStore,
  BudgetStore, DebtStore, GoalStore: per-record CRUD + filtered listing
  Repository: all of the above plus WithTx
  Store:      a Repository that can be closed

GETTERS:
  Get* returns the record by id regardless of owner or tombstone, or an
  error wrapping ErrNotFound. Owner checks live in the services, so a
  cross-owner id is reported as ErrForbidden rather than silently missing.

TRANSACTIONS:
  WithTx runs fn against a transaction-bound Repository. Calling WithTx on
  that Repository nests (a savepoint in SQL stores): a failing inner fn rolls
  back only its own writes. The sync engine relies on this for per-item
  isolation inside one batch transaction.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql

SEE ALSO:
  - balance.go: uses SumTransactions
  - syncer: uses UpdatedSince filters
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// AccountFilter selects an owner's accounts.
type AccountFilter struct {
	OwnerID        string
	IncludeDeleted bool
	UpdatedSince   *time.Time
}

// CategoryFilter selects categories visible to an owner (owned + shared).
type CategoryFilter struct {
	OwnerID        string
	Type           CategoryType
	IncludeDeleted bool
	UpdatedSince   *time.Time
	OwnedOnly      bool
	ParentID       string
}

// TransactionFilter selects transactions. Zero fields do not filter.
// Deleted transactions are excluded unless IncludeDeleted is set.
type TransactionFilter struct {
	OwnerID             string
	AccountID           string
	TransferToAccountID string
	CategoryID          string
	Type                TransactionType
	From                *Date
	To                  *Date
	IncludeDeleted      bool
	UpdatedSince        *time.Time
	Limit               int
}

// RecurringFilter selects recurring transactions.
type RecurringFilter struct {
	OwnerID        string
	ActiveOnly     bool
	DueBy          *Date
	IncludeDeleted bool
	UpdatedSince   *time.Time
}

// OwnedFilter selects an owner's debts, goals or cycles.
type OwnedFilter struct {
	OwnerID        string
	IncludeDeleted bool
	UpdatedSince   *time.Time
}

// =============================================================================
// STORES
// =============================================================================

type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) error
	UpdateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error)

	// ClearDefaultAccounts unsets is_default on the owner's accounts except keepID.
	ClearDefaultAccounts(ctx context.Context, ownerID, keepID string, at time.Time) error
}

type CategoryStore interface {
	CreateCategory(ctx context.Context, c Category) error
	UpdateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context, f CategoryFilter) ([]Category, error)

	// SumBudgetLimits sums budget_limit over live categories of the given type
	// owned by ownerID or shared.
	SumBudgetLimits(ctx context.Context, ownerID string, typ CategoryType) (int64, error)
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx Transaction) error
	UpdateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// SumTransactions returns the sum of amount over matching transactions.
	SumTransactions(ctx context.Context, f TransactionFilter) (int64, error)
}

type RecurringStore interface {
	CreateRecurring(ctx context.Context, r RecurringTransaction) error
	UpdateRecurring(ctx context.Context, r RecurringTransaction) error
	GetRecurring(ctx context.Context, id string) (RecurringTransaction, error)
	ListRecurring(ctx context.Context, f RecurringFilter) ([]RecurringTransaction, error)

	// OwnersWithDueRecurring lists owners having an active schedule due by day.
	OwnersWithDueRecurring(ctx context.Context, day Date) ([]string, error)
}

type BudgetStore interface {
	// GetBudgetSettings returns ErrNotFound when the owner never saved settings.
	GetBudgetSettings(ctx context.Context, ownerID string) (BudgetSettings, error)
	SaveBudgetSettings(ctx context.Context, s BudgetSettings) error

	CreateCycle(ctx context.Context, c BudgetCycle) error
	UpdateCycle(ctx context.Context, c BudgetCycle) error
	GetCycle(ctx context.Context, id string) (BudgetCycle, error)
	// ActiveCycle returns ErrNoActiveCycle when none is active.
	ActiveCycle(ctx context.Context, ownerID string) (BudgetCycle, error)
	ListCycles(ctx context.Context, f OwnedFilter) ([]BudgetCycle, error)
}

type DebtStore interface {
	CreateDebt(ctx context.Context, d Debt) error
	UpdateDebt(ctx context.Context, d Debt) error
	GetDebt(ctx context.Context, id string) (Debt, error)
	ListDebts(ctx context.Context, f OwnedFilter) ([]Debt, error)
}

type GoalStore interface {
	CreateGoal(ctx context.Context, g Goal) error
	UpdateGoal(ctx context.Context, g Goal) error
	GetGoal(ctx context.Context, id string) (Goal, error)
	ListGoals(ctx context.Context, f OwnedFilter) ([]Goal, error)
}

// =============================================================================
// REPOSITORY - All stores plus transactions
// =============================================================================

// Repository is the full persistence surface used by the services.
type Repository interface {
	AccountStore
	CategoryStore
	TransactionStore
	RecurringStore
	BudgetStore
	DebtStore
	GoalStore

	// WithTx executes fn within a transaction (or a savepoint when already
	// inside one). If fn returns an error its writes are rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// Store is a Repository owning a connection.
type Store interface {
	Repository
	Close() error
}
