/*
Package ledger provides the personal-finance ledger: accounts, categories,
transactions, debts and goals, plus the balance reconciliation engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Meta: id + timestamps + tombstone shared by every synced record
  - Account: cached balance derived from its transactions
  - Category: owned or shared (system) income/expense classification
  - Transaction: dated income, expense or transfer
  - RecurringTransaction, BudgetSettings, BudgetCycle: scheduling and budgeting state
  - Debt, Goal: payoff and savings trackers

AMOUNTS:
  Every amount is an int64 in minor currency units. Transaction amounts are
  always positive; the sign comes from the transaction type.

OWNERSHIP:
  Every record except shared categories belongs to one owner. Stores return
  records by id; the Ledger checks ownership and reports ErrForbidden on
  cross-owner access.

SEE ALSO:
  - balance.go: Balance reconciliation
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// META - Identity, timestamps and tombstone
// =============================================================================

// Meta is embedded in every persisted record.
type Meta struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewID returns a globally unique identifier for a new record.
func NewID() string { return uuid.NewString() }

// IsDeleted reports whether the record is tombstoned.
func (m Meta) IsDeleted() bool { return m.DeletedAt != nil }

// MarkDeleted tombstones the record.
func (m *Meta) MarkDeleted(at time.Time) {
	m.DeletedAt = &at
	m.UpdatedAt = at
}

// Restore clears the tombstone.
func (m *Meta) Restore(at time.Time) {
	m.DeletedAt = nil
	m.UpdatedAt = at
}

// Touch stamps a write.
func (m *Meta) Touch(at time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = at
	}
	m.UpdatedAt = at
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountCurrent    AccountType = "current"
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCash       AccountType = "cash"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCurrent, AccountChecking, AccountSavings, AccountCash, AccountCredit, AccountInvestment:
		return true
	}
	return false
}

// Account holds money. Balance is a cache of
// initial + income - expense - transfers out + transfers in.
type Account struct {
	Meta
	OwnerID        string      `json:"user_id"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	InitialBalance int64       `json:"initial_balance"`
	Balance        int64       `json:"balance"`
	Color          string      `json:"color,omitempty"`
	Icon           string      `json:"icon,omitempty"`
	IsDefault      bool        `json:"is_default"`
	OrderIndex     int         `json:"order_index"`
}

// =============================================================================
// CATEGORY
// =============================================================================

type CategoryType string

const (
	CategoryExpense CategoryType = "expense"
	CategoryIncome  CategoryType = "income"
)

func (t CategoryType) Valid() bool { return t == CategoryExpense || t == CategoryIncome }

// Category classifies transactions. OwnerID "" marks a shared category
// visible to every owner.
type Category struct {
	Meta
	OwnerID     string       `json:"user_id,omitempty"`
	Name        string       `json:"name"`
	Type        CategoryType `json:"type"`
	ParentID    *string      `json:"parent_id,omitempty"`
	BudgetLimit *int64       `json:"budget_limit,omitempty"`
	Color       string       `json:"color,omitempty"`
	Icon        string       `json:"icon,omitempty"`
	IsSystem    bool         `json:"is_system"`
}

// IsShared reports whether the category is visible to all owners.
func (c Category) IsShared() bool { return c.OwnerID == "" }

// VisibleTo reports whether owner may reference the category.
func (c Category) VisibleTo(owner string) bool { return c.IsShared() || c.OwnerID == owner }

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxIncome   TransactionType = "income"
	TxExpense  TransactionType = "expense"
	TxTransfer TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	return t == TxIncome || t == TxExpense || t == TxTransfer
}

// Transaction is a dated movement of money on one account, or between two
// accounts for transfers.
type Transaction struct {
	Meta
	OwnerID                string          `json:"user_id"`
	Amount                 int64           `json:"amount"`
	Type                   TransactionType `json:"type"`
	CategoryID             *string         `json:"category_id,omitempty"`
	AccountID              string          `json:"account_id"`
	TransferToAccountID    *string         `json:"transfer_to_account_id,omitempty"`
	Beneficiary            string          `json:"beneficiary,omitempty"`
	Description            string          `json:"description,omitempty"`
	Date                   Date            `json:"date"`
	RecurringTransactionID *string         `json:"recurring_transaction_id,omitempty"`
}

// AffectedAccounts lists the accounts whose balance depends on tx.
func (tx Transaction) AffectedAccounts() []string {
	ids := []string{tx.AccountID}
	if tx.Type == TxTransfer && tx.TransferToAccountID != nil && *tx.TransferToAccountID != "" {
		ids = append(ids, *tx.TransferToAccountID)
	}
	return ids
}

// =============================================================================
// RECURRING TRANSACTION
// =============================================================================

type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqBiweekly  Frequency = "biweekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

// Label is the user-facing name of the frequency.
func (f Frequency) Label() string {
	switch f {
	case FreqDaily:
		return "Quotidien"
	case FreqWeekly:
		return "Hebdomadaire"
	case FreqBiweekly:
		return "Bimensuel"
	case FreqMonthly:
		return "Mensuel"
	case FreqQuarterly:
		return "Trimestriel"
	case FreqYearly:
		return "Annuel"
	}
	return string(f)
}

// RecurringTransaction is a template producing one Transaction per due date.
type RecurringTransaction struct {
	Meta
	OwnerID              string          `json:"user_id"`
	AccountID            string          `json:"account_id"`
	CategoryID           *string         `json:"category_id,omitempty"`
	Type                 TransactionType `json:"type"`
	Amount               int64           `json:"amount"`
	Beneficiary          string          `json:"beneficiary,omitempty"`
	Description          string          `json:"description,omitempty"`
	Frequency            Frequency       `json:"frequency"`
	DayOfMonth           *int            `json:"day_of_month,omitempty"`
	StartDate            Date            `json:"start_date"`
	EndDate              *Date           `json:"end_date,omitempty"`
	LastGeneratedDate    *Date           `json:"last_generated_date,omitempty"`
	NextDueDate          Date            `json:"next_due_date"`
	RemainingOccurrences *int            `json:"remaining_occurrences,omitempty"`
	IsActive             bool            `json:"is_active"`
}

// =============================================================================
// BUDGETING
// =============================================================================

// BudgetSettings configures cycle boundaries for one owner.
type BudgetSettings struct {
	OwnerID           string    `json:"user_id"`
	PreferredStartDay int       `json:"preferred_start_day"`
	ToleranceStartDay int       `json:"tolerance_start_day"`
	ToleranceEndDay   int       `json:"tolerance_end_day"`
	SalaryCategoryID  *string   `json:"salary_category_id,omitempty"`
	SalaryAccountID   *string   `json:"salary_account_id,omitempty"`
	AutoDetectSalary  bool      `json:"auto_detect_salary"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultBudgetSettings applies when an owner never saved settings.
func DefaultBudgetSettings(owner string) BudgetSettings {
	return BudgetSettings{
		OwnerID:           owner,
		PreferredStartDay: 1,
		ToleranceStartDay: 1,
		ToleranceEndDay:   5,
	}
}

type CycleStatus string

const (
	CycleActive CycleStatus = "active"
	CycleClosed CycleStatus = "closed"
)

// BudgetCycle is a budgeting period. EndDate is nil while the cycle is active.
type BudgetCycle struct {
	Meta
	OwnerID              string      `json:"user_id"`
	StartDate            Date        `json:"start_date"`
	EndDate              *Date       `json:"end_date,omitempty"`
	PeriodName           string      `json:"period_name"`
	TotalBudget          int64       `json:"total_budget"`
	TotalSpent           int64       `json:"total_spent"`
	Status               CycleStatus `json:"status"`
	TriggerTransactionID *string     `json:"trigger_transaction_id,omitempty"`
}

// Remaining is budget minus spent; negative when overspent.
func (c BudgetCycle) Remaining() int64 { return c.TotalBudget - c.TotalSpent }

// =============================================================================
// DEBT
// =============================================================================

type DebtType string

const (
	DebtOwed   DebtType = "debt"   // the owner owes
	DebtCredit DebtType = "credit" // owed to the owner
)

type DebtStatus string

const (
	DebtActive    DebtStatus = "active"
	DebtPaid      DebtStatus = "paid"
	DebtCancelled DebtStatus = "cancelled"
)

type Debt struct {
	Meta
	OwnerID       string     `json:"user_id"`
	Name          string     `json:"name"`
	Type          DebtType   `json:"type"`
	InitialAmount int64      `json:"initial_amount"`
	CurrentAmount int64      `json:"current_amount"`
	DueDate       *Date      `json:"due_date,omitempty"`
	ContactName   string     `json:"contact_name,omitempty"`
	ContactPhone  string     `json:"contact_phone,omitempty"`
	ContactEmail  string     `json:"contact_email,omitempty"`
	Description   string     `json:"description,omitempty"`
	Status        DebtStatus `json:"status"`
}

// =============================================================================
// GOAL
// =============================================================================

type GoalType string

const (
	GoalSavings       GoalType = "savings"
	GoalDebt          GoalType = "debt"
	GoalInvestment    GoalType = "investment"
	GoalCustom        GoalType = "custom"
	GoalEmergencyFund GoalType = "emergency_fund"
)

func (t GoalType) Valid() bool {
	switch t {
	case GoalSavings, GoalDebt, GoalInvestment, GoalCustom, GoalEmergencyFund:
		return true
	}
	return false
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

type Goal struct {
	Meta
	OwnerID         string     `json:"user_id"`
	Name            string     `json:"name"`
	Type            GoalType   `json:"type"`
	TargetAmount    int64      `json:"target_amount"`
	CurrentAmount   int64      `json:"current_amount"`
	TargetDate      *Date      `json:"target_date,omitempty"`
	LinkedAccountID *string    `json:"linked_account_id,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          GoalStatus `json:"status"`
}
