/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Request bodies are decoupled from the domain records so clients can only
  set editable fields. Ids, owner, timestamps, tombstones and cached
  balances are always server-assigned.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types that extend a domain record
  - *Response: Wrappers

PUT SEMANTICS:
  A PUT body replaces every editable field of the record. Optional
  references left out of the body are cleared.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain records (their JSON form is the response shape)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/recurring"
)

// =============================================================================
// ACCOUNTS / CATEGORIES
// =============================================================================

type AccountRequest struct {
	Name           string             `json:"name"`
	Type           ledger.AccountType `json:"type"`
	InitialBalance int64              `json:"initial_balance"`
	Color          string             `json:"color"`
	Icon           string             `json:"icon"`
	IsDefault      bool               `json:"is_default"`
	OrderIndex     int                `json:"order_index"`
}

func (req AccountRequest) apply(a *ledger.Account) {
	a.Name = req.Name
	if req.Type != "" {
		a.Type = req.Type
	}
	a.InitialBalance = req.InitialBalance
	a.Color = req.Color
	a.Icon = req.Icon
	a.IsDefault = req.IsDefault
	a.OrderIndex = req.OrderIndex
}

type CategoryRequest struct {
	Name        string              `json:"name"`
	Type        ledger.CategoryType `json:"type"`
	ParentID    *string             `json:"parent_id"`
	BudgetLimit *int64              `json:"budget_limit"`
	Color       string              `json:"color"`
	Icon        string              `json:"icon"`
}

func (req CategoryRequest) apply(c *ledger.Category) {
	c.Name = req.Name
	c.Type = req.Type
	c.ParentID = req.ParentID
	c.BudgetLimit = req.BudgetLimit
	c.Color = req.Color
	c.Icon = req.Icon
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionRequest struct {
	Amount              int64                  `json:"amount"`
	Type                ledger.TransactionType `json:"type"`
	CategoryID          *string                `json:"category_id"`
	AccountID           string                 `json:"account_id"`
	TransferToAccountID *string                `json:"transfer_to_account_id"`
	Beneficiary         string                 `json:"beneficiary"`
	Description         string                 `json:"description"`
	Date                ledger.Date            `json:"date"`
}

func (req TransactionRequest) apply(tx *ledger.Transaction) {
	tx.Amount = req.Amount
	tx.Type = req.Type
	tx.CategoryID = req.CategoryID
	tx.AccountID = req.AccountID
	tx.TransferToAccountID = req.TransferToAccountID
	tx.Beneficiary = req.Beneficiary
	tx.Description = req.Description
	tx.Date = req.Date
}

// TransactionResponse reports a created transaction and, when it was a
// salary, the budget cycle it started.
type TransactionResponse struct {
	ledger.Transaction
	StartedCycle *ledger.BudgetCycle `json:"started_cycle,omitempty"`
}

// =============================================================================
// RECURRING
// =============================================================================

// RecurringRequest edits a template. NextDueDate and IsActive keep their
// current values when omitted; a new template is active and first due on
// its start date.
type RecurringRequest struct {
	AccountID            string                 `json:"account_id"`
	CategoryID           *string                `json:"category_id"`
	Type                 ledger.TransactionType `json:"type"`
	Amount               int64                  `json:"amount"`
	Beneficiary          string                 `json:"beneficiary"`
	Description          string                 `json:"description"`
	Frequency            ledger.Frequency       `json:"frequency"`
	DayOfMonth           *int                   `json:"day_of_month"`
	StartDate            ledger.Date            `json:"start_date"`
	EndDate              *ledger.Date           `json:"end_date"`
	NextDueDate          *ledger.Date           `json:"next_due_date"`
	RemainingOccurrences *int                   `json:"remaining_occurrences"`
	IsActive             *bool                  `json:"is_active"`
}

func (req RecurringRequest) apply(r *ledger.RecurringTransaction) {
	r.AccountID = req.AccountID
	r.CategoryID = req.CategoryID
	r.Type = req.Type
	r.Amount = req.Amount
	r.Beneficiary = req.Beneficiary
	r.Description = req.Description
	r.Frequency = req.Frequency
	r.DayOfMonth = req.DayOfMonth
	r.StartDate = req.StartDate
	r.EndDate = req.EndDate
	r.RemainingOccurrences = req.RemainingOccurrences
	if req.NextDueDate != nil {
		r.NextDueDate = *req.NextDueDate
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
}

// ProcessResponse is the outcome of a manual sweep. NextSweep is set while
// the periodic sweep runs.
type ProcessResponse struct {
	recurring.Report
	NextSweep *time.Time `json:"next_sweep,omitempty"`
}

// GenerateResponse is the outcome of an explicit generation.
type GenerateResponse struct {
	Transaction ledger.Transaction          `json:"transaction"`
	Recurring   ledger.RecurringTransaction `json:"recurring"`
}

// =============================================================================
// BUDGET
// =============================================================================

type BudgetSettingsRequest struct {
	PreferredStartDay int     `json:"preferred_start_day"`
	ToleranceStartDay int     `json:"tolerance_start_day"`
	ToleranceEndDay   int     `json:"tolerance_end_day"`
	SalaryCategoryID  *string `json:"salary_category_id"`
	SalaryAccountID   *string `json:"salary_account_id"`
	AutoDetectSalary  bool    `json:"auto_detect_salary"`
}

func (req BudgetSettingsRequest) settings(owner string) ledger.BudgetSettings {
	return ledger.BudgetSettings{
		OwnerID:           owner,
		PreferredStartDay: req.PreferredStartDay,
		ToleranceStartDay: req.ToleranceStartDay,
		ToleranceEndDay:   req.ToleranceEndDay,
		SalaryCategoryID:  req.SalaryCategoryID,
		SalaryAccountID:   req.SalaryAccountID,
		AutoDetectSalary:  req.AutoDetectSalary,
	}
}

// StartCycleRequest starts a cycle. StartDate defaults to today.
type StartCycleRequest struct {
	StartDate            *ledger.Date `json:"start_date"`
	TriggerTransactionID *string      `json:"trigger_transaction_id"`
}

// =============================================================================
// DEBTS / GOALS
// =============================================================================

type DebtRequest struct {
	Name          string            `json:"name"`
	Type          ledger.DebtType   `json:"type"`
	InitialAmount int64             `json:"initial_amount"`
	CurrentAmount *int64            `json:"current_amount"`
	DueDate       *ledger.Date      `json:"due_date"`
	ContactName   string            `json:"contact_name"`
	ContactPhone  string            `json:"contact_phone"`
	ContactEmail  string            `json:"contact_email"`
	Description   string            `json:"description"`
	Status        ledger.DebtStatus `json:"status"`
}

func (req DebtRequest) apply(d *ledger.Debt) {
	d.Name = req.Name
	if req.Type != "" {
		d.Type = req.Type
	}
	d.InitialAmount = req.InitialAmount
	if req.CurrentAmount != nil {
		d.CurrentAmount = *req.CurrentAmount
	}
	d.DueDate = req.DueDate
	d.ContactName = req.ContactName
	d.ContactPhone = req.ContactPhone
	d.ContactEmail = req.ContactEmail
	d.Description = req.Description
	if req.Status != "" {
		d.Status = req.Status
	}
}

type GoalRequest struct {
	Name            string            `json:"name"`
	Type            ledger.GoalType   `json:"type"`
	TargetAmount    int64             `json:"target_amount"`
	CurrentAmount   *int64            `json:"current_amount"`
	TargetDate      *ledger.Date      `json:"target_date"`
	LinkedAccountID *string           `json:"linked_account_id"`
	Description     string            `json:"description"`
	Status          ledger.GoalStatus `json:"status"`
}

func (req GoalRequest) apply(g *ledger.Goal) {
	g.Name = req.Name
	if req.Type != "" {
		g.Type = req.Type
	}
	g.TargetAmount = req.TargetAmount
	if req.CurrentAmount != nil {
		g.CurrentAmount = *req.CurrentAmount
	}
	g.TargetDate = req.TargetDate
	g.LinkedAccountID = req.LinkedAccountID
	g.Description = req.Description
	if req.Status != "" {
		g.Status = req.Status
	}
}

// GoalDTO adds computed progress to a goal.
type GoalDTO struct {
	ledger.Goal
	Progress  decimal.Decimal `json:"progress"`
	Remaining int64           `json:"remaining"`
}

func toGoalDTO(g ledger.Goal) GoalDTO {
	return GoalDTO{Goal: g, Progress: g.Progress(), Remaining: g.Remaining()}
}

// AmountRequest carries a debt payment or goal contribution.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
