package recurring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// SCHEDULER - Persistence-backed recurring operations
// =============================================================================

// Scheduler manages recurring templates and turns due ones into transactions
// through the ledger, so every generated transaction reconciles its account.
type Scheduler struct {
	Ledger *ledger.Ledger
}

// NewScheduler creates a scheduler over l.
func NewScheduler(l *ledger.Ledger) *Scheduler {
	return &Scheduler{Ledger: l}
}

// Result reports one schedule processed by a sweep.
type Result struct {
	RecurringID   string `json:"recurring_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Report is the outcome of ProcessDue. A failed item does not stop the sweep.
type Report struct {
	Generated []Result `json:"generated"`
	Failed    []Result `json:"failed"`
}

func normalize(r *ledger.RecurringTransaction) {
	if r.CategoryID != nil && *r.CategoryID == "" {
		r.CategoryID = nil
	}
	if r.NextDueDate.IsZero() {
		r.NextDueDate = r.StartDate
	}
}

func (s *Scheduler) checkRefs(ctx context.Context, l *ledger.Ledger, owner string, r ledger.RecurringTransaction) error {
	if err := l.RequireAccount(ctx, owner, "account_id", r.AccountID); err != nil {
		return err
	}
	if r.CategoryID != nil {
		return l.RequireCategory(ctx, owner, "category_id", *r.CategoryID, ledger.CategoryType(r.Type))
	}
	return nil
}

// Create stores a new recurring template for owner. next_due_date defaults
// to start_date.
func (s *Scheduler) Create(ctx context.Context, owner string, r ledger.RecurringTransaction) (ledger.RecurringTransaction, error) {
	normalize(&r)
	if r.ID == "" {
		r.ID = ledger.NewID()
	}
	r.OwnerID = owner
	r.DeletedAt = nil
	r.CreatedAt = time.Time{}
	if err := Validate(r); err != nil {
		return ledger.RecurringTransaction{}, err
	}
	if err := s.checkRefs(ctx, s.Ledger, owner, r); err != nil {
		return ledger.RecurringTransaction{}, err
	}
	r.Touch(s.Ledger.Now())
	if err := s.Ledger.Repo.CreateRecurring(ctx, r); err != nil {
		return ledger.RecurringTransaction{}, err
	}
	return r, nil
}

// Update applies mutate to an owned template.
func (s *Scheduler) Update(ctx context.Context, owner, id string, mutate func(*ledger.RecurringTransaction) error) (ledger.RecurringTransaction, error) {
	var out ledger.RecurringTransaction
	err := s.Ledger.InTx(ctx, func(tl *ledger.Ledger) error {
		current, err := tl.Repo.GetRecurring(ctx, id)
		if err != nil {
			return err
		}
		if err := ledger.CheckOwner(owner, current.OwnerID); err != nil {
			return err
		}
		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		normalize(&next)
		next.ID, next.OwnerID, next.CreatedAt = current.ID, current.OwnerID, current.CreatedAt
		if next.IsDeleted() {
			return &ledger.NotFoundError{Kind: "recurring transaction", ID: id}
		}
		if err := Validate(next); err != nil {
			return err
		}
		if err := s.checkRefs(ctx, tl, owner, next); err != nil {
			return err
		}
		next.Touch(tl.Now())
		if err := tl.Repo.UpdateRecurring(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// Delete tombstones an owned template. Already generated transactions stay.
func (s *Scheduler) Delete(ctx context.Context, owner, id string) error {
	r, err := s.Ledger.Repo.GetRecurring(ctx, id)
	if err != nil {
		return err
	}
	if err := ledger.CheckOwner(owner, r.OwnerID); err != nil {
		return err
	}
	if r.IsDeleted() {
		return nil
	}
	r.MarkDeleted(s.Ledger.Now())
	return s.Ledger.Repo.UpdateRecurring(ctx, r)
}

// Get returns a live template of owner.
func (s *Scheduler) Get(ctx context.Context, owner, id string) (ledger.RecurringTransaction, error) {
	r, err := s.Ledger.Repo.GetRecurring(ctx, id)
	if err != nil {
		return ledger.RecurringTransaction{}, err
	}
	if err := ledger.CheckOwner(owner, r.OwnerID); err != nil {
		return ledger.RecurringTransaction{}, err
	}
	if r.IsDeleted() {
		return ledger.RecurringTransaction{}, &ledger.NotFoundError{Kind: "recurring transaction", ID: id}
	}
	return r, nil
}

// List returns owner's live templates by next due date.
func (s *Scheduler) List(ctx context.Context, owner string, activeOnly bool) ([]ledger.RecurringTransaction, error) {
	return s.Ledger.Repo.ListRecurring(ctx, ledger.RecurringFilter{OwnerID: owner, ActiveOnly: activeOnly})
}

// Due returns owner's templates due today.
func (s *Scheduler) Due(ctx context.Context, owner string) ([]ledger.RecurringTransaction, error) {
	today := s.Ledger.Today()
	return s.Ledger.Repo.ListRecurring(ctx, ledger.RecurringFilter{OwnerID: owner, ActiveOnly: true, DueBy: &today})
}

// =============================================================================
// GENERATION
// =============================================================================

// generateAndAdvance persists the transaction for r's due date and advances r.
// Must run on a transaction-bound ledger.
func generateAndAdvance(ctx context.Context, tl *ledger.Ledger, r ledger.RecurringTransaction) (ledger.Transaction, ledger.RecurringTransaction, error) {
	tx, err := tl.CreateTransaction(ctx, r.OwnerID, Generate(r))
	if err != nil {
		return ledger.Transaction{}, ledger.RecurringTransaction{}, fmt.Errorf("generate from %s: %w", r.ID, err)
	}
	Advance(&r)
	r.Touch(tl.Now())
	if err := tl.Repo.UpdateRecurring(ctx, r); err != nil {
		return ledger.Transaction{}, ledger.RecurringTransaction{}, fmt.Errorf("advance %s: %w", r.ID, err)
	}
	return tx, r, nil
}

// GenerateNow generates the transaction for the current due date of an
// active template, whether or not it is due yet, and advances it.
func (s *Scheduler) GenerateNow(ctx context.Context, owner, id string) (ledger.Transaction, ledger.RecurringTransaction, error) {
	var (
		tx  ledger.Transaction
		out ledger.RecurringTransaction
	)
	err := s.Ledger.InTx(ctx, func(tl *ledger.Ledger) error {
		r, err := tl.Repo.GetRecurring(ctx, id)
		if err != nil {
			return err
		}
		if err := ledger.CheckOwner(owner, r.OwnerID); err != nil {
			return err
		}
		if r.IsDeleted() {
			return &ledger.NotFoundError{Kind: "recurring transaction", ID: id}
		}
		if !r.IsActive {
			return ledger.Invalid("is_active", "recurring transaction is inactive")
		}
		tx, out, err = generateAndAdvance(ctx, tl, r)
		return err
	})
	return tx, out, err
}

// ProcessDue generates one transaction for every active template of owner
// that is due today. Each template runs in its own transaction: a failure is
// reported and the sweep continues.
func (s *Scheduler) ProcessDue(ctx context.Context, owner string) (Report, error) {
	due, err := s.Due(ctx, owner)
	if err != nil {
		return Report{}, err
	}

	report := Report{Generated: []Result{}, Failed: []Result{}}
	today := s.Ledger.Today()
	for _, candidate := range due {
		var txID string
		err := s.Ledger.InTx(ctx, func(tl *ledger.Ledger) error {
			// Reload: a concurrent sweep may already have advanced it.
			r, err := tl.Repo.GetRecurring(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !IsDue(r, today) {
				return nil
			}
			tx, _, err := generateAndAdvance(ctx, tl, r)
			txID = tx.ID
			return err
		})
		if err != nil {
			log.Printf("[Recurring] Failed to process %s for %s: %v", candidate.ID, owner, err)
			report.Failed = append(report.Failed, Result{RecurringID: candidate.ID, Error: err.Error()})
			continue
		}
		if txID != "" {
			report.Generated = append(report.Generated, Result{RecurringID: candidate.ID, TransactionID: txID})
		}
	}
	return report, nil
}

// ProcessAllDue runs ProcessDue for every owner with a due template.
func (s *Scheduler) ProcessAllDue(ctx context.Context) (map[string]Report, error) {
	owners, err := s.Ledger.Repo.OwnersWithDueRecurring(ctx, s.Ledger.Today())
	if err != nil {
		return nil, err
	}
	reports := make(map[string]Report, len(owners))
	for _, owner := range owners {
		report, err := s.ProcessDue(ctx, owner)
		if err != nil {
			log.Printf("[Recurring] Failed to sweep %s: %v", owner, err)
			continue
		}
		reports[owner] = report
	}
	return reports, nil
}
