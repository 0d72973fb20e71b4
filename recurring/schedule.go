/*
Package recurring generates transactions from recurring schedules.

STATE MACHINE (per RecurringTransaction):

	PENDING (next_due_date > today)
	   │ clock passes next_due_date
	   ▼
	DUE (next_due_date <= today)     ── computed by IsDue, never stored
	   │ Generate + Advance
	   ▼
	PENDING (advanced)  or  EXHAUSTED (is_active = false, dormant forever)

TWO STEPS:
  Generate builds the transaction for the current due date without touching
  the schedule. Advance moves the schedule forward. They are separate so the
  explicit "generate" endpoint and the batch sweep can each run and test
  them independently.

FREQUENCIES:
  daily +1 day, weekly +7, biweekly +14, monthly +1 month (snapped to
  day_of_month when set), quarterly +3 months, yearly +1 year. Month steps
  never overflow: Jan 31 + 1 month is Feb 28/29.

SEE ALSO:
  - scheduler.go: persistence-backed operations and the ProcessDue sweep
  - ledger/date.go: month arithmetic
*/
package recurring

import (
	"strings"

	"github.com/warp/finance-engine/ledger"
)

// Validate checks a recurring template. Recurring transfers are unsupported.
func Validate(r ledger.RecurringTransaction) error {
	var v ledger.Validator
	v.Check(r.Type == ledger.TxIncome || r.Type == ledger.TxExpense, "type", "must be income or expense")
	v.Check(r.Amount > 0, "amount", "must be a positive amount in minor units")
	v.Check(r.AccountID != "", "account_id", "is required")
	v.Check(r.Frequency.Valid(), "frequency", "must be one of daily, weekly, biweekly, monthly, quarterly, yearly")
	v.Check(r.DayOfMonth == nil || (*r.DayOfMonth >= 1 && *r.DayOfMonth <= 31), "day_of_month", "must be between 1 and 31")
	v.Check(!r.StartDate.IsZero(), "start_date", "is required")
	v.Check(!r.NextDueDate.IsZero(), "next_due_date", "is required")
	v.Check(r.EndDate == nil || r.StartDate.IsZero() || r.EndDate.AfterOrEqual(r.StartDate), "end_date", "must not be before start_date")
	v.Check(r.RemainingOccurrences == nil || *r.RemainingOccurrences >= 0, "remaining_occurrences", "must not be negative")
	v.Check(!r.IsActive || r.RemainingOccurrences == nil || *r.RemainingOccurrences >= 1,
		"remaining_occurrences", "an active schedule needs at least one occurrence left")
	return v.Err()
}

// IsDue reports whether r should generate a transaction on today.
func IsDue(r ledger.RecurringTransaction, today ledger.Date) bool {
	return r.IsActive && !r.IsDeleted() && !r.NextDueDate.IsZero() && r.NextDueDate.BeforeOrEqual(today)
}

// Description returns r's description, or one derived from its frequency.
func Description(r ledger.RecurringTransaction) string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	if b := strings.TrimSpace(r.Beneficiary); b != "" {
		return b + " (" + r.Frequency.Label() + ")"
	}
	return "Transaction récurrente (" + r.Frequency.Label() + ")"
}

// Generate builds the transaction for r's current due date. It does not
// assign an id nor advance the schedule.
func Generate(r ledger.RecurringTransaction) ledger.Transaction {
	id := r.ID
	tx := ledger.Transaction{
		OwnerID:                r.OwnerID,
		Amount:                 r.Amount,
		Type:                   r.Type,
		AccountID:              r.AccountID,
		Beneficiary:            r.Beneficiary,
		Description:            Description(r),
		Date:                   r.NextDueDate,
		RecurringTransactionID: &id,
	}
	if r.CategoryID != nil {
		c := *r.CategoryID
		tx.CategoryID = &c
	}
	return tx
}

// NextDate returns the due date following from under freq.
func NextDate(freq ledger.Frequency, from ledger.Date, dayOfMonth *int) ledger.Date {
	switch freq {
	case ledger.FreqDaily:
		return from.AddDays(1)
	case ledger.FreqWeekly:
		return from.AddDays(7)
	case ledger.FreqBiweekly:
		return from.AddDays(14)
	case ledger.FreqMonthly:
		next := from.AddMonths(1)
		if dayOfMonth != nil {
			next = next.WithDay(*dayOfMonth)
		}
		return next
	case ledger.FreqQuarterly:
		return from.AddMonths(3)
	case ledger.FreqYearly:
		return from.AddYears(1)
	}
	return from.AddMonths(1)
}

// Advance records the generation on the current due date and moves the
// schedule forward. Exhausted occurrences and a passed end date each
// deactivate the schedule independently.
func Advance(r *ledger.RecurringTransaction) {
	generated := r.NextDueDate
	r.LastGeneratedDate = &generated
	r.NextDueDate = NextDate(r.Frequency, generated, r.DayOfMonth)

	if r.RemainingOccurrences != nil {
		left := *r.RemainingOccurrences - 1
		if left < 0 {
			left = 0
		}
		r.RemainingOccurrences = &left
		if left <= 0 {
			r.IsActive = false
		}
	}
	if r.EndDate != nil && r.NextDueDate.After(*r.EndDate) {
		r.IsActive = false
	}
}
