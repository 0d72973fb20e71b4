/*
Package budget manages budget cycles: budgeting periods that need not align
with calendar months, typically running from one salary to the next.

PURPOSE:
  - Derive a default cycle from the owner's preferred start day
  - Start and close cycles, keeping at most one active per owner
  - Recompute the active cycle's budget and spending on read
  - Detect salary-like income that should roll the cycle over
  - Compute days remaining and the daily budget

PERIOD NAMING:
  A cycle starting after the 15th is named for the following month: a cycle
  starting on Jan 28 is "Février". Otherwise it is named for its own month.

FROZEN VS LIVE TOTALS:
  The active cycle's total_budget and total_spent are recomputed whenever it
  is read, so editing a category limit changes the current cycle's budget.
  Closing a cycle freezes its totals.

SEE ALSO:
  - manager.go: Persistence-backed operations
  - ledger/date.go: Clamped month arithmetic
*/
package budget

import (
	"fmt"
	"time"

	"github.com/warp/finance-engine/ledger"
)

var monthNames = [...]string{
	time.January:   "Janvier",
	time.February:  "Février",
	time.March:     "Mars",
	time.April:     "Avril",
	time.May:       "Mai",
	time.June:      "Juin",
	time.July:      "Juillet",
	time.August:    "Août",
	time.September: "Septembre",
	time.October:   "Octobre",
	time.November:  "Novembre",
	time.December:  "Décembre",
}

// MonthName returns the French name of m.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return m.String()
	}
	return monthNames[m]
}

// PeriodName labels a cycle starting on start, e.g. "Février 2026".
func PeriodName(start ledger.Date) string {
	named := start
	if start.Day() > 15 {
		named = start.WithDay(1).AddMonths(1)
	}
	return fmt.Sprintf("%s %d", MonthName(named.Month()), named.Year())
}

// DefaultStartDate is the start of the cycle containing today when the owner
// has none: this month on the preferred day when today has reached it,
// otherwise last month on that day. Days are clamped to the month's length.
func DefaultStartDate(today ledger.Date, preferredDay int) ledger.Date {
	if today.Day() >= preferredDay {
		return today.WithDay(preferredDay)
	}
	return today.WithDay(1).AddMonths(-1).WithDay(preferredDay)
}

// NextStartDate is the first theoretical cycle start strictly after today.
func NextStartDate(today ledger.Date, preferredDay int) ledger.Date {
	candidate := today.WithDay(preferredDay)
	if candidate.BeforeOrEqual(today) {
		candidate = today.WithDay(1).AddMonths(1).WithDay(preferredDay)
	}
	return candidate
}

// DaysRemaining counts calendar days from today to the next cycle start.
// A closed cycle has none.
func DaysRemaining(c ledger.BudgetCycle, today ledger.Date, preferredDay int) int {
	if c.EndDate != nil || c.Status == ledger.CycleClosed {
		return 0
	}
	return ledger.DaysBetween(today, NextStartDate(today, preferredDay))
}

// DailyBudget spreads what is left evenly over the remaining days, rounding
// down. Never negative; zero when no days remain.
func DailyBudget(c ledger.BudgetCycle, daysRemaining int) int64 {
	if daysRemaining <= 0 {
		return 0
	}
	left := c.Remaining()
	if left <= 0 {
		return 0
	}
	return left / int64(daysRemaining)
}

// InToleranceWindow reports whether day lies in [start, end]. A window with
// start > end wraps across the month end (e.g. 27..3).
func InToleranceWindow(day, start, end int) bool {
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}

// CheckSalaryTrigger reports whether tx looks like the salary that opens a
// new cycle. Advisory only: the caller decides whether to start one.
func CheckSalaryTrigger(s ledger.BudgetSettings, tx ledger.Transaction) bool {
	if !s.AutoDetectSalary || tx.Type != ledger.TxIncome || tx.IsDeleted() {
		return false
	}
	if !InToleranceWindow(tx.Date.Day(), s.ToleranceStartDay, s.ToleranceEndDay) {
		return false
	}
	if s.SalaryCategoryID != nil && (tx.CategoryID == nil || *tx.CategoryID != *s.SalaryCategoryID) {
		return false
	}
	if s.SalaryAccountID != nil && tx.AccountID != *s.SalaryAccountID {
		return false
	}
	return true
}
