package ledger

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER - Application service over the Repository
// =============================================================================

// Ledger runs every write to accounts, categories, transactions, debts and
// goals. Writes that change the transaction set reconcile the affected
// account balances before returning, inside the same store transaction.
//
// Updates take a mutation callback: the service loads the current record,
// checks ownership, lets the caller edit a copy, then re-validates and saves.
// Immutable fields (id, owner, created_at, cached balance) are restored after
// the callback runs.
type Ledger struct {
	Repo       Repository
	Clock      Clock
	Reconciler BalanceReconciler
}

// New creates a ledger service.
func New(repo Repository, clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{Repo: repo, Clock: clock}
}

// Bind returns a copy of the service operating on repo, typically a
// transaction-bound Repository handed out by WithTx.
func (l *Ledger) Bind(repo Repository) *Ledger {
	c := *l
	c.Repo = repo
	return &c
}

// InTx runs fn with a ledger bound to a transaction (a savepoint when the
// ledger is already bound to one).
func (l *Ledger) InTx(ctx context.Context, fn func(*Ledger) error) error {
	return l.Repo.WithTx(ctx, func(r Repository) error {
		return fn(l.Bind(r))
	})
}

// Now is the service clock's current instant.
func (l *Ledger) Now() time.Time { return l.Clock.Now() }

// Today is the service clock's current day.
func (l *Ledger) Today() Date { return Today(l.Clock) }

// normalizeRef turns a pointer to "" into nil so optional references compare cleanly.
func normalizeRef(p **string) {
	if *p != nil && **p == "" {
		*p = nil
	}
}

// RequireAccount checks that id names a live account of owner. Failures are
// reported against field.
func (l *Ledger) RequireAccount(ctx context.Context, owner, field, id string) error {
	return l.accountRef(ctx, owner, field, id)
}

// RequireCategory checks that id names a live category visible to owner and,
// when typ is set, of that type.
func (l *Ledger) RequireCategory(ctx context.Context, owner, field, id string, typ CategoryType) error {
	c, err := l.categoryRef(ctx, owner, field, id)
	if err != nil {
		return err
	}
	if typ != "" && c.Type != typ {
		return Invalid(field, "category must be of type "+string(typ))
	}
	return nil
}
