package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/recurring"
)

// =============================================================================
// KIND HANDLERS
// =============================================================================

// handler applies changes for one entity kind.
type handler interface {
	name() string
	pull(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]Record, error)
	apply(ctx context.Context, l *ledger.Ledger, owner string, c Change, ids idMap) Result
}

// kind is a handler over records of type T, wired to the ledger services.
type kind[T any] struct {
	kindName string
	pushable bool

	blank  func() T
	meta   func(*T) *ledger.Meta
	owner  func(*T) string
	list   func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]T, error)
	get    func(ctx context.Context, l *ledger.Ledger, id string) (T, error)
	create func(ctx context.Context, l *ledger.Ledger, owner string, v T) (T, error)
	update func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*T) error) (T, error)
	remove func(ctx context.Context, l *ledger.Ledger, owner, id string) error
}

func (k *kind[T]) name() string { return k.kindName }

func (k *kind[T]) pull(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]Record, error) {
	items, err := k.list(ctx, l, owner, since)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", k.kindName, err)
	}
	out := make([]Record, 0, len(items))
	for i := range items {
		rec, err := k.record(&items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// record renders v for the wire with its tombstone flag.
func (k *kind[T]) record(v *T) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec["is_deleted"] = k.meta(v).IsDeleted()
	return rec, nil
}

func (k *kind[T]) apply(ctx context.Context, l *ledger.Ledger, owner string, c Change, ids idMap) Result {
	res := Result{LocalID: c.LocalID, ServerID: ids.resolve(c.ServerID), Type: k.kindName}
	if !k.pushable {
		return res.fail(fmt.Errorf("%s are read-only for sync", k.kindName))
	}

	switch c.Action {
	case ActionCreate:
		return k.applyCreate(ctx, l, owner, c, ids, res)
	case ActionUpdate:
		return k.applyUpdate(ctx, l, owner, c, ids, res)
	case ActionDelete:
		return k.applyDelete(ctx, l, owner, c, res)
	default:
		return res.fail(fmt.Errorf("unknown action %q", c.Action))
	}
}

func (k *kind[T]) applyCreate(ctx context.Context, l *ledger.Ledger, owner string, c Change, ids idMap, res Result) Result {
	data, err := payload(c.Data, ids)
	if err != nil {
		return res.fail(err)
	}
	v, err := merge(k.blank(), data)
	if err != nil {
		return res.fail(err)
	}
	created, err := k.create(ctx, l, owner, v)
	if err != nil {
		return res.fail(err)
	}
	id := k.meta(&created).ID
	if c.LocalID != "" {
		ids[c.LocalID] = id
	}
	res.ServerID = id
	return res.succeed(OutcomeCreated)
}

func (k *kind[T]) applyUpdate(ctx context.Context, l *ledger.Ledger, owner string, c Change, ids idMap, res Result) Result {
	if res.ServerID == "" {
		return res.fail(ledger.Invalid("server_id", "is required for update"))
	}
	if c.UpdatedAt == nil {
		return res.fail(ledger.Invalid("updated_at", "is required for update"))
	}
	current, err := k.get(ctx, l, res.ServerID)
	if err != nil {
		return res.fail(err)
	}
	if err := ledger.CheckOwner(owner, k.owner(&current)); err != nil {
		return res.fail(err)
	}
	if k.meta(&current).UpdatedAt.After(*c.UpdatedAt) {
		return k.conflict(&current, res)
	}

	data, err := payload(c.Data, ids)
	if err != nil {
		return res.fail(err)
	}
	_, err = k.update(ctx, l, owner, res.ServerID, func(v *T) error {
		merged, err := merge(*v, data)
		if err != nil {
			return err
		}
		// An update resurrects a tombstoned record.
		k.meta(&merged).DeletedAt = nil
		*v = merged
		return nil
	})
	if err != nil {
		return res.fail(err)
	}
	return res.succeed(OutcomeUpdated)
}

func (k *kind[T]) applyDelete(ctx context.Context, l *ledger.Ledger, owner string, c Change, res Result) Result {
	if res.ServerID == "" {
		return res.fail(ledger.Invalid("server_id", "is required for delete"))
	}
	current, err := k.get(ctx, l, res.ServerID)
	if ledger.IsNotFound(err) {
		return res.succeed(OutcomeAlreadyDeleted)
	}
	if err != nil {
		return res.fail(err)
	}
	if err := ledger.CheckOwner(owner, k.owner(&current)); err != nil {
		return res.fail(err)
	}
	if k.meta(&current).IsDeleted() {
		return res.succeed(OutcomeAlreadyDeleted)
	}
	if c.UpdatedAt == nil {
		return res.fail(ledger.Invalid("updated_at", "is required for delete"))
	}
	if k.meta(&current).UpdatedAt.After(*c.UpdatedAt) {
		return k.conflict(&current, res)
	}
	if err := k.remove(ctx, l, owner, res.ServerID); err != nil {
		return res.fail(err)
	}
	return res.succeed(OutcomeDeleted)
}

func (k *kind[T]) conflict(current *T, res Result) Result {
	rec, err := k.record(current)
	if err != nil {
		return res.fail(err)
	}
	res.Status = StatusConflict
	res.Message = "server copy is newer"
	res.ServerData = rec
	return res
}

func (r Result) succeed(outcome string) Result {
	r.Status = StatusSuccess
	r.Action = outcome
	return r
}

func (r Result) fail(err error) Result {
	r.Status = StatusError
	r.Message = err.Error()
	return r
}

// =============================================================================
// PAYLOADS
// =============================================================================

// protectedFields are assigned by the server and ignored in client payloads.
var protectedFields = map[string]bool{
	"id":         true,
	"user_id":    true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
	"is_deleted": true,
	"balance":    true,
	"is_system":  true,
}

// refFields may hold a local id created earlier in the same batch.
var refFields = []string{
	"account_id",
	"transfer_to_account_id",
	"category_id",
	"parent_id",
	"linked_account_id",
	"recurring_transaction_id",
}

// idMap maps client local ids to server ids within one push.
type idMap map[string]string

func (m idMap) resolve(id string) string {
	if sid, ok := m[id]; ok {
		return sid
	}
	return id
}

var errBadPayload = errors.New("data must be a JSON object")

// payload decodes a change's data, drops protected fields and remaps local ids.
func payload(raw json.RawMessage, ids idMap) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, ledger.Invalid("data", errBadPayload.Error())
		}
	}
	for k := range data {
		if protectedFields[k] {
			delete(data, k)
		}
	}
	for _, f := range refFields {
		if s, ok := data[f].(string); ok {
			data[f] = ids.resolve(s)
		}
	}
	return data, nil
}

// merge overlays data onto base through their JSON form.
func merge[T any](base T, data map[string]any) (T, error) {
	var zero T
	raw, err := json.Marshal(base)
	if err != nil {
		return zero, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, err
	}
	for k, v := range data {
		fields[k] = v
	}
	if raw, err = json.Marshal(fields); err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, ledger.Invalid("data", err.Error())
	}
	return out, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

func accountsKind() handler {
	return &kind[ledger.Account]{
		kindName: "accounts",
		pushable: true,
		blank:    func() ledger.Account { return ledger.Account{Type: ledger.AccountCurrent} },
		meta:     func(a *ledger.Account) *ledger.Meta { return &a.Meta },
		owner:    func(a *ledger.Account) string { return a.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.Account, error) {
			return l.Repo.ListAccounts(ctx, ledger.AccountFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.Account, error) {
			return l.Repo.GetAccount(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, a ledger.Account) (ledger.Account, error) {
			return l.CreateAccount(ctx, owner, a)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.Account) error) (ledger.Account, error) {
			return l.UpdateAccount(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return l.DeleteAccount(ctx, owner, id)
		},
	}
}

func categoriesKind() handler {
	return &kind[ledger.Category]{
		kindName: "categories",
		pushable: true,
		blank:    func() ledger.Category { return ledger.Category{Type: ledger.CategoryExpense} },
		meta:     func(c *ledger.Category) *ledger.Meta { return &c.Meta },
		owner:    func(c *ledger.Category) string { return c.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.Category, error) {
			return l.Repo.ListCategories(ctx, ledger.CategoryFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.Category, error) {
			return l.Repo.GetCategory(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, c ledger.Category) (ledger.Category, error) {
			return l.CreateCategory(ctx, owner, c)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.Category) error) (ledger.Category, error) {
			return l.UpdateCategory(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return l.DeleteCategory(ctx, owner, id)
		},
	}
}

func transactionsKind() handler {
	return &kind[ledger.Transaction]{
		kindName: "transactions",
		pushable: true,
		blank:    func() ledger.Transaction { return ledger.Transaction{} },
		meta:     func(tx *ledger.Transaction) *ledger.Meta { return &tx.Meta },
		owner:    func(tx *ledger.Transaction) string { return tx.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.Transaction, error) {
			return l.Repo.ListTransactions(ctx, ledger.TransactionFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.Transaction, error) {
			return l.Repo.GetTransaction(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, tx ledger.Transaction) (ledger.Transaction, error) {
			return l.CreateTransaction(ctx, owner, tx)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.Transaction) error) (ledger.Transaction, error) {
			return l.UpdateTransaction(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return l.DeleteTransaction(ctx, owner, id)
		},
	}
}

func recurringKind() handler {
	return &kind[ledger.RecurringTransaction]{
		kindName: "recurring_transactions",
		pushable: true,
		blank:    func() ledger.RecurringTransaction { return ledger.RecurringTransaction{IsActive: true} },
		meta:     func(r *ledger.RecurringTransaction) *ledger.Meta { return &r.Meta },
		owner:    func(r *ledger.RecurringTransaction) string { return r.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.RecurringTransaction, error) {
			return l.Repo.ListRecurring(ctx, ledger.RecurringFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.RecurringTransaction, error) {
			return l.Repo.GetRecurring(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, r ledger.RecurringTransaction) (ledger.RecurringTransaction, error) {
			return recurring.NewScheduler(l).Create(ctx, owner, r)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.RecurringTransaction) error) (ledger.RecurringTransaction, error) {
			return recurring.NewScheduler(l).Update(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return recurring.NewScheduler(l).Delete(ctx, owner, id)
		},
	}
}

func debtsKind() handler {
	return &kind[ledger.Debt]{
		kindName: "debts",
		pushable: true,
		blank:    func() ledger.Debt { return ledger.Debt{Type: ledger.DebtOwed} },
		meta:     func(d *ledger.Debt) *ledger.Meta { return &d.Meta },
		owner:    func(d *ledger.Debt) string { return d.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.Debt, error) {
			return l.Repo.ListDebts(ctx, ledger.OwnedFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.Debt, error) {
			return l.Repo.GetDebt(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, d ledger.Debt) (ledger.Debt, error) {
			return l.CreateDebt(ctx, owner, d)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.Debt) error) (ledger.Debt, error) {
			return l.UpdateDebt(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return l.DeleteDebt(ctx, owner, id)
		},
	}
}

func goalsKind() handler {
	return &kind[ledger.Goal]{
		kindName: "goals",
		pushable: true,
		blank:    func() ledger.Goal { return ledger.Goal{} },
		meta:     func(g *ledger.Goal) *ledger.Meta { return &g.Meta },
		owner:    func(g *ledger.Goal) string { return g.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.Goal, error) {
			return l.Repo.ListGoals(ctx, ledger.OwnedFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
		get: func(ctx context.Context, l *ledger.Ledger, id string) (ledger.Goal, error) {
			return l.Repo.GetGoal(ctx, id)
		},
		create: func(ctx context.Context, l *ledger.Ledger, owner string, g ledger.Goal) (ledger.Goal, error) {
			return l.CreateGoal(ctx, owner, g)
		},
		update: func(ctx context.Context, l *ledger.Ledger, owner, id string, mutate func(*ledger.Goal) error) (ledger.Goal, error) {
			return l.UpdateGoal(ctx, owner, id, mutate)
		},
		remove: func(ctx context.Context, l *ledger.Ledger, owner, id string) error {
			return l.DeleteGoal(ctx, owner, id)
		},
	}
}

func cyclesKind() handler {
	return &kind[ledger.BudgetCycle]{
		kindName: "budget_cycles",
		meta:     func(c *ledger.BudgetCycle) *ledger.Meta { return &c.Meta },
		owner:    func(c *ledger.BudgetCycle) string { return c.OwnerID },
		list: func(ctx context.Context, l *ledger.Ledger, owner string, since *time.Time) ([]ledger.BudgetCycle, error) {
			return l.Repo.ListCycles(ctx, ledger.OwnedFilter{OwnerID: owner, IncludeDeleted: true, UpdatedSince: since})
		},
	}
}

// registry lists every kind in push dependency order.
func registry() []handler {
	return []handler{
		accountsKind(),
		categoriesKind(),
		transactionsKind(),
		recurringKind(),
		debtsKind(),
		goalsKind(),
		cyclesKind(),
	}
}
