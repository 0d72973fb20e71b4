package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
)

// DefaultMaxBatch bounds the number of changes in one push.
const DefaultMaxBatch = 500

// errItemFailed rolls back one change's savepoint without aborting the batch.
var errItemFailed = errors.New("sync item failed")

// Engine serves pulls and applies pushes for one store.
type Engine struct {
	Ledger   *ledger.Ledger
	MaxBatch int

	// Budget, when set, sees every income transaction a push creates, once
	// the batch has committed, the same way the HTTP create does.
	Budget *budget.Manager

	kinds map[string]handler
	order []handler
}

// NewEngine creates a sync engine over the ledger services.
func NewEngine(l *ledger.Ledger) *Engine {
	e := &Engine{Ledger: l, MaxBatch: DefaultMaxBatch, kinds: map[string]handler{}}
	for _, h := range registry() {
		e.kinds[h.name()] = h
		e.order = append(e.order, h)
	}
	return e
}

// Kinds lists the entity type names exchanged by the engine.
func (e *Engine) Kinds() []string {
	names := make([]string, 0, len(e.order))
	for _, h := range e.order {
		names = append(names, h.name())
	}
	return names
}

// =============================================================================
// PULL
// =============================================================================

// Pull returns every record of the owner updated after since, tombstones
// included. A zero since returns everything. The sync timestamp is taken
// before reading so writes racing the pull are seen again next time.
func (e *Engine) Pull(ctx context.Context, owner string, since time.Time) (PullResponse, error) {
	resp := PullResponse{
		Entities:      make(map[string][]Record, len(e.order)),
		SyncTimestamp: e.Ledger.Now(),
	}
	var after *time.Time
	if !since.IsZero() {
		after = &since
	}
	for _, h := range e.order {
		records, err := h.pull(ctx, e.Ledger, owner, after)
		if err != nil {
			return PullResponse{}, err
		}
		resp.Entities[h.name()] = records
	}
	return resp, nil
}

// =============================================================================
// PUSH
// =============================================================================

// Push applies changes in order and reports one result per change.
//
// Local ids assigned by creates are remapped for later changes in the same
// batch, so a client may create an account and a transaction on it together.
func (e *Engine) Push(ctx context.Context, owner string, changes []Change) (PushResponse, error) {
	if e.MaxBatch > 0 && len(changes) > e.MaxBatch {
		return PushResponse{}, ledger.Invalid("changes", fmt.Sprintf("at most %d changes per push", e.MaxBatch))
	}

	var results Results
	ids := idMap{}
	err := e.Ledger.InTx(ctx, func(tl *ledger.Ledger) error {
		for _, c := range changes {
			res, err := e.applyOne(ctx, tl, owner, c, ids)
			if err != nil {
				return err
			}
			results.add(res)
		}
		return nil
	})
	if err != nil {
		return PushResponse{}, fmt.Errorf("push: %w", err)
	}

	if len(results.Conflicts) > 0 || len(results.Errors) > 0 {
		log.Printf("[Sync] %s: %d processed, %d conflicts, %d errors",
			owner, len(results.Processed), len(results.Conflicts), len(results.Errors))
	}
	e.rollover(ctx, owner, results.Processed)
	return PushResponse{Results: results, SyncTimestamp: e.Ledger.Now()}, nil
}

// applyOne runs a change in its own savepoint. The returned error is a
// storage failure that must abort the batch.
func (e *Engine) applyOne(ctx context.Context, tl *ledger.Ledger, owner string, c Change, ids idMap) (Result, error) {
	h, ok := e.kinds[c.Type]
	if !ok {
		res := Result{LocalID: c.LocalID, ServerID: c.ServerID, Type: c.Type}
		return res.fail(fmt.Errorf("unknown entity type %q", c.Type)), nil
	}

	// A failed item rolls back its local id too.
	scratch := ids.clone()
	var res Result
	err := tl.InTx(ctx, func(il *ledger.Ledger) error {
		res = h.apply(ctx, il, owner, c, scratch)
		if res.Status == StatusError {
			return errItemFailed
		}
		return nil
	})
	if err != nil && !errors.Is(err, errItemFailed) {
		return Result{}, err
	}
	if res.Status != StatusError {
		for k, v := range scratch {
			ids[k] = v
		}
	} else {
		log.Printf("[Sync] %s %s %s (%s): %s", owner, c.Action, c.Type, c.LocalID, res.Message)
	}
	return res, nil
}

// rollover offers created income transactions to the budget manager in push
// order. Failures are logged; the pushed changes stay committed.
func (e *Engine) rollover(ctx context.Context, owner string, processed []Result) {
	if e.Budget == nil || !e.Budget.AutoRollover {
		return
	}
	for _, r := range processed {
		if r.Type != "transactions" || r.Action != OutcomeCreated {
			continue
		}
		tx, err := e.Ledger.GetTransaction(ctx, owner, r.ServerID)
		if err != nil {
			log.Printf("[Sync] Budget rollover for %s failed: %v", r.ServerID, err)
			continue
		}
		if tx.Type != ledger.TxIncome {
			continue
		}
		if _, _, err := e.Budget.MaybeRollover(ctx, owner, tx); err != nil {
			log.Printf("[Sync] Budget rollover for %s failed: %v", tx.ID, err)
		}
	}
}

func (m idMap) clone() idMap {
	c := make(idMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
