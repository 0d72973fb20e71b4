/*
handlers.go - HTTP API handlers for the finance engine

PURPOSE:
  Thin adapters over the ledger, recurring, budget and sync services. They
  parse the request, call one service operation and render its result.
  Every domain rule lives in the services.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   List live accounts
    POST   /api/accounts                   Create account
    GET    /api/accounts/{id}              Get account
    PUT    /api/accounts/{id}              Replace editable fields
    DELETE /api/accounts/{id}              Soft delete
    POST   /api/accounts/{id}/restore      Undo soft delete
    POST   /api/accounts/{id}/recalculate  Recompute cached balance

  Categories:
    GET    /api/categories?type=           Owned + shared categories
    POST   /api/categories                 Create owned category
    PUT    /api/categories/{id}            Update owned category
    DELETE /api/categories/{id}            Soft delete owned category

  Transactions:
    GET    /api/transactions               Filter: account_id, category_id,
                                           type, from, to, limit
    POST   /api/transactions               Create (may roll the budget over)
    GET    /api/transactions/{id}
    PUT    /api/transactions/{id}
    DELETE /api/transactions/{id}
    POST   /api/transactions/{id}/restore

  Recurring, budget, debts, goals and sync: see handlers_planning.go.

OWNER:
  The owner id comes from the X-User-ID header (see server.go). Every
  service call is scoped to it.

ERROR HANDLING:
  Service errors map to HTTP status in writeServiceError:
  - 400: Malformed JSON or query parameters
  - 422: Validation errors, with per-field messages
  - 403: Record belongs to another owner, or is a shared/system category
  - 404: Record not found
  - 409: Conflict (unique constraint, e.g. a second active cycle)
  - 500: Internal errors (logged, details withheld)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/recurring"
	"github.com/warp/finance-engine/syncer"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Recurring *recurring.Scheduler
	Budget    *budget.Manager
	Sync      *syncer.Engine

	// Sweep is the periodic recurring sweep, when one runs.
	Sweep *RecurringScheduler
}

// NewHandler wires every service over one ledger.
func NewHandler(l *ledger.Ledger) *Handler {
	h := &Handler{
		Ledger:    l,
		Recurring: recurring.NewScheduler(l),
		Budget:    budget.NewManager(l),
		Sync:      syncer.NewEngine(l),
	}
	h.Sync.Budget = h.Budget
	return h
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the owner's live accounts in display order.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.ListAccounts(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(accounts))
}

// CreateAccount creates an account whose balance starts at initial_balance.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	var a ledger.Account
	req.apply(&a)

	created, err := h.Ledger.CreateAccount(r.Context(), ownerFrom(r), a)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.GetAccount(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Ledger.UpdateAccount(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(a *ledger.Account) error {
		req.apply(a)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAccount(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.RestoreAccount(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RecalculateAccount recomputes the cached balance from the transaction log.
func (h *Handler) RecalculateAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.RecalculateBalance(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// ListCategories returns owned and shared categories, optionally by type.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	typ := ledger.CategoryType(r.URL.Query().Get("type"))
	if typ != "" && !typ.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid type (use income or expense)", nil)
		return
	}
	categories, err := h.Ledger.ListCategories(r.Context(), ownerFrom(r), typ)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(categories))
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	var c ledger.Category
	req.apply(&c)

	created, err := h.Ledger.CreateCategory(r.Context(), ownerFrom(r), c)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Ledger.UpdateCategory(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(c *ledger.Category) error {
		req.apply(c)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteCategory(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns live transactions, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter", err)
		return
	}
	txs, err := h.Ledger.ListTransactions(r.Context(), ownerFrom(r), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

func transactionFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	f := ledger.TransactionFilter{
		AccountID:  q.Get("account_id"),
		CategoryID: q.Get("category_id"),
		Type:       ledger.TransactionType(q.Get("type")),
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, errors.New("type must be one of income, expense, transfer")
	}
	for _, p := range []struct {
		name string
		dst  **ledger.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		if s := q.Get(p.name); s != "" {
			d, err := ledger.ParseDate(s)
			if err != nil {
				return f, err
			}
			*p.dst = &d
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// CreateTransaction records a transaction and reconciles its accounts. An
// income matching the salary rules may start a new budget cycle.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	var tx ledger.Transaction
	req.apply(&tx)

	ctx := r.Context()
	owner := ownerFrom(r)
	created, err := h.Ledger.CreateTransaction(ctx, owner, tx)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := TransactionResponse{Transaction: created}
	if created.Type == ledger.TxIncome {
		cycle, rolled, err := h.Budget.MaybeRollover(ctx, owner, created)
		if err != nil {
			log.Printf("[API] Budget rollover for %s failed: %v", created.ID, err)
		} else if rolled {
			resp.StartedCycle = &cycle
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Ledger.GetTransaction(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	tx, err := h.Ledger.UpdateTransaction(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(tx *ledger.Transaction) error {
		req.apply(tx)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteTransaction(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Ledger.RestoreTransaction(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
	case ledger.IsForbidden(err):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		log.Printf("[API] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// nonNil renders empty lists as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
