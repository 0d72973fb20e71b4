package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/syncer"
)

// =============================================================================
// RECURRING HANDLERS
// =============================================================================

// ListRecurring returns the owner's templates by next due date.
// ?active=true keeps active ones only.
func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	items, err := h.Recurring.List(r.Context(), ownerFrom(r), activeOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req RecurringRequest
	if !decode(w, r, &req) {
		return
	}
	rt := ledger.RecurringTransaction{IsActive: true}
	req.apply(&rt)

	created, err := h.Recurring.Create(r.Context(), ownerFrom(r), rt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetRecurring(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Recurring.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *Handler) UpdateRecurring(w http.ResponseWriter, r *http.Request) {
	var req RecurringRequest
	if !decode(w, r, &req) {
		return
	}
	rt, err := h.Recurring.Update(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(rt *ledger.RecurringTransaction) error {
		req.apply(rt)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *Handler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := h.Recurring.Delete(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateRecurring creates the next occurrence now and advances the template.
func (h *Handler) GenerateRecurring(w http.ResponseWriter, r *http.Request) {
	tx, rt, err := h.Recurring.GenerateNow(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{Transaction: tx, Recurring: rt})
}

// ProcessRecurring runs the due sweep for the owner.
func (h *Handler) ProcessRecurring(w http.ResponseWriter, r *http.Request) {
	report, err := h.Recurring.ProcessDue(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report.Generated = nonNil(report.Generated)
	report.Failed = nonNil(report.Failed)

	resp := ProcessResponse{Report: report}
	if h.Sweep != nil {
		if next := h.Sweep.GetNextRunTime(); !next.IsZero() {
			resp.NextSweep = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

func (h *Handler) GetBudgetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Budget.Settings(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) SaveBudgetSettings(w http.ResponseWriter, r *http.Request) {
	var req BudgetSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	owner := ownerFrom(r)
	s, err := h.Budget.SaveSettings(r.Context(), owner, req.settings(owner))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetBudgetCurrent returns the active cycle summary, creating the cycle
// from the owner's settings when none is active.
func (h *Handler) GetBudgetCurrent(w http.ResponseWriter, r *http.Request) {
	s, err := h.Budget.Summary(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.Categories = nonNil(s.Categories)
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) ListBudgetCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.Budget.ListCycles(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cycles))
}

// StartBudgetCycle closes the active cycle and opens a new one.
func (h *Handler) StartBudgetCycle(w http.ResponseWriter, r *http.Request) {
	var req StartCycleRequest
	if !decode(w, r, &req) {
		return
	}
	start := h.Ledger.Today()
	if req.StartDate != nil && !req.StartDate.IsZero() {
		start = *req.StartDate
	}
	c, err := h.Budget.Start(r.Context(), ownerFrom(r), start, req.TriggerTransactionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetBudgetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := h.Budget.Cycle(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CloseBudgetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := h.Budget.Close(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.Ledger.ListDebts(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(debts))
}

func (h *Handler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if !decode(w, r, &req) {
		return
	}
	var d ledger.Debt
	req.apply(&d)

	created, err := h.Ledger.CreateDebt(r.Context(), ownerFrom(r), d)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	d, err := h.Ledger.GetDebt(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) UpdateDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Ledger.UpdateDebt(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(d *ledger.Debt) error {
		req.apply(d)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteDebt(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDebtPayment reduces the outstanding amount; the debt is paid at zero.
func (h *Handler) AddDebtPayment(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Ledger.AddDebtPayment(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// =============================================================================
// GOAL HANDLERS
// =============================================================================

func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Ledger.ListGoals(r.Context(), ownerFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]GoalDTO, len(goals))
	for i, g := range goals {
		dtos[i] = toGoalDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if !decode(w, r, &req) {
		return
	}
	var g ledger.Goal
	req.apply(&g)

	created, err := h.Ledger.CreateGoal(r.Context(), ownerFrom(r), g)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(created))
}

func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := h.Ledger.GetGoal(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.Ledger.UpdateGoal(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), func(g *ledger.Goal) error {
		req.apply(g)
		return nil
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteGoal(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContributeToGoal adds to the saved amount; the goal completes at target.
func (h *Handler) ContributeToGoal(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.Ledger.ContributeToGoal(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// SyncPull returns changes since ?since= (RFC 3339). Without since, everything.
func (h *Handler) SyncPull(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since (use RFC 3339)", err)
			return
		}
		since = t
	}
	resp, err := h.Sync.Pull(r.Context(), ownerFrom(r), since)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	for kind, records := range resp.Entities {
		resp.Entities[kind] = nonNil(records)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncPush applies a batch of offline changes. Per-change failures are
// reported in the body; only a batch-level failure is an HTTP error.
func (h *Handler) SyncPush(w http.ResponseWriter, r *http.Request) {
	var req syncer.PushRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.Sync.Push(r.Context(), ownerFrom(r), req.Changes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp.Results.Processed = nonNil(resp.Results.Processed)
	resp.Results.Conflicts = nonNil(resp.Results.Conflicts)
	resp.Results.Errors = nonNil(resp.Results.Errors)
	writeJSON(w, http.StatusOK, resp)
}
