/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests from the web client
  5. RequireOwner: X-User-ID header → owner id (401 when missing), /api only

ROUTE GROUPS:
  /api/accounts/*       Accounts and balance recalculation
  /api/categories/*     Categories
  /api/transactions/*   Transactions
  /api/recurring/*      Recurring templates, generation, due sweep
  /api/budget/*         Settings, current summary, cycles
  /api/debts/*          Debts and payments
  /api/goals/*          Goals and contributions
  /api/sync/*           Offline pull/push
  /health               Liveness

SECURITY NOTE:
  Authentication is done upstream; this server trusts X-User-ID.

SEE ALSO:
  - handlers.go, handlers_planning.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// OwnerHeader carries the authenticated owner id.
const OwnerHeader = "X-User-ID"

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

type ownerKey struct{}

// RequireOwner rejects requests without an owner id and stores it in the
// request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+OwnerHeader+" header", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireOwner)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Post("/{id}/restore", h.RestoreAccount)
			r.Post("/{id}/recalculate", h.RecalculateAccount)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/restore", h.RestoreTransaction)
		})

		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", h.ListRecurring)
			r.Post("/", h.CreateRecurring)
			r.Post("/process", h.ProcessRecurring)
			r.Get("/{id}", h.GetRecurring)
			r.Put("/{id}", h.UpdateRecurring)
			r.Delete("/{id}", h.DeleteRecurring)
			r.Post("/{id}/generate", h.GenerateRecurring)
		})

		r.Route("/budget", func(r chi.Router) {
			r.Get("/settings", h.GetBudgetSettings)
			r.Put("/settings", h.SaveBudgetSettings)
			r.Get("/current", h.GetBudgetCurrent)
			r.Get("/cycles", h.ListBudgetCycles)
			r.Post("/cycles", h.StartBudgetCycle)
			r.Get("/cycles/{id}", h.GetBudgetCycle)
			r.Post("/cycles/{id}/close", h.CloseBudgetCycle)
		})

		r.Route("/debts", func(r chi.Router) {
			r.Get("/", h.ListDebts)
			r.Post("/", h.CreateDebt)
			r.Get("/{id}", h.GetDebt)
			r.Put("/{id}", h.UpdateDebt)
			r.Delete("/{id}", h.DeleteDebt)
			r.Post("/{id}/payments", h.AddDebtPayment)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.ListGoals)
			r.Post("/", h.CreateGoal)
			r.Get("/{id}", h.GetGoal)
			r.Put("/{id}", h.UpdateGoal)
			r.Delete("/{id}", h.DeleteGoal)
			r.Post("/{id}/contributions", h.ContributeToGoal)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/pull", h.SyncPull)
			r.Post("/push", h.SyncPush)
		})
	})

	return r
}
