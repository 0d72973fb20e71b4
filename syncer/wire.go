/*
Package syncer reconciles offline mobile edits with the server.

PROTOCOL:
  Pull:  GET  since=<timestamp>  → every owner record (tombstones included,
         flagged is_deleted) whose updated_at > since, grouped by type.
  Push:  POST {changes: [...]}   → one result per change, tagged with the
         client's local_id: processed, conflicts or errors.

LAST-WRITE-WINS:
  An update or delete is a conflict when the server copy's updated_at is
  strictly newer than the updated_at the client last saw. The client write
  is rejected and the server copy returned for the client to re-merge.
  Equal timestamps resolve in the client's favor.

ISOLATION:
  A push runs in one store transaction. Each change runs in its own
  savepoint, so a failing change rolls back alone and its siblings still
  commit. Only a storage failure outside any change aborts the batch.

ENTITY KINDS:
  A closed set (accounts, categories, transactions, recurring_transactions,
  debts, goals), each mapped to a typed handler that writes through the same
  services as the HTTP API, so balances are reconciled on every change.
  budget_cycles are pulled but never pushed.

BUDGET:
  With auto rollover on, every income transaction a push creates is offered
  to the budget manager after the batch commits, so a salary recorded
  offline starts a new cycle like one created over HTTP.

SEE ALSO:
  - kinds.go: Per-kind handlers
  - engine.go: Pull and Push
*/
package syncer

import (
	"encoding/json"
	"time"
)

// Action is what a change does to its record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Status is the outcome of one change.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusConflict Status = "conflict"
	StatusError    Status = "error"
)

// Outcome actions reported on success.
const (
	OutcomeCreated        = "created"
	OutcomeUpdated        = "updated"
	OutcomeDeleted        = "deleted"
	OutcomeAlreadyDeleted = "already_deleted"
)

// Record is one entity as sent to clients: its JSON fields plus is_deleted.
type Record map[string]any

// PullResponse carries every change since the requested timestamp.
// SyncTimestamp is the value to send as since on the next pull.
type PullResponse struct {
	Entities      map[string][]Record `json:"entities_by_type"`
	SyncTimestamp time.Time           `json:"sync_timestamp"`
}

// Change is one client-originated mutation.
type Change struct {
	Type     string          `json:"type"`
	Action   Action          `json:"action"`
	LocalID  string          `json:"local_id"`
	ServerID string          `json:"server_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`

	// UpdatedAt is the server updated_at the client last saw.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PushRequest is a batch of changes applied in order.
type PushRequest struct {
	Changes []Change `json:"changes"`
}

// Result is the decision for one change.
type Result struct {
	LocalID    string `json:"local_id"`
	ServerID   string `json:"server_id,omitempty"`
	Type       string `json:"type"`
	Status     Status `json:"status"`
	Action     string `json:"action,omitempty"`
	Message    string `json:"message,omitempty"`
	ServerData Record `json:"server_data,omitempty"`
}

// Results groups decisions by status.
type Results struct {
	Processed []Result `json:"processed"`
	Conflicts []Result `json:"conflicts"`
	Errors    []Result `json:"errors"`
}

// PushResponse is the reply to a push.
type PushResponse struct {
	Results       Results   `json:"results"`
	SyncTimestamp time.Time `json:"sync_timestamp"`
}

func (r *Results) add(res Result) {
	switch res.Status {
	case StatusSuccess:
		r.Processed = append(r.Processed, res)
	case StatusConflict:
		r.Conflicts = append(r.Conflicts, res)
	default:
		r.Errors = append(r.Errors, res)
	}
}
