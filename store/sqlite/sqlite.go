/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements every persistence interface of the ledger (accounts,
  categories, transactions, recurring schedules, budget settings and cycles,
  debts, goals) with database/sql over mattn/go-sqlite3.

SOFT DELETE:
  No row is ever physically deleted. Delete sets deleted_at; the sync engine
  ships tombstones to clients and restore clears the column.

KEY TABLES:
  accounts, categories, transactions, recurring_transactions,
  budget_settings, budget_cycles, debts, goals

INDEXES:
  - idx_transactions_account_type: balance reconciliation (hot path)
  - idx_transactions_user_date: cycle totals
  - idx_*_user_updated: incremental sync pulls
  - idx_budget_cycles_one_active: at most one active cycle per user

TRANSACTIONS:
  WithTx opens a database transaction. WithTx on the transaction-bound
  repository opens a SAVEPOINT, so a failing inner unit rolls back alone
  while the outer transaction continues.

CONNECTIONS:
  The pool is capped at one connection: SQLite allows a single writer, and
  ":memory:" databases exist per connection.

MIGRATION:
  The schema lives in migrations/*.sql, embedded in the binary and applied
  by golang-migrate on New(). Shared system categories are seeded after.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/finance-engine/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// tsLayout is fixed width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; it runs against the pool or a transaction.
type queries struct {
	q dbtx
}

// Store implements ledger.Store using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seedSystemCategories(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed categories: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close() would also close s.db through the driver; only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txRepo{queries: queries{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txRepo is a Repository bound to an open transaction.
type txRepo struct {
	queries
	tx    *sql.Tx
	depth int
}

// WithTx nests fn inside a savepoint of the enclosing transaction.
func (r *txRepo) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	name := fmt.Sprintf("sp_%d", r.depth+1)
	if _, err := r.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	inner := &txRepo{queries: r.queries, tx: r.tx, depth: r.depth + 1}
	if err := fn(inner); err != nil {
		if _, rbErr := r.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		_, _ = r.tx.ExecContext(ctx, "RELEASE "+name)
		return err
	}

	if _, err := r.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func scanNullTS(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTS(ns.String)
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func scanNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

func nullInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func scanNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	i := ni.Int64
	return &i
}

func nullDate(d *ledger.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func optDate(d ledger.Date) *ledger.Date {
	if d.IsZero() {
		return nil
	}
	return &d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// notFound maps sql.ErrNoRows to a ledger not-found error.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// expectRow reports a not-found error when an UPDATE touched nothing.
func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// where accumulates AND-ed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// liveOrSince applies the tombstone and incremental-sync predicates shared by every table.
func (w *where) liveOrSince(includeDeleted bool, since *time.Time) {
	if !includeDeleted {
		w.add("deleted_at IS NULL")
	}
	if since != nil {
		w.add("updated_at > ?", formatTS(*since))
	}
}
