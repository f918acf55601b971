// Package store is the Postgres persistence layer. Every read or write
// that touches tenant data goes through WithTenant, which opens a
// transaction, sets app.current_tenant for the lifetime of that
// transaction (so row-level-security policies on the campaigns,
// contacts, messages and related tables can enforce it), and still
// requires every query to carry its own explicit tenant_id predicate.
// The tenant id is a parameter the caller passes in, never ambient
// state threaded through a context value — a query that forgets its
// predicate is caught by the database, not assumed away by a helper.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	appErrors "github.com/leafline/messaging-core/internal/errors"
)

// Store wraps a *sql.DB. All exported methods open their own
// short-lived transaction; callers needing several writes to share one
// transaction's tenant scope should use WithTenant directly.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open dials Postgres via lib/pq and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

// WithTenant runs fn inside a transaction with app.current_tenant set to
// tenantID for that transaction's lifetime only (SET LOCAL, so it never
// leaks onto a pooled connection reused by another request).
func (s *Store) WithTenant(ctx context.Context, tenantID string, fn func(tx *sql.Tx) error) error {
	if tenantID == "" {
		return appErrors.ErrTenantScopeMissing{}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_tenant', $1, true)`, tenantID); err != nil {
		return fmt.Errorf("store: set tenant: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// WithAdmin runs fn inside a transaction scoped to no tenant at all, for
// operations that legitimately cross tenants (the webhook reconciler
// resolving a destination number or provider id to its owning tenant,
// and the global opt-out table).
func (s *Store) WithAdmin(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_tenant', '', true)`); err != nil {
		return fmt.Errorf("store: clear tenant: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
