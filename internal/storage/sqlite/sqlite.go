// Package sqlite implements the CVM graph store on an embedded SQLite
// database. One writer, many readers; every public operation commits its
// own transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// Store is the SQLite-backed storage.Store implementation.
type Store struct {
	db         *sql.DB
	dbPath     string
	actor      string
	ftsEnabled bool

	hookMu   sync.Mutex
	hooks    map[int]storage.EntityHook
	nextHook int
}

// Option configures a Store at open time.
type Option func(*Store)

// WithActor sets the clock actor recorded on events this store emits.
// Defaults to "local".
func WithActor(actor string) Option {
	return func(s *Store) { s.actor = actor }
}

// New opens (creating if necessary) the database at dbPath and ensures the
// schema. Foreign keys are always enforced; FTS5 is attempted and search
// degrades to LIKE scans when the build lacks it.
func New(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The ncruces driver is pure Go; a single connection avoids writer
	// contention and keeps PRAGMA state consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		actor:  "local",
		hooks:  make(map[int]storage.EntityHook),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// FTS5 is optional; the public search contract is unaffected when the
	// build lacks it.
	if _, err := s.db.ExecContext(ctx, ftsSchema); err == nil {
		s.ftsEnabled = true
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// FTSEnabled reports whether the FTS5 virtual table is available.
func (s *Store) FTSEnabled() bool { return s.ftsEnabled }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// UnderlyingDB exposes the raw *sql.DB for extensions (such as the worker
// queue) that create their own tables alongside the core schema.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

// storageErr wraps a backend failure into the structured taxonomy. Callers
// never see a raw driver error across the store boundary.
func storageErr(op string, err error) error {
	kind := types.ErrStorage
	if isConstraintError(err) {
		kind = types.ErrConstraintViolation
	}
	return &types.Error{Kind: kind, Message: fmt.Sprintf("failed to %s: %v", op, err)}
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint") ||
		strings.Contains(msg, "UNIQUE constraint")
}
