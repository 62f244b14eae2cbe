// Package postgres is a github.com/jmoiron/sqlx + github.com/lib/pq
// backed implementation of store.Store, giving the core a real
// multi-statement SQL transaction to hand to internal/txrunner instead
// of the in-memory store's CAS fallback (spec.md §4.A, §9). Grounded
// in the teacher's database/sql + lib/pq connection idiom
// (internal/platform/database/database.go, services/indexer/storage.go)
// and its store_pg.go transaction shape (internal/app/jam/store_pg.go),
// adapted here to sqlx's named-query convenience.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn, verifies connectivity, and applies any pending
// embedded migrations. The returned Store must be closed by the caller.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func applyMigrations(db *sqlx.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}
	target, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		return fmt.Errorf("migration runner: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// HealthCheck satisfies store.Store; it is a single round-trip ping.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx hands out a real transaction, satisfying store.TxCapable so
// internal/txrunner.RunInTx uses it instead of the CAS fallback.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txWrapper{tx: tx}, nil
}

type txWrapper struct{ tx *sqlx.Tx }

func (t *txWrapper) Commit() error   { return t.tx.Commit() }
func (t *txWrapper) Rollback() error { return t.tx.Rollback() }

var _ store.Store = (*Store)(nil)
var _ store.TxCapable = (*Store)(nil)
