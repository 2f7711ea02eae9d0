// Package postgres provides a Postgres-backed record store that mirrors the
// in-memory transactional semantics, snapshotting world state after each
// committed transaction.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"organcore/internal/infra/persistence/memory"
	"organcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.RecordStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/organcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists world state to Postgres while reusing the in-memory
// engine for transactions and rule evaluation.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls
// back to defaultDSN), ensures the world_state table exists, and hydrates
// the in-memory engine from any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	state, err := loadState(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	if len(state) > 0 {
		mem.ImportState(state)
	}
	return &Store{Store: mem, db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS world_state (
		record_key TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure world_state table: %w", err)
	}
	return nil
}

func loadState(ctx context.Context, db *sql.DB) (map[string][]byte, error) {
	rows, err := db.QueryContext(ctx, `SELECT record_key, payload FROM world_state`)
	if err != nil {
		return nil, fmt.Errorf("select world_state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := make(map[string][]byte)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan world_state: %w", err)
		}
		state[key] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate world_state: %w", err)
	}
	return state, nil
}

// RunInTransaction applies fn within a transaction, then snapshots the
// committed state to Postgres.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM world_state`); err != nil {
		return fmt.Errorf("clear world_state: %w", err)
	}
	for key, payload := range state {
		if _, err := tx.ExecContext(ctx, `INSERT INTO world_state(record_key,payload) VALUES($1,$2)`, key, payload); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sql.Open function for tests and returns a
// restore function.
func OverrideSQLOpen(fn func(driver, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
