// Package sqlite persists the registry world state to an embedded SQLite
// file, snapshotting the full state after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"organcore/internal/infra/persistence/memory"
	"organcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.RecordStore = (*Store)(nil)

// Store wraps the in-memory transactional engine and mirrors every
// committed world state into a single-table SQLite snapshot.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed record store and
// hydrates it from any existing snapshot.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "organcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS world_state (
		record_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create world_state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT record_key, payload FROM world_state`)
	if err != nil {
		return fmt.Errorf("select world_state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := make(map[string][]byte)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !json.Valid(payload) {
			return fmt.Errorf("corrupt payload at key %s", key)
		}
		state[key] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate world_state: %w", err)
	}
	if len(state) > 0 {
		s.ImportState(state)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.Exec(`DELETE FROM world_state`); err != nil {
		retErr = fmt.Errorf("clear world_state: %w", err)
		return retErr
	}
	for key, payload := range state {
		if _, err := tx.Exec(`INSERT INTO world_state(record_key,payload) VALUES(?,?)`, key, payload); err != nil {
			retErr = fmt.Errorf("insert %s: %w", key, err)
			return retErr
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then snapshots the
// committed state to SQLite.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
