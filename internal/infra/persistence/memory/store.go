// Package memory provides the in-memory implementation of the registry
// record store used for tests and ephemeral environments. It is also the
// transactional engine the durable drivers wrap.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"organcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.RecordStore = (*Store)(nil)

// Store is a transactional key-value world state. Every transaction works
// on a clone of the state; registered rules are evaluated against the
// mutated clone and a blocking violation aborts the commit, so partially
// applied multi-record operations are never observable.
type Store struct {
	mu     sync.RWMutex
	state  map[string][]byte
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules
// engine. A nil engine disables rule evaluation.
func NewStore(engine *domain.RulesEngine) *Store {
	return &Store{
		state:  make(map[string][]byte),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func cloneState(state map[string][]byte) map[string][]byte {
	cloned := make(map[string][]byte, len(state))
	for k, v := range state {
		cp := make([]byte, len(v))
		copy(cp, v)
		cloned[k] = cp
	}
	return cloned
}

type transaction struct {
	state   map[string][]byte
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) Get(key string) ([]byte, bool) {
	v, ok := tx.state[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

func (tx *transaction) Put(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	tx.state[key] = cp
}

func (tx *transaction) Delete(key string) {
	delete(tx.state, key)
}

func (tx *transaction) Scan(start, end string) []domain.KV {
	return scanState(tx.state, start, end)
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) RecordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return stateView{state: tx.state}
}

type stateView struct {
	state map[string][]byte
}

func (v stateView) Get(key string) ([]byte, bool) {
	raw, ok := v.state[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, true
}

func (v stateView) Scan(start, end string) []domain.KV {
	return scanState(v.state, start, end)
}

func scanState(state map[string][]byte, start, end string) []domain.KV {
	out := make([]domain.KV, 0)
	for k, v := range state {
		if k < start || k >= end {
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, domain.KV{Key: k, Value: cp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The state swap happens only after fn succeeds and no registered
// rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: cloneState(s.state),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := domain.NewRuleView(tx.Snapshot())
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := cloneState(s.state)
	s.mu.RUnlock()
	_ = ctx
	return fn(stateView{state: snapshot})
}

// ExportState clones the committed world state for external persistence.
func (s *Store) ExportState() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// ImportState replaces the world state with the provided snapshot.
func (s *Store) ImportState(state map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cloneState(state)
}
