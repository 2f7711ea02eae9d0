package domain

import (
	"context"
	"time"
)

// KV is one key-value entry returned by a range scan.
type KV struct {
	Key   string
	Value []byte
}

// Transaction exposes the world-state operations a persistence
// implementation must support within an atomic scope. Values are opaque
// bytes; every write replaces the whole record.
type Transaction interface {
	// Get returns the value stored at key, or ok=false when absent.
	Get(key string) (value []byte, ok bool)
	// Put stores value at key, replacing any previous value.
	Put(key string, value []byte)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string)
	// Scan returns entries with start <= key < end in ascending key order.
	Scan(start, end string) []KV
	// Now is the transaction timestamp; every record stamped inside one
	// transaction shares it.
	Now() time.Time
	// RecordChange captures a typed mutation for rule evaluation and audit.
	RecordChange(Change)
	// Snapshot exposes the transactional state read-only.
	Snapshot() TransactionView
}

// TransactionView provides read-only access to world state.
type TransactionView interface {
	Get(key string) (value []byte, ok bool)
	Scan(start, end string) []KV
}

// RecordStore is the opaque transactional key-value log the registry core
// runs on. Each RunInTransaction invocation commits or aborts atomically;
// there is no cross-invocation transaction.
type RecordStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
