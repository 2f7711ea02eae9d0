package registry

import (
	"path/filepath"
	"testing"

	"organcore/internal/infra/persistence/memory"
	"organcore/internal/infra/persistence/sqlite"
)

func TestOpenRecordStoreDefaultsToMemory(t *testing.T) {
	t.Setenv(EnvStorageDriver, "")
	store, cleanup, err := OpenRecordStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = cleanup() }()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenRecordStoreSQLite(t *testing.T) {
	t.Setenv(EnvStorageDriver, StorageDriverSQLite)
	t.Setenv(EnvSQLitePath, filepath.Join(t.TempDir(), "registry.db"))
	store, cleanup, err := OpenRecordStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestOpenRecordStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv(EnvStorageDriver, "etcd")
	if _, _, err := OpenRecordStore(); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
