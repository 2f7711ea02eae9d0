package registry

import (
	"fmt"
	"os"

	"organcore/internal/infra/persistence/memory"
	"organcore/internal/infra/persistence/postgres"
	"organcore/internal/infra/persistence/sqlite"
	"organcore/pkg/domain"
)

// Storage driver selection, read from the environment by OpenRecordStore.
const (
	EnvStorageDriver = "ORGANCORE_STORAGE_DRIVER"
	EnvSQLitePath    = "ORGANCORE_SQLITE_PATH"
	EnvPostgresDSN   = "ORGANCORE_POSTGRES_DSN"

	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// OpenRecordStore builds the record store selected by the environment, with
// the default rules engine installed. An unset driver means memory. The
// returned cleanup releases any database handle and is safe to call once.
func OpenRecordStore() (domain.RecordStore, func() error, error) {
	engine := NewDefaultRulesEngine()
	driver := os.Getenv(EnvStorageDriver)
	switch driver {
	case "", StorageDriverMemory:
		return memory.NewStore(engine), func() error { return nil }, nil
	case StorageDriverSQLite:
		store, err := sqlite.NewStore(os.Getenv(EnvSQLitePath), engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil
	case StorageDriverPostgres:
		store, err := postgres.NewStore(os.Getenv(EnvPostgresDSN), engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
