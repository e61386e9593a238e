package core

import (
	"fmt"
	"time"

	"herdcore/internal/infra/persistence/memory"
	"herdcore/internal/infra/persistence/postgres"
	"herdcore/internal/infra/persistence/sqlite"
	"herdcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a persistence backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string // when Driver == StorageSQLite
	PostgresDSN string // when Driver == StoragePostgres
}

// OpenPersistentStore constructs the configured backend. Defaults to sqlite
// when the driver is unset.
func OpenPersistentStore(cfg StorageConfig, loc *time.Location) (domain.PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(loc), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, loc)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, loc)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
