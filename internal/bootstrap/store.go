// Package bootstrap assembles the runtime graph shared by the API and the
// worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"agrinix/internal/adapter/repo"
	"agrinix/internal/adapter/sqlite"
	"agrinix/internal/domain"
	"agrinix/internal/infra"
)

// Records is the relational side of the store.
type Records interface {
	domain.RecordStore
	domain.OwnerRegistry
}

// Store bundles the repositories of the configured driver.
type Store struct {
	Driver  string
	Jobs    domain.JobRepository
	Records Records

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the backing database.
func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the connection pool.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to the configured driver and makes sure the schema exists.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		if err := repo.Migrate(ctx, runner); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{
			Driver:  cfg.StoreDriver,
			Jobs:    repo.NewJobRepository(runner),
			Records: repo.NewRecordStore(runner),
			ping:    pool.Ping,
			close:   pool.Close,
		}, nil
	case infra.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Driver:  cfg.StoreDriver,
			Jobs:    db.Jobs(),
			Records: db.Records(),
			ping:    db.Ping,
			close:   func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.StoreDriver)
	}
}
