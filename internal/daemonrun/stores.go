package daemonrun

import (
	"context"
	"errors"
	"fmt"

	"bookloom/internal/config"
	"bookloom/internal/database"
	"bookloom/internal/library"
	"bookloom/internal/queue"
)

// Stores holds the job and library stores for the configured driver.
type Stores struct {
	Jobs    queue.Repository
	Library library.Store
	Driver  string
	close   func() error
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the job and library stores selected by store.driver.
// Both stores share one database handle.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	switch cfg.Store.Driver {
	case "", "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Jobs:    queue.NewStore(db),
			Library: library.NewStore(db),
			Driver:  "sqlite",
			close:   db.Close,
		}, nil
	case "postgres":
		gdb, err := database.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		jobs, err := queue.NewGormStore(ctx, gdb)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		lib, err := library.NewGormStore(ctx, gdb)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &Stores{
			Jobs:    jobs,
			Library: lib,
			Driver:  "postgres",
			close:   sqlDB.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
