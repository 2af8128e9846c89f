// Package store opens the storage backend named in the configuration.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sakif/billing-tracker/internal/config"
	"github.com/sakif/billing-tracker/internal/repository"
	mongoRepo "github.com/sakif/billing-tracker/internal/repository/mongo"
	sqliteRepo "github.com/sakif/billing-tracker/internal/repository/sqlite"
)

// Open returns a connected, migrated Store. The caller owns it and must Close it.
func Open(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		db, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return db, nil

	case config.DriverSQLite:
		// os.MkdirAll creates the data directory if needed (like `mkdir -p`).
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("store: creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("store: unknown driver %q", cfg.StoreDriver)
}

// Describe names the backend for log lines and the root info page.
func Describe(cfg *config.Config) string {
	if cfg.StoreDriver == config.DriverMongo {
		return "mongo:" + cfg.MongoDatabase
	}
	return "sqlite:" + cfg.DBPath
}
