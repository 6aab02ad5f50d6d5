// Package store selects the storage backend from configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/store/postgres"
	"github.com/warp/court-roster/store/sqlite"
)

// Store is everything the service persists.
type Store interface {
	staffing.Store
	assignment.Store
	directory.Store

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open connects to the configured backend and creates its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened", zap.String("driver", cfg.Driver), zap.String("path", cfg.Path))
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened",
			zap.String("driver", cfg.Driver),
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Name),
		)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
