package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/config"
	"github.com/sells-group/speedtrack/internal/store"
)

func initStore(ctx context.Context, c *config.Config) (store.Warehouse, error) {
	zap.L().Info("opening warehouse", zap.String("store", c.Store.String()))

	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.DSN())
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DSN(), &store.PoolConfig{
			MaxConns:        c.Store.MaxConns,
			MinConns:        c.Store.MinConns,
			MaxConnIdleTime: time.Duration(c.Store.MaxConnIdleSecs) * time.Second,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openWarehouse validates config, opens the store and applies the schema.
// Callers should defer Close on the returned warehouse.
func openWarehouse(ctx context.Context, c *config.Config) (store.Warehouse, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	wh, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := wh.Migrate(ctx); err != nil {
		_ = wh.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return wh, nil
}
