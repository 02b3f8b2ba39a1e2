package state

import (
	"context"
	"fmt"
)

// NewStore returns the Store implementation selected by config.Driver.
// An empty driver defaults to SQLite.
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch config.Driver {
	case "", "sqlite":
		dsn := config.DSN
		if dsn == "" {
			dsn = "data/housing.db"
		}
		return NewSQLStore(ctx, "sqlite", dsn)
	case "postgres":
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		return NewSQLStore(ctx, "postgres", config.DSN)
	case "dapr":
		return NewDaprStore(config)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Driver)
	}
}
