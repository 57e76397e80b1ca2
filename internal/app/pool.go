package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig parses dbURL and pins the session settings timestamp text
// output depends on.
func PoolConfig(dbURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["DateStyle"] = "ISO, YMD"
	cfg.ConnConfig.RuntimeParams["TimeZone"] = "UTC"
	return cfg, nil
}

func NewPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dbURL)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}
