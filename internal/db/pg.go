// Package db opens the pgxpool.Pool the Postgres storage.Adapter runs its
// SERIALIZABLE transactions against.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Open creates a connection pool sized per maxConns/minConns (callers pass
// config.Config's PGMaxConns/PGMinConns) and, once connectivity is
// verified, bootstraps the nodes schema: a from-scratch
// listd deployment has exactly one schema to ensure, so folding it into Open
// means every caller that gets a pool back is already handed a ready-to-use
// one rather than needing a separate EnsureSchema round trip before its
// first query.
func Open(ctx context.Context, url string, maxConns, minConns int32, schemaSQL string) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = time.Hour
	pgxCfg.MaxConnIdleTime = 30 * time.Minute
	pgxCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if schemaSQL != "" {
		if _, err := pool.Exec(ctx, schemaSQL); err != nil {
			pool.Close()
			return nil, err
		}
	}

	log.Info().
		Int32("max_conns", pgxCfg.MaxConns).
		Int32("min_conns", pgxCfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}
