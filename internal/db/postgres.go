package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is nil when no database is configured; callers treat storage as optional.
var Pool *pgxpool.Pool

var (
	newPool  = pgxpool.New
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

var ErrNotConfigured = errors.New("DATABASE_URL not configured")

func InitPostgres(ctx context.Context, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return ErrNotConfigured
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		return err
	}
	if err := pingPool(ctx, pool); err != nil {
		pool.Close()
		return err
	}
	Pool = pool
	slog.Info("connected to postgres")
	return nil
}

func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
