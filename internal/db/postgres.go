package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microloan/backend/internal/config"
)

const (
	applicationName        = "microloan-backend"
	defaultMaxConnLifetime = 30 * time.Minute
)

func NewPostgresPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// poolConfig rejects settings that would otherwise be silently replaced, so a
// typo in DB_MAX_CONN_LIFETIME fails startup instead of running on defaults.
func poolConfig(cfg config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > poolCfg.MaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS %d must be between 0 and max conns %d", cfg.DBMinConns, poolCfg.MaxConns)
	}
	poolCfg.MinConns = cfg.DBMinConns

	poolCfg.MaxConnLifetime = defaultMaxConnLifetime
	if raw := strings.TrimSpace(cfg.DBMaxConnLifetime); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("DB_MAX_CONN_LIFETIME %q is not a positive duration", raw)
		}
		poolCfg.MaxConnLifetime = d
	}

	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return poolCfg, nil
}
