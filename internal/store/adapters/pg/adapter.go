// Package pg implementa el adapter PostgreSQL (pgxpool) para ProfileRecord.
package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	store "github.com/dropDatabas3/sentinel/internal/store"
	migrations "github.com/dropDatabas3/sentinel/migrations/postgres"
)

func init() {
	store.RegisterAdapter(&pgAdapter{})
}

type pgAdapter struct{}

func (a *pgAdapter) Name() string { return "postgres" }

func (a *pgAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("pg: %w: empty dsn", repository.ErrNoDatabase)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	// Mapear MaxIdleConns → MinConns (pgxpool)
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &pgConnection{pool: pool, profiles: &profileRepo{pool: pool}}, nil
}

type pgConnection struct {
	pool     *pgxpool.Pool
	profiles *profileRepo
}

func (c *pgConnection) Name() string                           { return "postgres" }
func (c *pgConnection) Ping(ctx context.Context) error         { return c.pool.Ping(ctx) }
func (c *pgConnection) Profiles() repository.ProfileRepository { return c.profiles }

func (c *pgConnection) Close() error {
	c.pool.Close()
	return nil
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate aplica los .sql embebidos que aún no figuran en schema_migrations.
// Cada archivo corre en su propia transacción.
func (c *pgConnection) Migrate(ctx context.Context) ([]string, error) {
	log := logger.From(ctx).With(logger.Layer("store"), logger.Component("pg"), logger.Op("Migrate"))

	if _, err := c.pool.Exec(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		var exists bool
		if err := c.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("pg: check %s: %w", name, err)
		}
		if exists {
			continue
		}

		body, err := fs.ReadFile(migrations.FS, migrations.Dir+"/"+name)
		if err != nil {
			return applied, err
		}

		tx, err := c.pool.Begin(ctx)
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("pg: apply %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("pg: record %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, err
		}
		log.Info("migration applied", logger.String("version", name))
		applied = append(applied, name)
	}
	return applied, nil
}
