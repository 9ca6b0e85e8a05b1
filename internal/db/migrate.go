package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrator applies the embedded goose migrations over a pgx pool.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMigrator(pool *pgxpool.Pool, logger *zap.Logger) (*Migrator, error) {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	return &Migrator{
		db:     stdlib.OpenDBFromPool(pool),
		logger: logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.logger.Info("applying database migrations")

	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("migrations applied", zap.Int64("version", version))
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) error {
	return goose.StatusContext(ctx, m.db, migrationsDir)
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}
	return version, nil
}

// Close releases the sql.DB wrapper; the pool itself is owned by the caller.
func (m *Migrator) Close() error {
	return m.db.Close()
}
