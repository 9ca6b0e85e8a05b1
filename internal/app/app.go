package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/seed"
)

// App holds the wired service and the resources behind it.
type App struct {
	Service *appointment.Service
	Checks  []api.HealthCheck

	pool   *pgxpool.Pool
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects the configured store and lock backend and builds the service on top.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	var repo appointment.Repository
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.pool = pool
		logger.Info("connected to Postgres")

		if cfg.AutoMigrate {
			if err := migrate(ctx, pool, logger); err != nil {
				a.Close()
				return nil, err
			}
		}

		repo = appointment.NewPgRepository(pool)
		a.Checks = append(a.Checks, api.HealthCheck{Name: "postgres", Critical: true, Ping: pool.Ping})

	case config.StoreMemory:
		mem := appointment.NewMemoryRepository()
		if cfg.SeedDemoData {
			res, err := seed.Run(ctx, mem, seed.DefaultOptions(), logger)
			if err != nil {
				return nil, fmt.Errorf("seed memory store: %w", err)
			}
			logger.Info("memory store seeded",
				zap.String("sample_patient_id", res.Patients[0].ID.String()),
				zap.String("sample_doctor_id", res.Doctors[0].ID.String()))
		}
		repo = mem
		logger.Warn("using in-memory store, data is lost on restart")
	}

	var locker redisclient.Locker
	switch cfg.LockDriver {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		a.Checks = append(a.Checks, api.HealthCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})

	case config.LockLocal:
		locker = redisclient.NewLocalSlotLocker()
	}

	a.Service = appointment.NewService(repo, locker, logger)
	return a, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	m, err := db.NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up(ctx)
}

func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
