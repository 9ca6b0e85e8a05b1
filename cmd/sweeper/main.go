package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/app"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval))

	if cfg.StoreDriver == config.StoreMemory {
		logger.Fatal("sweeper needs a shared store, STORE_DRIVER=memory is process-local")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// Run once at startup
	runOnce(rootCtx, a.Service, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Service, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CancelStalePending(runCtx)
	if err != nil {
		logger.Error("sweep run failed", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("cancelled", n),
		zap.Duration("took", time.Since(start)))
}
