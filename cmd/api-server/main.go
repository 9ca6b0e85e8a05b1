package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/app"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("lock", cfg.LockDriver))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	router := api.NewRouter(api.RouterConfig{
		Service:  a.Service,
		Verifier: auth.NewTokenVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		Logger:   logger,
		Checks:   a.Checks,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api-server stopped")
}
