package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ratehub/internal/bootstrap"
	"ratehub/internal/config"
	infraconfig "ratehub/internal/infrastructure/config"
	httpserver "ratehub/internal/infrastructure/http"
	"ratehub/internal/infrastructure/logx"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.L().Fatal("load config", zap.Error(err))
	}
	if err := logx.Init(cfg.LogLevel); err != nil {
		logx.L().Fatal("init logger", zap.Error(err))
	}
	logger := logx.L().With(zap.String("component", "api"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer cleanup()

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           httpserver.NewRouter(app.HTTPServer()),
		ReadHeaderTimeout: infraconfig.DefaultReadHeaderTimeout,
	}

	go func() {
		logger.Info("server started", zap.String("addr", addr), zap.String("storage", cfg.Storage), zap.String("provider", cfg.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", zap.Error(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
