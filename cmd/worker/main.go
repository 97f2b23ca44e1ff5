package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ratehub/internal/bootstrap"
	"ratehub/internal/config"
	"ratehub/internal/infrastructure/logx"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single refresh and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logx.L().Fatal("load config", zap.Error(err))
	}
	if err := logx.Init(cfg.LogLevel); err != nil {
		logx.L().Fatal("init logger", zap.Error(err))
	}
	log := logx.L().With(zap.String("component", "worker"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap", zap.Error(err))
	}
	defer cleanup()

	if *once {
		rep, err := app.Worker(nil).RunOnce(ctx, log, "once")
		if err != nil {
			cleanup()
			os.Exit(1)
		}
		for _, e := range rep.Errors {
			log.Warn("source failed", zap.String("source", string(e.Source)), zap.String("reason", e.Reason))
		}
		return
	}

	// SIGHUP forces an immediate refresh.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	trigger := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	}()

	app.Worker(trigger).Start(ctx)
}
