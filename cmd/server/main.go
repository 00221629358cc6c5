package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/clubkit/internal/app"
	"github.com/dmitrymomot/clubkit/pkg/config"
	"github.com/dmitrymomot/clubkit/pkg/httpserver"
	"github.com/dmitrymomot/clubkit/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg app.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	log := app.NewLogger(cfg)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []httpserver.Option{
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func(context.Context) { a.Close() }),
	}
	if cfg.MigrateOnStart {
		opts = append(opts, httpserver.WithStartHook(a.Migrate))
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, opts...)
	if err := srv.Run(ctx, a.Router()); err != nil {
		log.Error("server stopped", logger.Error(err))
		return err
	}
	return nil
}
