package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/clubkit/internal/app"
	"github.com/dmitrymomot/clubkit/pkg/config"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// job runs against a fully wired App and returns the report to print.
type job func(ctx context.Context, a *app.App) (any, error)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "clubctl",
		Short:         "Wine club billing jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		reconcileCommand(),
		syncAccountsCommand(),
		drainPricesCommand(),
		migrateCommand(),
	)
	return root
}

func reconcileCommand() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mirror every connected account's subscriptions from Stripe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, func(cfg *app.Config) {
				if concurrency > 0 {
					cfg.ReconcileConcurrency = concurrency
				}
			}, func(ctx context.Context, a *app.App) (any, error) {
				return a.Subscriptions.SyncAll(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "businesses reconciled in parallel (default RECONCILE_CONCURRENCY)")
	return cmd
}

func syncAccountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-accounts",
		Short: "Recompute every connected business status from Stripe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, nil, func(ctx context.Context, a *app.App) (any, error) {
				return a.Merchants.SyncAll(ctx, merchant.ReasonScheduledSync)
			})
		},
	}
}

func drainPricesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drain-prices",
		Short: "Apply due dynamic plan prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, nil, func(ctx context.Context, a *app.App) (any, error) {
				return a.Catalog.DrainPrices(ctx)
			})
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg)
			ctx := cmd.Context()

			pool, err := app.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := &app.App{Config: cfg, Log: log, Pool: pool}
			if err := a.Migrate(ctx); err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), map[string]string{"status": "migrated"})
		},
	}
}

func loadConfig(adjust func(*app.Config)) (app.Config, error) {
	var cfg app.Config
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	return cfg, nil
}

// runJob wires the App, runs fn and prints its report. Per-item failures
// live in the report; only setup errors reach the exit code.
func runJob(cmd *cobra.Command, adjust func(*app.Config), fn job) error {
	cfg, err := loadConfig(adjust)
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg)
	ctx := logger.WithActorID(logger.WithTrigger(cmd.Context(), "cron"), "clubctl:"+cmd.Name())

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := fn(ctx, a)
	if err != nil {
		log.ErrorContext(ctx, "job failed", logger.Component(cmd.Name()), logger.Error(err))
		return err
	}
	return writeReport(cmd.OutOrStdout(), report)
}

func writeReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
