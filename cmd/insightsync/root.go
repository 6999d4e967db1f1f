package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/smallbiznis/insightsync/internal/account"
	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/demographics"
	"github.com/smallbiznis/insightsync/internal/migration"
	"github.com/smallbiznis/insightsync/internal/observability"
	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	refreshservice "github.com/smallbiznis/insightsync/internal/refresh/service"
	"github.com/smallbiznis/insightsync/internal/refresh/transform"
	"github.com/smallbiznis/insightsync/internal/scheduler"
	"github.com/smallbiznis/insightsync/internal/secrets"
	"github.com/smallbiznis/insightsync/internal/storage"
	"github.com/smallbiznis/insightsync/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "insightsync",
	Short: "Sync ad performance insights into columnar shards",
	Long: `insightsync pulls daily ad insights from the provider, merges them into a
per-account dataset and writes the shards dashboards read from.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// coreModules is the graph shared by every command. It has no HTTP server
// and does not start the scheduler loop.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,
		ratelimit.Module,
		provider.Module,
		storage.Module,
		secrets.Module,
		transform.Module,
		refreshservice.Module,
		demographics.Module,
		account.Module,
	)
}

// runOnce starts the core graph, populates targets and runs fn once. The
// run's metrics are pushed under a non-empty instance when a Pushgateway
// is configured.
func runOnce(ctx context.Context, instance string, fn func(context.Context) error, extra fx.Option, targets ...any) error {
	var (
		pusher *metrics.Pusher
		log    *zap.Logger
	)
	app := fx.New(
		coreModules(),
		extra,
		fx.Populate(append(targets, &pusher, &log)...),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	if instance != "" {
		if err := pusher.Push(ctx, instance); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
	}
	if err := app.Stop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// schedulerOnly provides the scheduler without the background loop.
func schedulerOnly() fx.Option {
	return fx.Provide(scheduler.ProvideConfig, scheduler.New)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
