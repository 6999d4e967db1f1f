package main

import (
	"github.com/smallbiznis/insightsync/internal/account"
	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/demographics"
	"github.com/smallbiznis/insightsync/internal/migration"
	"github.com/smallbiznis/insightsync/internal/observability"
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	refreshservice "github.com/smallbiznis/insightsync/internal/refresh/service"
	"github.com/smallbiznis/insightsync/internal/refresh/transform"
	"github.com/smallbiznis/insightsync/internal/scheduler"
	"github.com/smallbiznis/insightsync/internal/secrets"
	"github.com/smallbiznis/insightsync/internal/storage"
	"github.com/smallbiznis/insightsync/pkg/db"
	"go.uber.org/fx"
)

// syncer runs the refresh scheduler without the ops HTTP server.
func main() {
	app := fx.New(
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

		scheduler.Module,
	)
	app.Run()
}
