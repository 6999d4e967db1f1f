package main

import (
	"github.com/smallbiznis/insightsync/internal/scheduler"
	"github.com/smallbiznis/insightsync/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the ops HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			coreModules(),
			scheduler.Module,
			server.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
