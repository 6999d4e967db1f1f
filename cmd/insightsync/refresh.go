package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/insightsync/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	refreshTenant  string
	refreshAccount string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh one account now and print the outcome",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshTenant, "tenant", "", "tenant id")
	refreshCmd.Flags().StringVar(&refreshAccount, "account", "", "provider ad account id")
	_ = refreshCmd.MarkFlagRequired("tenant")
	_ = refreshCmd.MarkFlagRequired("account")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if refreshTenant == "" || refreshAccount == "" {
		return errors.New("--tenant and --account are required")
	}

	var sched *scheduler.Scheduler
	return runOnce(cmd.Context(), refreshTenant+"/"+refreshAccount, func(ctx context.Context) error {
		outcome, err := sched.RefreshAccount(ctx, refreshTenant, refreshAccount)
		if err != nil {
			return err
		}
		return printJSON(cmd, outcome)
	}, schedulerOnly(), &sched)
}
