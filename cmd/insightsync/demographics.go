package main

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/insightsync/internal/account/domain"
	"github.com/smallbiznis/insightsync/internal/demographics"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	demoTenant  string
	demoAccount string
	demoPeriod  int
	demoRefresh bool
)

var demographicsCmd = &cobra.Command{
	Use:   "demographics",
	Short: "Print the age and gender report of an account",
	RunE:  runDemographics,
}

func init() {
	demographicsCmd.Flags().StringVar(&demoTenant, "tenant", "", "tenant id")
	demographicsCmd.Flags().StringVar(&demoAccount, "account", "", "provider ad account id")
	demographicsCmd.Flags().IntVar(&demoPeriod, "period", 30, "report period in days")
	demographicsCmd.Flags().BoolVar(&demoRefresh, "refresh", false, "fetch fresh reports before printing")
	_ = demographicsCmd.MarkFlagRequired("tenant")
	_ = demographicsCmd.MarkFlagRequired("account")
	rootCmd.AddCommand(demographicsCmd)
}

func runDemographics(cmd *cobra.Command, args []string) error {
	var (
		svc  *demographics.Service
		conn *gorm.DB
		repo accountdomain.Repository
	)
	return runOnce(cmd.Context(), demoTenant+"/"+demoAccount, func(ctx context.Context) error {
		if demoRefresh {
			req, err := runRequestFor(ctx, conn, repo, demoTenant, demoAccount)
			if err != nil {
				return err
			}
			if _, err := svc.Refresh(ctx, req); err != nil {
				return err
			}
		}
		report, err := svc.Get(ctx, demoTenant, demoAccount, demoPeriod)
		if err != nil {
			return err
		}
		if report == nil {
			return errors.New("no demographics report for this period")
		}
		return printJSON(cmd, report)
	}, fx.Options(), &svc, &conn, &repo)
}

func runRequestFor(ctx context.Context, conn *gorm.DB, repo accountdomain.Repository, tenantID, accountID string) (domain.RunRequest, error) {
	acc, err := repo.FindAccount(ctx, conn, tenantID, accountID)
	if err != nil {
		return domain.RunRequest{}, err
	}
	if acc == nil {
		return domain.RunRequest{}, accountdomain.ErrAccountNotFound
	}
	token, err := repo.FindToken(ctx, conn, tenantID, accountdomain.ProviderMeta)
	if err != nil {
		return domain.RunRequest{}, err
	}
	if token == nil {
		return domain.RunRequest{}, accountdomain.ErrTokenNotFound
	}
	return domain.RunRequest{
		TenantID:       tenantID,
		AccountID:      acc.ProviderAccountID,
		AccountName:    acc.Name,
		EncryptedToken: token.AccessToken,
	}, nil
}
