package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/smallbiznis/insightsync/internal/account/domain"
	"github.com/smallbiznis/insightsync/internal/secrets"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	accountTenant   string
	accountID       string
	accountName     string
	accountInactive bool
	accountToken    string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage ad accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an ad account and store its access token",
	Long: `Registers or updates an ad account. The access token is read from --token or
the INSIGHTSYNC_ACCESS_TOKEN environment variable and stored encrypted.`,
	RunE: runAccountAdd,
}

var accountJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent refresh jobs for an account",
	RunE:  runAccountJobs,
}

func init() {
	for _, c := range []*cobra.Command{accountAddCmd, accountJobsCmd} {
		c.Flags().StringVar(&accountTenant, "tenant", "", "tenant id")
		c.Flags().StringVar(&accountID, "account", "", "provider ad account id")
		_ = c.MarkFlagRequired("tenant")
		_ = c.MarkFlagRequired("account")
	}
	accountAddCmd.Flags().StringVar(&accountName, "name", "", "display name")
	accountAddCmd.Flags().BoolVar(&accountInactive, "inactive", false, "register without scheduling refreshes")
	accountAddCmd.Flags().StringVar(&accountToken, "token", "", "provider access token")

	accountCmd.AddCommand(accountAddCmd, accountJobsCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	token := accountToken
	if token == "" {
		token = os.Getenv("INSIGHTSYNC_ACCESS_TOKEN")
	}

	var (
		conn   *gorm.DB
		repo   domain.Repository
		cipher *secrets.Cipher
	)
	return runOnce(cmd.Context(), "", func(ctx context.Context) error {
		acc := &domain.AdAccount{
			TenantID:          accountTenant,
			ProviderAccountID: accountID,
			Name:              accountName,
			Active:            !accountInactive,
		}
		if err := repo.UpsertAccount(ctx, conn, acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if token != "" {
			encrypted, err := cipher.Encrypt(token)
			if err != nil {
				return fmt.Errorf("encrypt token: %w", err)
			}
			if err := repo.SaveToken(ctx, conn, &domain.OAuthToken{
				TenantID:    accountTenant,
				Provider:    domain.ProviderMeta,
				AccessToken: encrypted,
			}); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
		}
		saved, err := repo.FindAccount(ctx, conn, accountTenant, accountID)
		if err != nil {
			return err
		}
		if saved == nil {
			return errors.New("account not persisted")
		}
		return printJSON(cmd, saved)
	}, fx.Options(), &conn, &repo, &cipher)
}

func runAccountJobs(cmd *cobra.Command, args []string) error {
	var (
		conn *gorm.DB
		repo domain.Repository
	)
	return runOnce(cmd.Context(), "", func(ctx context.Context) error {
		acc, err := repo.FindAccount(ctx, conn, accountTenant, accountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return domain.ErrAccountNotFound
		}
		jobs, err := repo.ListJobs(ctx, conn, acc.ID, 20)
		if err != nil {
			return err
		}
		return printJSON(cmd, jobs)
	}, fx.Options(), &conn, &repo)
}
