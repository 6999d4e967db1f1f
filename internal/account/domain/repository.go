package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	UpsertAccount(ctx context.Context, db *gorm.DB, account *AdAccount) error
	FindAccount(ctx context.Context, db *gorm.DB, tenantID, providerAccountID string) (*AdAccount, error)
	ListDueAccounts(ctx context.Context, db *gorm.DB, refreshedBefore time.Time, limit int) ([]*AdAccount, error)
	MarkRefreshed(ctx context.Context, db *gorm.DB, accountID string, at time.Time) error

	SaveToken(ctx context.Context, db *gorm.DB, token *OAuthToken) error
	FindToken(ctx context.Context, db *gorm.DB, tenantID, provider string) (*OAuthToken, error)

	CreateJob(ctx context.Context, db *gorm.DB, job *RefreshJob) error
	StartJob(ctx context.Context, db *gorm.DB, jobID string, at time.Time) error
	FinishJob(ctx context.Context, db *gorm.DB, jobID string, result JobResult, at time.Time) error
	ListJobs(ctx context.Context, db *gorm.DB, adAccountID string, limit int) ([]*RefreshJob, error)
}
