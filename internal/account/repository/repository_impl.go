package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/insightsync/internal/account/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// AutoMigrate creates the account tables from the models. Postgres uses the
// embedded SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.AdAccount{}, &domain.OAuthToken{}, &domain.RefreshJob{})
}

func (r *repo) UpsertAccount(ctx context.Context, db *gorm.DB, account *domain.AdAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.ProviderAccountID = strings.TrimSpace(account.ProviderAccountID)
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(account).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, tenantID, providerAccountID string) (*domain.AdAccount, error) {
	var account domain.AdAccount
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider_account_id = ?", tenantID, providerAccountID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListDueAccounts returns active accounts never refreshed or last refreshed
// before refreshedBefore, never-refreshed first.
func (r *repo) ListDueAccounts(ctx context.Context, db *gorm.DB, refreshedBefore time.Time, limit int) ([]*domain.AdAccount, error) {
	var accounts []*domain.AdAccount
	stmt := db.WithContext(ctx).
		Model(&domain.AdAccount{}).
		Where("active = ?", true).
		Where("(last_refresh_at IS NULL OR last_refresh_at < ?)", refreshedBefore).
		Order("CASE WHEN last_refresh_at IS NULL THEN 0 ELSE 1 END, last_refresh_at ASC, id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) MarkRefreshed(ctx context.Context, db *gorm.DB, accountID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.AdAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]any{"last_refresh_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *repo) SaveToken(ctx context.Context, db *gorm.DB, token *domain.OAuthToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.Provider == "" {
		token.Provider = domain.ProviderMeta
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "expires_at", "updated_at"}),
	}).Create(token).Error
}

func (r *repo) FindToken(ctx context.Context, db *gorm.DB, tenantID, provider string) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repo) CreateJob(ctx context.Context, db *gorm.DB, job *domain.RefreshJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobQueued
	}
	return db.WithContext(ctx).Create(job).Error
}

func (r *repo) StartJob(ctx context.Context, db *gorm.DB, jobID string, at time.Time) error {
	return r.updateJob(ctx, db, jobID, map[string]any{
		"status":     domain.JobRunning,
		"started_at": at,
	})
}

func (r *repo) FinishJob(ctx context.Context, db *gorm.DB, jobID string, result domain.JobResult, at time.Time) error {
	status := domain.JobOK
	if result.Err != nil {
		status = domain.JobError
	}
	return r.updateJob(ctx, db, jobID, map[string]any{
		"status":       status,
		"mode":         result.Mode,
		"record_count": result.RecordCount,
		"error":        domain.TruncateError(result.Err),
		"artifacts":    datatypes.NewJSONSlice(result.Artifacts),
		"finished_at":  at,
	})
}

func (r *repo) updateJob(ctx context.Context, db *gorm.DB, jobID string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.RefreshJob{}).
		Where("id = ?", jobID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *repo) ListJobs(ctx context.Context, db *gorm.DB, adAccountID string, limit int) ([]*domain.RefreshJob, error) {
	var jobs []*domain.RefreshJob
	stmt := db.WithContext(ctx).
		Where("ad_account_id = ?", adAccountID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
