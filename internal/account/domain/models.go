package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

const ProviderMeta = "meta"

// MaxJobErrorLength bounds the error text kept on a refresh job.
const MaxJobErrorLength = 1000

var (
	ErrAccountNotFound = errors.New("account_not_found")
	ErrTokenNotFound   = errors.New("oauth_token_not_found")
	ErrJobNotFound     = errors.New("refresh_job_not_found")
)

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobOK      JobStatus = "ok"
	JobError   JobStatus = "error"
)

// AdAccount is a provider ad account connected by a tenant.
type AdAccount struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID          string     `gorm:"size:36;not null;uniqueIndex:ux_ad_accounts_tenant_provider" json:"tenant_id"`
	ProviderAccountID string     `gorm:"size:64;not null;uniqueIndex:ux_ad_accounts_tenant_provider" json:"provider_account_id"`
	Name              string     `gorm:"not null;default:''" json:"name"`
	Active            bool       `gorm:"not null" json:"active"`
	LastRefreshAt     *time.Time `gorm:"index" json:"last_refresh_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

// OAuthToken holds the sealed long-lived provider token of a tenant.
type OAuthToken struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string     `gorm:"size:36;not null;uniqueIndex:ux_oauth_tokens_tenant_provider" json:"tenant_id"`
	Provider    string     `gorm:"size:32;not null;uniqueIndex:ux_oauth_tokens_tenant_provider" json:"provider"`
	AccessToken string     `gorm:"not null" json:"-"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

// RefreshJob records one refresh attempt of an account.
type RefreshJob struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string     `gorm:"size:36;not null;index" json:"tenant_id"`
	AdAccountID string     `gorm:"size:36;not null;index" json:"ad_account_id"`
	Status      JobStatus  `gorm:"size:16;not null" json:"status"`
	Mode        string     `gorm:"size:16;not null;default:''" json:"mode"`
	RecordCount int        `gorm:"not null;default:0" json:"record_count"`
	Error       string     `gorm:"size:1000;not null;default:''" json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`

	// Artifacts are the storage keys the run wrote, in write order.
	Artifacts datatypes.JSONSlice[string] `json:"artifacts,omitempty"`
}

// JobResult is what a finished run reports back to its job row.
type JobResult struct {
	Mode        string
	RecordCount int
	Artifacts   []string
	Err         error
}

// TruncateError renders err for storage, cut to MaxJobErrorLength runes.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := []rune(err.Error())
	if len(msg) > MaxJobErrorLength {
		msg = msg[:MaxJobErrorLength]
	}
	return string(msg)
}

func (AdAccount) TableName() string  { return "ad_accounts" }
func (OAuthToken) TableName() string { return "oauth_tokens" }
func (RefreshJob) TableName() string { return "refresh_jobs" }
