// Package demographics refreshes the age/gender breakdown reports of an account.
package demographics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/observability/logger"
	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/smallbiznis/insightsync/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidPeriod = errors.New("invalid_period")
)

// Fetcher reads the account-level age/gender breakdown for a date range.
type Fetcher interface {
	GetDemographics(ctx context.Context, accountID, accessToken, since, until string) ([]map[string]any, error)
}

type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	SyncConfig *config.SyncConfigHolder
	Fetcher    Fetcher
	Decrypter  Decrypter
	Store      storage.Store
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	syncConfig *config.SyncConfigHolder
	fetcher    Fetcher
	decrypter  Decrypter
	store      storage.Store
	metrics    *metrics.Metrics
}

// Result lists the periods that were written by a refresh.
type Result struct {
	AccountID      string    `json:"ad_account_id"`
	PeriodsFetched []int     `json:"periods_fetched"`
	FilesWritten   []string  `json:"files_written"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

func New(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Service{
		log:        log.Named("demographics"),
		clock:      clk,
		syncConfig: p.SyncConfig,
		fetcher:    p.Fetcher,
		decrypter:  p.Decrypter,
		store:      p.Store,
		metrics:    p.Metrics,
	}
}

// Refresh writes one report per configured period. A period that fails or
// has no data is skipped; only a credentials problem fails the call.
func (s *Service) Refresh(ctx context.Context, req domain.RunRequest) (*Result, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, domain.ErrInvalidTenant
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, domain.ErrInvalidAccount
	}
	accessToken, err := s.decrypter.Decrypt(req.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}

	log := logger.WithAccount(s.log, req.TenantID, req.AccountID)
	ref := referenceDate(s.clock.Now())
	until := ref.Format(domain.DateLayout)
	result := &Result{AccountID: req.AccountID, PeriodsFetched: []int{}, FilesWritten: []string{}}

	for _, period := range s.syncConfig.Get().DemographicsPeriods {
		since := ref.AddDate(0, 0, -(period - 1)).Format(domain.DateLayout)
		periodLog := log.With(zap.Int("period_days", period))

		rows, err := s.fetcher.GetDemographics(ctx, req.AccountID, accessToken, since, until)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			periodLog.Warn("demographics fetch failed", zap.Bool("provider_error", domain.IsProviderError(err)), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			periodLog.Info("no demographics data")
			continue
		}

		segments := AggregateSegments(rows)
		report := Report{
			Metadata: Metadata{
				AccountID:   req.AccountID,
				AccountName: req.AccountName,
				Period:      fmt.Sprintf("%dd", period),
				DateRange:   since + ".." + until,
				GeneratedAt: s.clock.Now().Format(time.RFC3339),
				Source:      source,
			},
			Segments: segments,
			Totals:   CalculateTotals(segments),
		}
		data, err := json.Marshal(report)
		if err != nil {
			periodLog.Error("encode demographics report", zap.Error(err))
			continue
		}
		if err := s.store.Put(ctx, domain.DemographicsKey(req.TenantID, req.AccountID, period), data); err != nil {
			periodLog.Error("write demographics report", zap.Error(err))
			continue
		}

		s.metrics.RecordDemographicsWrite(ctx, period)
		result.PeriodsFetched = append(result.PeriodsFetched, period)
		result.FilesWritten = append(result.FilesWritten, fmt.Sprintf("%dd.json", period))
		periodLog.Info("demographics written",
			zap.Int("segments", len(segments)),
			zap.Float64("spend", report.Totals.Spend),
		)
	}

	result.RefreshedAt = s.clock.Now()
	return result, nil
}

// Get reads one stored report. It returns nil without error when the report
// is absent or unreadable as JSON.
func (s *Service) Get(ctx context.Context, tenantID, accountID string, periodDays int) (*Report, error) {
	if periodDays <= 0 {
		return nil, ErrInvalidPeriod
	}
	data, err := s.store.Get(ctx, domain.DemographicsKey(tenantID, accountID, periodDays))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		s.log.Warn("malformed demographics report",
			zap.String("tenant_id", tenantID),
			zap.String("account_id", accountID),
			zap.Int("period_days", periodDays),
			zap.Error(err),
		)
		return nil, nil
	}
	return &report, nil
}

func referenceDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
