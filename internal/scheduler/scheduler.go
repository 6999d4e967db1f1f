// Package scheduler refreshes connected ad accounts on an interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	accountdomain "github.com/smallbiznis/insightsync/internal/account/domain"
	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/demographics"
	"github.com/smallbiznis/insightsync/internal/observability/logger"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig      = errors.New("invalid_scheduler_config")
	ErrRefreshInProgress  = errors.New("refresh_in_progress")
	ErrAccountUnavailable = errors.New("account_unavailable")
)

// DemographicsRefresher is run after a successful dataset refresh.
type DemographicsRefresher interface {
	Refresh(ctx context.Context, req domain.RunRequest) (*demographics.Result, error)
}

// Quota decides whether a tenant may refresh again.
type Quota interface {
	Allow(ctx context.Context, tenantID string) error
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Repo         accountdomain.Repository
	Refresher    domain.Service
	Demographics *demographics.Service    `optional:"true"`
	Locker       *ratelimit.Locker       `optional:"true"`
	Quota        *ratelimit.RefreshQuota `optional:"true"`
	Config       Config                  `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	repo         accountdomain.Repository
	refresher    domain.Service
	demographics DemographicsRefresher
	locker       Locker
	quota        Quota
	local        *localLocks
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Refresher == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		repo:      p.Repo,
		refresher: p.Refresher,
		local:     newLocalLocks(),
	}
	if p.Demographics != nil {
		s.demographics = p.Demographics
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	if p.Quota != nil {
		s.quota = p.Quota
	}
	return s, nil
}

// RunOnce refreshes every due account, at most cfg.Concurrency at a time.
// Accounts already being refreshed elsewhere are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()
	accounts, err := s.repo.ListDueAccounts(ctx, s.db, now.Add(-s.cfg.RefreshInterval), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil
	}

	run := s.newJobRun(len(accounts))
	s.logJobStart(run)
	defer s.logJobFinish(run)

	var (
		mu     sync.Mutex
		jobErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			_, err := s.refreshAccount(gctx, acc)
			switch {
			case err == nil:
				run.AddProcessed()
			case errors.Is(err, ErrRefreshInProgress), errors.Is(err, ratelimit.ErrQuotaExceeded):
				run.AddSkipped()
			default:
				run.IncError()
				mu.Lock()
				jobErr = errors.Join(jobErr, err)
				mu.Unlock()
			}
			// One account failing must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
	return jobErr
}

// RunForever polls until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		if err := s.clock.Sleep(ctx, s.cfg.RunInterval); err != nil {
			return
		}
	}
}

// RefreshAccount runs one refresh now, regardless of when the account was
// last refreshed.
func (s *Scheduler) RefreshAccount(ctx context.Context, tenantID, providerAccountID string) (*domain.Outcome, error) {
	acc, err := s.repo.FindAccount(ctx, s.db, tenantID, providerAccountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return s.refreshAccount(ctx, acc)
}

func (s *Scheduler) refreshAccount(ctx context.Context, acc *accountdomain.AdAccount) (*domain.Outcome, error) {
	log := logger.WithAccount(s.log, acc.TenantID, acc.ProviderAccountID)

	release, ok, err := s.acquire(ctx, ratelimit.RefreshLockKey(acc.TenantID, acc.ProviderAccountID))
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		log.Info("refresh already running, skipped")
		return nil, ErrRefreshInProgress
	}
	defer release()

	if s.quota != nil {
		if err := s.quota.Allow(ctx, acc.TenantID); err != nil {
			return nil, err
		}
	}

	token, err := s.repo.FindToken(ctx, s.db, acc.TenantID, accountdomain.ProviderMeta)
	if err != nil {
		return nil, err
	}
	if token == nil {
		log.Warn("no provider token for tenant")
		return nil, fmt.Errorf("%w: %w", ErrAccountUnavailable, accountdomain.ErrTokenNotFound)
	}

	job := &accountdomain.RefreshJob{TenantID: acc.TenantID, AdAccountID: acc.ID}
	if err := s.repo.CreateJob(ctx, s.db, job); err != nil {
		return nil, fmt.Errorf("create refresh job: %w", err)
	}
	if err := s.repo.StartJob(ctx, s.db, job.ID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("start refresh job: %w", err)
	}
	log = log.With(zap.String("job_id", job.ID))

	req := domain.RunRequest{
		TenantID:       acc.TenantID,
		AccountID:      acc.ProviderAccountID,
		AccountName:    acc.Name,
		EncryptedToken: token.AccessToken,
	}
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	outcome, runErr := s.refresher.Run(runCtx, req)
	result := accountdomain.JobResult{Err: runErr}
	if outcome != nil {
		result.Mode = string(outcome.Mode)
		result.RecordCount = outcome.RecordCount
		result.Artifacts = outcome.Artifacts
	}

	if runErr == nil {
		if s.demographics != nil {
			if _, err := s.demographics.Refresh(runCtx, req); err != nil {
				log.Warn("demographics refresh failed", zap.Error(err))
			}
		}
		if err := s.repo.MarkRefreshed(ctx, s.db, acc.ID, s.clock.Now()); err != nil {
			log.Warn("mark account refreshed", zap.Error(err))
		}
	}

	// Finish on a context that outlives a timed out run.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer finishCancel()
	if err := s.repo.FinishJob(finishCtx, s.db, job.ID, result, s.clock.Now()); err != nil {
		log.Warn("finish refresh job", zap.Error(err))
	}

	if runErr != nil {
		return nil, runErr
	}
	return outcome, nil
}
