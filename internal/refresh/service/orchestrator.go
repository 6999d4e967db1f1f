package service

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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracerName = "github.com/smallbiznis/insightsync/internal/refresh"

// InsightsFetcher is the provider surface a refresh needs.
type InsightsFetcher interface {
	GetInsightsDaily(ctx context.Context, accountID, accessToken, since, until string, limit int) ([]map[string]any, error)
	CreativeFetcher
}

// TokenDecrypter opens the stored access token.
type TokenDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	SyncConfig  *config.SyncConfigHolder
	Fetcher     InsightsFetcher
	Store       storage.Store
	Decrypter   TokenDecrypter
	Transformer domain.Transformer
	Validator   domain.Validator
	SyncMetrics *metrics.SyncMetrics `optional:"true"`
	Metrics     *metrics.Metrics     `optional:"true"`
}

// Orchestrator runs the baseline/tail refresh of one account at a time.
type Orchestrator struct {
	log         *zap.Logger
	clock       clock.Clock
	syncConfig  *config.SyncConfigHolder
	fetcher     InsightsFetcher
	enricher    *Enricher
	store       storage.Store
	decrypter   TokenDecrypter
	transformer domain.Transformer
	validator   domain.Validator
	syncMetrics *metrics.SyncMetrics
	metrics     *metrics.Metrics
}

func New(p Params) *Orchestrator {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Orchestrator{
		log:         log.Named("refresh"),
		clock:       clk,
		syncConfig:  p.SyncConfig,
		fetcher:     p.Fetcher,
		enricher:    NewEnricher(p.Fetcher, DefaultDegradePolicy(), p.SyncMetrics, log),
		store:       p.Store,
		decrypter:   p.Decrypter,
		transformer: p.Transformer,
		validator:   p.Validator,
		syncMetrics: p.SyncMetrics,
		metrics:     p.Metrics,
	}
}

// Manifest indexes the shards written by a run.
type Manifest struct {
	Version       string                   `json:"version"`
	AdsCount      int                      `json:"ads_count"`
	Periods       []int                    `json:"periods"`
	RefreshMode   domain.Mode              `json:"refresh_mode"`
	BaselineDays  int                      `json:"baseline_days"`
	ReferenceDate string                   `json:"reference_date"`
	Shards        map[string]ManifestShard `json:"shards"`
}

type ManifestShard struct {
	Path string `json:"path"`
}

// Run refreshes one account. Provider errors abort before anything is
// written; enrichment problems never abort. A validation failure leaves the
// raw dataset updated and the shards untouched.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (outcome *domain.Outcome, err error) {
	started := o.clock.Now()
	log := logger.WithAccount(o.log, req.TenantID, req.AccountID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "refresh.run")
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("account_id", req.AccountID),
	)
	defer span.End()

	mode := domain.Mode("")
	defer func() {
		result := metrics.OutcomeSuccess
		if err != nil {
			result = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.syncMetrics.ObserveRefresh(string(mode), result, o.clock.Now().Sub(started))
	}()

	fail := func(stage domain.Stage, cause error) error {
		log.Error("refresh failed",
			zap.String("stage", string(stage)),
			zap.String("mode", string(mode)),
			zap.Bool("provider_error", domain.IsProviderError(cause)),
			zap.Error(cause),
		)
		return &domain.RefreshError{TenantID: req.TenantID, AccountID: req.AccountID, Stage: stage, Err: cause}
	}

	if strings.TrimSpace(req.TenantID) == "" {
		return nil, fail(domain.StageCredentials, domain.ErrInvalidTenant)
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, fail(domain.StageCredentials, domain.ErrInvalidAccount)
	}
	accessToken, err := o.decrypter.Decrypt(req.EncryptedToken)
	if err != nil {
		return nil, fail(domain.StageCredentials, err)
	}

	cfg := o.syncConfig.Get()
	ref := ReferenceDate(started)
	rawKey := domain.RawDatasetKey(req.TenantID, req.AccountID)

	prior := o.loadPrior(ctx, log, rawKey)
	mode, windowDays := DetermineMode(prior, ref, cfg)
	window := WindowEnding(ref, windowDays)
	span.SetAttributes(attribute.String("mode", string(mode)), attribute.Int("window_days", windowDays))
	log.Info("refresh started",
		zap.String("mode", string(mode)),
		zap.Int("window_days", windowDays),
		zap.String("since", window.SinceString()),
		zap.String("until", window.UntilString()),
	)

	fetched, err := o.fetch(ctx, log, req.AccountID, accessToken, window, cfg)
	if err != nil {
		return nil, fail(domain.StageFetch, err)
	}

	enrichReport := o.enricher.Enrich(ctx, accessToken, req.AccountID, fetched)
	for _, r := range fetched {
		r["account_name"] = req.AccountName
		r["account_id"] = req.AccountID
	}

	var existing []domain.Record
	if mode == domain.ModeTail && prior != nil {
		existing = prior.DailyAds
	}
	prior = nil
	merged, stats := Upsert(existing, fetched, ref, cfg.RetentionDays)
	existing, fetched = nil, nil
	o.metrics.RecordMerge(ctx, string(mode), len(merged), stats.Pruned)
	log.Info("records merged",
		zap.String("stage", "merge"),
		zap.Int("updated", stats.Updated),
		zap.Int("added", stats.Added),
		zap.Int("pruned", stats.Pruned),
		zap.Int("skipped", stats.Skipped),
		zap.Int("total", len(merged)),
	)

	recordCount := len(merged)
	uniqueAds := UniqueEntities(merged)
	artifacts := make([]string, 0, 5)

	rawDataset := domain.Dataset{
		Metadata: &domain.Metadata{
			Timestamp:        o.clock.Now(),
			ReferenceDate:    ref.Format(domain.DateLayout),
			Mode:             mode,
			DaysFetched:      windowDays,
			TotalDailyRows:   recordCount,
			UniqueAds:        uniqueAds,
			BaselineDays:     cfg.RetentionDays,
			TailBackfillDays: cfg.TailWindowDays,
		},
		DailyAds: merged,
	}
	if err := o.putJSON(ctx, rawKey, rawDataset); err != nil {
		return nil, fail(domain.StagePersistRaw, err)
	}
	artifacts = append(artifacts, domain.RawDatasetFile)
	rawDataset = domain.Dataset{}

	shards, err := o.transformer.Transform(merged, ref, req.AccountID, req.AccountName)
	if err != nil {
		return nil, fail(domain.StageTransform, err)
	}
	merged = nil
	if problems := o.validator.Validate(shards); len(problems) > 0 {
		return nil, fail(domain.StageValidate, &domain.ValidationError{Problems: problems})
	}

	for _, shard := range []struct {
		file string
		data any
	}{
		{domain.MetaShardFile, shards.Meta},
		{domain.AggShardFile, shards.Agg},
		{domain.SummaryFile, shards.Summary},
	} {
		if err := o.putJSON(ctx, domain.OptimizedKey(req.TenantID, req.AccountID, shard.file), shard.data); err != nil {
			return nil, fail(domain.StagePersistShards, fmt.Errorf("%s: %w", shard.file, err))
		}
		artifacts = append(artifacts, shard.file)
	}

	refreshedAt := o.clock.Now()
	manifest := Manifest{
		Version:       refreshedAt.Format(time.RFC3339Nano),
		AdsCount:      shards.AdsCount,
		Periods:       shards.Periods,
		RefreshMode:   mode,
		BaselineDays:  cfg.RetentionDays,
		ReferenceDate: ref.Format(domain.DateLayout),
		Shards: map[string]ManifestShard{
			"meta":    {Path: domain.MetaShardFile},
			"agg":     {Path: domain.AggShardFile},
			"summary": {Path: domain.SummaryFile},
		},
	}
	shards = domain.Shards{}
	if err := o.putJSON(ctx, domain.OptimizedKey(req.TenantID, req.AccountID, domain.ManifestFile), manifest); err != nil {
		return nil, fail(domain.StagePersistManifest, err)
	}
	artifacts = append(artifacts, domain.ManifestFile)

	outcome = &domain.Outcome{
		TenantID:    req.TenantID,
		AccountID:   req.AccountID,
		Mode:        mode,
		WindowDays:  windowDays,
		Since:       window.SinceString(),
		Until:       window.UntilString(),
		RecordCount: recordCount,
		UniqueAds:   uniqueAds,
		Degraded:    enrichReport.Degraded,
		Artifacts:   artifacts,
		RefreshedAt: refreshedAt,
	}
	log.Info("refresh completed",
		zap.String("mode", string(mode)),
		zap.Int("window_days", windowDays),
		zap.Int("records", recordCount),
		zap.Int("unique_ads", uniqueAds),
		zap.Int("degraded", enrichReport.Degraded),
		zap.Duration("duration", refreshedAt.Sub(started)),
	)
	return outcome, nil
}

// loadPrior returns nil when there is no usable prior dataset: missing,
// unreadable, or malformed all force a baseline.
func (o *Orchestrator) loadPrior(ctx context.Context, log *zap.Logger, key string) *domain.Dataset {
	data, err := o.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("no prior dataset", zap.String("stage", string(domain.StageLoad)))
		return nil
	}
	if err != nil {
		log.Warn("prior dataset unreadable, forcing baseline", zap.String("stage", string(domain.StageLoad)), zap.Error(err))
		return nil
	}

	var prior domain.Dataset
	if err := json.Unmarshal(data, &prior); err != nil {
		log.Warn("prior dataset malformed, forcing baseline", zap.String("stage", string(domain.StageLoad)), zap.Error(err))
		return nil
	}
	if prior.Metadata == nil || prior.DailyAds == nil {
		log.Warn("prior dataset incomplete, forcing baseline", zap.String("stage", string(domain.StageLoad)))
		return nil
	}
	return &prior
}

// fetch reads the window chunk by chunk, in order. Chunks are sequential to
// keep each provider query small enough to finish before its read timeout.
func (o *Orchestrator) fetch(ctx context.Context, log *zap.Logger, accountID, accessToken string, window domain.FetchWindow, cfg config.SyncConfig) ([]domain.Record, error) {
	chunks := SplitWindow(window, cfg.ChunkDays)
	var out []domain.Record
	for i, chunk := range chunks {
		rows, err := o.fetcher.GetInsightsDaily(ctx, accountID, accessToken, chunk.SinceString(), chunk.UntilString(), cfg.InsightsPageLimit)
		if err != nil {
			return nil, fmt.Errorf("chunk %s..%s: %w", chunk.SinceString(), chunk.UntilString(), err)
		}
		for _, row := range rows {
			out = append(out, domain.Record(row))
		}
		if len(chunks) > 1 {
			log.Info("chunk fetched",
				zap.String("stage", string(domain.StageFetch)),
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.String("since", chunk.SinceString()),
				zap.String("until", chunk.UntilString()),
				zap.Int("rows", len(rows)),
			)
		}
	}
	return out, nil
}

func (o *Orchestrator) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return o.store.Put(ctx, key, data)
}
