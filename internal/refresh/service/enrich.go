package service

import (
	"context"

	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"go.uber.org/zap"
)

// CreativeFetcher returns creatives for the ids it could resolve.
type CreativeFetcher interface {
	FetchCreatives(ctx context.Context, accessToken, resource string, adIDs []string) (map[string]provider.Creative, provider.BatchReport)
}

// DegradePolicy fills records that could not be enriched. Defaults are only
// set on fields the record does not already carry.
type DegradePolicy struct {
	Defaults map[string]any
}

func DefaultDegradePolicy() DegradePolicy {
	return DegradePolicy{Defaults: map[string]any{
		"status":           provider.Unknown,
		"effective_status": provider.Unknown,
		"format":           provider.Unknown,
		"media_url":        "",
	}}
}

// EnrichReport tells how many records got real metadata and how many fell back.
type EnrichReport struct {
	Enriched      int
	Degraded      int
	FailedBatches int
}

// Apply overlays creatives onto records in place.
func (p DegradePolicy) Apply(records []domain.Record, creatives map[string]provider.Creative) EnrichReport {
	var report EnrichReport
	for _, r := range records {
		key, ok := r.Key()
		if ok {
			if creative, found := creatives[key.EntityID]; found {
				for field, value := range creative.Fields() {
					r[field] = value
				}
				report.Enriched++
				continue
			}
		}
		for field, value := range p.Defaults {
			if _, exists := r[field]; !exists {
				r[field] = value
			}
		}
		report.Degraded++
	}
	return report
}

// Enricher attaches creative metadata. It never fails; missing data degrades
// to the policy defaults and is counted.
type Enricher struct {
	fetcher CreativeFetcher
	policy  DegradePolicy
	metrics *metrics.SyncMetrics
	log     *zap.Logger
}

func NewEnricher(fetcher CreativeFetcher, policy DegradePolicy, syncMetrics *metrics.SyncMetrics, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{fetcher: fetcher, policy: policy, metrics: syncMetrics, log: log.Named("enricher")}
}

func (e *Enricher) Enrich(ctx context.Context, accessToken, resource string, records []domain.Record) EnrichReport {
	if len(records) == 0 {
		return EnrichReport{}
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if key, ok := r.Key(); ok {
			ids = append(ids, key.EntityID)
		}
	}

	var (
		creatives map[string]provider.Creative
		batch     provider.BatchReport
	)
	if e.fetcher != nil {
		creatives, batch = e.fetcher.FetchCreatives(ctx, accessToken, resource, ids)
	}

	report := e.policy.Apply(records, creatives)
	report.FailedBatches = batch.FailedBatches
	e.metrics.AddEnrichmentDegraded(report.Degraded)

	if report.Degraded > 0 {
		e.log.Warn("enrichment degraded",
			zap.String("resource", resource),
			zap.Int("enriched", report.Enriched),
			zap.Int("degraded", report.Degraded),
			zap.Int("failed_batches", batch.FailedBatches),
			zap.Int("batches", batch.Batches),
		)
	}
	return report
}
