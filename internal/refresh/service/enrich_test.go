package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubCreatives struct {
	creatives map[string]provider.Creative
	report    provider.BatchReport
	gotIDs    []string
}

func (s *stubCreatives) FetchCreatives(_ context.Context, _, _ string, adIDs []string) (map[string]provider.Creative, provider.BatchReport) {
	s.gotIDs = append(s.gotIDs, adIDs...)
	return s.creatives, s.report
}

func TestEnricherDegradesMissingCreatives(t *testing.T) {
	fetcher := &stubCreatives{
		creatives: map[string]provider.Creative{
			"a": {Status: "ACTIVE", EffectiveStatus: "ACTIVE", Format: provider.FormatVideo, MediaURL: "https://cdn/a.mp4"},
		},
		report: provider.BatchReport{Batches: 2, FailedBatches: 1, Errors: []error{errors.New("boom")}},
	}
	records := []domain.Record{
		rec("a", "2024-03-30", "1"),
		rec("b", "2024-03-30", "1"),
		{"ad_id": "c", "date_start": "2024-03-30", "format": "IMAGE"},
	}

	report := NewEnricher(fetcher, DefaultDegradePolicy(), nil, zap.NewNop()).Enrich(context.Background(), "tok", "act_1", records)

	assert.Equal(t, EnrichReport{Enriched: 1, Degraded: 2, FailedBatches: 1}, report)
	assert.Equal(t, []string{"a", "b", "c"}, fetcher.gotIDs)
	assert.Equal(t, provider.FormatVideo, records[0]["format"])
	assert.Equal(t, "https://cdn/a.mp4", records[0]["media_url"])
	assert.Equal(t, provider.Unknown, records[1]["status"])
	assert.Equal(t, "", records[1]["media_url"])
	assert.Equal(t, "IMAGE", records[2]["format"], "existing fields are kept")
}

func TestEnricherWithoutFetcherDegradesEverything(t *testing.T) {
	records := []domain.Record{rec("a", "2024-03-30", "1")}
	report := NewEnricher(nil, DefaultDegradePolicy(), nil, nil).Enrich(context.Background(), "tok", "act_1", records)
	assert.Equal(t, 1, report.Degraded)
	assert.Equal(t, provider.Unknown, records[0]["effective_status"])
}

func TestEnricherNoRecords(t *testing.T) {
	fetcher := &stubCreatives{}
	report := NewEnricher(fetcher, DefaultDegradePolicy(), nil, nil).Enrich(context.Background(), "tok", "act_1", nil)
	assert.Zero(t, report)
	assert.Nil(t, fetcher.gotIDs)
}
