package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/provider"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/smallbiznis/insightsync/internal/refresh/transform"
	"github.com/smallbiznis/insightsync/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fetchCall struct {
	since, until string
}

type fakeFetcher struct {
	mu        sync.Mutex
	rows      map[string][]map[string]any // keyed by chunk since
	err       error
	calls     []fetchCall
	creatives map[string]provider.Creative
	report    provider.BatchReport
}

func (f *fakeFetcher) GetInsightsDaily(_ context.Context, _, _, since, until string, _ int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{since: since, until: until})
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[since], nil
}

func (f *fakeFetcher) FetchCreatives(_ context.Context, _, _ string, _ []string) (map[string]provider.Creative, provider.BatchReport) {
	return f.creatives, f.report
}

type fakeDecrypter struct{}

func (fakeDecrypter) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", errors.New("empty_token")
	}
	return "plain-" + ciphertext, nil
}

type rejectAll struct{}

func (rejectAll) Validate(domain.Shards) []string { return []string{"agg length mismatch"} }

type harness struct {
	orchestrator *Orchestrator
	fetcher      *fakeFetcher
	store        storage.Store
}

func newHarness(t *testing.T, fetcher *fakeFetcher, validator domain.Validator) *harness {
	t.Helper()
	store := storage.NewLocalStore(afero.NewMemMapFs(), "/data")
	if validator == nil {
		validator = transform.NewValidator()
	}
	o := New(Params{
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)),
		SyncConfig:  config.NewStaticSyncConfigHolder(config.DefaultSyncConfig()),
		Fetcher:     fetcher,
		Store:       store,
		Decrypter:   fakeDecrypter{},
		Transformer: transform.NewColumnar(),
		Validator:   validator,
	})
	return &harness{orchestrator: o, fetcher: fetcher, store: store}
}

func (h *harness) loadRaw(t *testing.T) domain.Dataset {
	t.Helper()
	data, err := h.store.Get(context.Background(), domain.RawDatasetKey("t1", "act_1"))
	require.NoError(t, err)
	var ds domain.Dataset
	require.NoError(t, json.Unmarshal(data, &ds))
	return ds
}

func request() domain.RunRequest {
	return domain.RunRequest{TenantID: "t1", AccountID: "act_1", AccountName: "Shop", EncryptedToken: "sealed"}
}

func insightRow(adID, date, spend string) map[string]any {
	return map[string]any{"ad_id": adID, "date_start": date, "spend": spend, "impressions": "100"}
}

func TestRunBaselineWithPartialEnrichment(t *testing.T) {
	rows := make([]map[string]any, 0, 5)
	creatives := map[string]provider.Creative{}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("ad%d", i)
		rows = append(rows, insightRow(id, "2024-03-31", "1.5"))
		if i < 5 {
			creatives[id] = provider.Creative{Status: "ACTIVE", EffectiveStatus: "ACTIVE", Format: provider.FormatImage}
		}
	}
	fetcher := &fakeFetcher{
		rows:      map[string][]map[string]any{"2024-03-03": rows},
		creatives: creatives,
		report:    provider.BatchReport{Batches: 2, FailedBatches: 1},
	}
	h := newHarness(t, fetcher, nil)

	outcome, err := h.orchestrator.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeBaseline, outcome.Mode)
	assert.Equal(t, 90, outcome.WindowDays)
	assert.Equal(t, 5, outcome.RecordCount)
	assert.Equal(t, 5, outcome.UniqueAds)
	assert.Equal(t, 1, outcome.Degraded)
	assert.Equal(t, "2024-01-03", outcome.Since)
	assert.Equal(t, "2024-04-01", outcome.Until)
	assert.Equal(t, []string{
		domain.RawDatasetFile, domain.MetaShardFile, domain.AggShardFile, domain.SummaryFile, domain.ManifestFile,
	}, outcome.Artifacts)

	assert.Equal(t, []fetchCall{
		{"2024-01-03", "2024-02-01"},
		{"2024-02-02", "2024-03-02"},
		{"2024-03-03", "2024-04-01"},
	}, fetcher.calls)

	raw := h.loadRaw(t)
	assert.Equal(t, domain.ModeBaseline, raw.Metadata.Mode)
	assert.Equal(t, "2024-04-01", raw.Metadata.ReferenceDate)
	assert.Equal(t, 5, raw.Metadata.TotalDailyRows)
	for _, r := range raw.DailyAds {
		assert.Equal(t, "Shop", r["account_name"])
		if r["ad_id"] == "ad5" {
			assert.Equal(t, provider.Unknown, r["status"])
			assert.Equal(t, provider.Unknown, r["format"])
			assert.Equal(t, "", r["media_url"])
		} else {
			assert.Equal(t, provider.FormatImage, r["format"])
		}
	}

	data, err := h.store.Get(context.Background(), domain.OptimizedKey("t1", "act_1", domain.ManifestFile))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, 5, manifest.AdsCount)
	assert.Equal(t, domain.ModeBaseline, manifest.RefreshMode)
	assert.Equal(t, domain.MetaShardFile, manifest.Shards["meta"].Path)
}

func TestRunTailMergesPriorDataset(t *testing.T) {
	fetcher := &fakeFetcher{
		rows: map[string][]map[string]any{
			"2024-03-30": {insightRow("a", "2024-03-30", "15"), insightRow("b", "2024-03-31", "2")},
		},
	}
	h := newHarness(t, fetcher, nil)

	prior := domain.Dataset{
		Metadata: &domain.Metadata{ReferenceDate: "2024-03-22", Mode: domain.ModeBaseline},
		DailyAds: []domain.Record{
			{"ad_id": "a", "date_start": "2023-12-01", "spend": "3"},
			{"ad_id": "a", "date_start": "2024-03-20", "spend": "4"},
			{"ad_id": "a", "date_start": "2024-03-30", "spend": "10"},
		},
	}
	data, err := json.Marshal(prior)
	require.NoError(t, err)
	require.NoError(t, h.store.Put(context.Background(), domain.RawDatasetKey("t1", "act_1"), data))

	outcome, err := h.orchestrator.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeTail, outcome.Mode)
	assert.Equal(t, 3, outcome.WindowDays)
	assert.Equal(t, []fetchCall{{"2024-03-30", "2024-04-01"}}, fetcher.calls)
	assert.Equal(t, 3, outcome.RecordCount)
	assert.Equal(t, 2, outcome.UniqueAds)

	raw := h.loadRaw(t)
	require.Len(t, raw.DailyAds, 3)
	assert.Equal(t, "2024-03-20", raw.DailyAds[0]["date_start"])
	assert.Equal(t, "15", raw.DailyAds[1]["spend"])
	assert.Equal(t, domain.ModeTail, raw.Metadata.Mode)
}

func TestRunMalformedPriorForcesBaseline(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, nil)
	require.NoError(t, h.store.Put(context.Background(), domain.RawDatasetKey("t1", "act_1"), []byte("{not json")))

	outcome, err := h.orchestrator.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, domain.ModeBaseline, outcome.Mode)
	assert.Zero(t, outcome.RecordCount)
}

func TestRunProviderErrorWritesNothing(t *testing.T) {
	fetcher := &fakeFetcher{err: &provider.APIError{Endpoint: "insights", StatusCode: http.StatusInternalServerError, Attempts: 4, Retryable: true}}
	h := newHarness(t, fetcher, nil)

	outcome, err := h.orchestrator.Run(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, outcome)

	stage, ok := domain.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageFetch, stage)
	assert.True(t, domain.IsProviderError(err))
	assert.Len(t, fetcher.calls, 1, "later chunks are not attempted")

	_, err = h.store.Get(context.Background(), domain.RawDatasetKey("t1", "act_1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunValidationFailureKeepsRawOnly(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]map[string]any{
		"2024-03-03": {insightRow("a", "2024-03-31", "1")},
	}}
	h := newHarness(t, fetcher, rejectAll{})

	_, err := h.orchestrator.Run(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"agg length mismatch"}, validationErr.Problems)

	assert.Len(t, h.loadRaw(t).DailyAds, 1)
	_, err = h.store.Get(context.Background(), domain.OptimizedKey("t1", "act_1", domain.MetaShardFile))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.store.Get(context.Background(), domain.OptimizedKey("t1", "act_1", domain.ManifestFile))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunRejectsBadRequests(t *testing.T) {
	fetcher := &fakeFetcher{}
	h := newHarness(t, fetcher, nil)

	_, err := h.orchestrator.Run(context.Background(), domain.RunRequest{AccountID: "act_1", EncryptedToken: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = h.orchestrator.Run(context.Background(), domain.RunRequest{TenantID: "t1", EncryptedToken: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = h.orchestrator.Run(context.Background(), domain.RunRequest{TenantID: "t1", AccountID: "act_1"})
	stage, _ := domain.StageOf(err)
	assert.Equal(t, domain.StageCredentials, stage)
	assert.Empty(t, fetcher.calls)
}
