package demographics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/smallbiznis/insightsync/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	ranges []string
	fail   map[string]bool // keyed by since
	rows   []map[string]any
}

func (f *fakeFetcher) GetDemographics(_ context.Context, _, _, since, until string) ([]map[string]any, error) {
	f.ranges = append(f.ranges, since+".."+until)
	if f.fail[since] {
		return nil, errors.New("graph unavailable")
	}
	if since == "2024-04-01" {
		return nil, nil
	}
	return f.rows, nil
}

type plainDecrypter struct{}

func (plainDecrypter) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

func sampleRows() []map[string]any {
	return []map[string]any{
		{"age": "25-34", "gender": "female", "impressions": "1000", "clicks": "20", "spend": "40",
			"actions":       []any{map[string]any{"action_type": "purchase", "value": "4"}},
			"action_values": []any{map[string]any{"action_type": "purchase", "value": "160"}}},
		{"age": "25-34", "gender": "female", "impressions": "1000", "clicks": "30", "spend": "10"},
		{"age": "18-24", "gender": "male", "impressions": "500", "clicks": "5", "spend": "80.456"},
		{"impressions": "10", "spend": "1"},
	}
}

func TestAggregateSegments(t *testing.T) {
	segments := AggregateSegments(sampleRows())
	require.Len(t, segments, 3)

	assert.Equal(t, "18-24", segments[0].Age)
	assert.Equal(t, 80.46, segments[0].Spend)

	female := segments[1]
	assert.Equal(t, "female", female.Gender)
	assert.Equal(t, int64(2000), female.Impressions)
	assert.Equal(t, int64(50), female.Clicks)
	assert.Equal(t, 50.0, female.Spend)
	assert.Equal(t, int64(4), female.Purchases)
	assert.Equal(t, 2.5, female.CTR)
	assert.Equal(t, 12.5, female.CPA)
	assert.Equal(t, 3.2, female.ROAS)

	assert.Equal(t, "unknown", segments[2].Age)
	assert.Equal(t, "unknown", segments[2].Gender)

	totals := CalculateTotals(segments)
	assert.Equal(t, int64(2510), totals.Impressions)
	assert.Equal(t, 131.46, totals.Spend)
	assert.Equal(t, 160.0, totals.PurchaseValue)
	assert.Equal(t, 1.22, totals.ROAS)
}

func newService(fetcher Fetcher, store storage.Store) *Service {
	cfg := config.DefaultSyncConfig()
	cfg.DemographicsPeriods = []int{1, 7, 30}
	return New(Params{
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)),
		SyncConfig: config.NewStaticSyncConfigHolder(cfg),
		Fetcher:    fetcher,
		Decrypter:  plainDecrypter{},
		Store:      store,
	})
}

func TestRefreshSkipsEmptyAndFailingPeriods(t *testing.T) {
	store := storage.NewLocalStore(afero.NewMemMapFs(), "/data")
	fetcher := &fakeFetcher{rows: sampleRows(), fail: map[string]bool{"2024-03-03": true}}
	svc := newService(fetcher, store)

	result, err := svc.Refresh(context.Background(), domain.RunRequest{
		TenantID: "t1", AccountID: "act_1", AccountName: "Shop", EncryptedToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-04-01..2024-04-01",
		"2024-03-26..2024-04-01",
		"2024-03-03..2024-04-01",
	}, fetcher.ranges)
	assert.Equal(t, []int{7}, result.PeriodsFetched)
	assert.Equal(t, []string{"7d.json"}, result.FilesWritten)

	report, err := svc.Get(context.Background(), "t1", "act_1", 7)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "7d", report.Metadata.Period)
	assert.Equal(t, "Shop", report.Metadata.AccountName)
	assert.Equal(t, "2024-03-26..2024-04-01", report.Metadata.DateRange)
	assert.Len(t, report.Segments, 3)

	missing, err := svc.Get(context.Background(), "t1", "act_1", 30)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetMalformedReport(t *testing.T) {
	store := storage.NewLocalStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, store.Put(context.Background(), domain.DemographicsKey("t1", "act_1", 7), []byte("nope")))
	svc := newService(&fakeFetcher{}, store)

	report, err := svc.Get(context.Background(), "t1", "act_1", 7)
	require.NoError(t, err)
	assert.Nil(t, report)

	_, err = svc.Get(context.Background(), "t1", "act_1", 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRefreshRequiresAccount(t *testing.T) {
	svc := newService(&fakeFetcher{}, storage.NewLocalStore(afero.NewMemMapFs(), "/data"))
	_, err := svc.Refresh(context.Background(), domain.RunRequest{TenantID: "t1"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}
