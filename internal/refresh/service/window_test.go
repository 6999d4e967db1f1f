package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReferenceDateIsYesterdayUTC(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	now := time.Date(2024, 4, 2, 3, 0, 0, 0, jakarta) // 2024-04-01 20:00 UTC
	assert.Equal(t, day("2024-03-31"), ReferenceDate(now))
	assert.Equal(t, day("2024-04-01"), ReferenceDate(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)))
}

func TestWindowEnding(t *testing.T) {
	w := WindowEnding(day("2024-04-01"), 90)
	assert.Equal(t, "2024-01-03", w.SinceString())
	assert.Equal(t, "2024-04-01", w.UntilString())
	assert.Equal(t, 90, w.Days())

	single := WindowEnding(day("2024-04-01"), 0)
	assert.Equal(t, 1, single.Days())
}

func TestSplitWindowIntoContiguousChunks(t *testing.T) {
	chunks := SplitWindow(WindowEnding(day("2024-04-01"), 90), 30)
	require.Len(t, chunks, 3)

	total := 0
	for i, c := range chunks {
		total += c.Days()
		if i > 0 {
			assert.Equal(t, chunks[i-1].Until.AddDate(0, 0, 1), c.Since)
		}
	}
	assert.Equal(t, 90, total)
	assert.Equal(t, "2024-01-03", chunks[0].SinceString())
	assert.Equal(t, "2024-04-01", chunks[2].UntilString())
}

func TestSplitWindowShortTail(t *testing.T) {
	chunks := SplitWindow(WindowEnding(day("2024-04-01"), 45), 30)
	require.Len(t, chunks, 2)
	assert.Equal(t, 30, chunks[0].Days())
	assert.Equal(t, 15, chunks[1].Days())

	assert.Len(t, SplitWindow(WindowEnding(day("2024-04-01"), 3), 30), 1)
	assert.Len(t, SplitWindow(WindowEnding(day("2024-04-01"), 3), 0), 1)
}

func TestDetermineMode(t *testing.T) {
	cfg := config.DefaultSyncConfig()
	ref := day("2024-04-01")
	withRef := func(s string) *domain.Dataset {
		return &domain.Dataset{Metadata: &domain.Metadata{ReferenceDate: s}, DailyAds: []domain.Record{}}
	}

	cases := []struct {
		name  string
		prior *domain.Dataset
		mode  domain.Mode
		days  int
	}{
		{"no prior", nil, domain.ModeBaseline, 90},
		{"no metadata", &domain.Dataset{}, domain.ModeBaseline, 90},
		{"empty reference date", withRef(""), domain.ModeBaseline, 90},
		{"unparseable reference date", withRef("last week"), domain.ModeBaseline, 90},
		{"future reference date", withRef("2024-04-02"), domain.ModeBaseline, 90},
		{"ten days old", withRef("2024-03-22"), domain.ModeTail, 3},
		{"same day", withRef("2024-04-01"), domain.ModeTail, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mode, days := DetermineMode(tc.prior, ref, cfg)
			assert.Equal(t, tc.mode, mode)
			assert.Equal(t, tc.days, days)
		})
	}
}
