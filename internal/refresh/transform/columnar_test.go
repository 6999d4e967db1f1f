package transform

import (
	"testing"
	"time"

	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func row(adID, date string, spend, impressions string) domain.Record {
	return domain.Record{
		"ad_id":       adID,
		"ad_name":     "ad " + adID,
		"date_start":  date,
		"spend":       spend,
		"impressions": impressions,
		"clicks":      "1",
		"format":      "VIDEO",
		"actions": []any{
			map[string]any{"action_type": "purchase", "value": "2"},
		},
	}
}

func TestColumnarAggregatesPeriods(t *testing.T) {
	records := []domain.Record{
		row("b", "2024-04-01", "10.25", "100"),
		row("a", "2024-03-30", "5", "50"),
		row("a", "2024-03-20", "7", "70"),
		row("a", "2024-01-05", "1", "10"),
		{"spend": "99"},
	}

	shards, err := NewColumnar().Transform(records, ref, "act_1", "Shop")
	require.NoError(t, err)
	assert.Equal(t, 2, shards.AdsCount)
	assert.Equal(t, DefaultPeriods, shards.Periods)

	agg := shards.Agg.(*AggShard)
	assert.Equal(t, []string{"a", "b"}, agg.Ads)
	assert.Equal(t, []float64{5, 10.25}, agg.Metrics["3d"].Spend)
	assert.Equal(t, []float64{12, 10.25}, agg.Metrics["14d"].Spend)
	assert.Equal(t, []float64{12, 10.25}, agg.Metrics["30d"].Spend)
	assert.Equal(t, []float64{13, 10.25}, agg.Metrics["90d"].Spend)
	assert.Equal(t, []float64{6, 2}, agg.Metrics["90d"].Purchases)

	meta := shards.Meta.(*MetaShard)
	assert.Equal(t, "Shop", meta.AccountName)
	assert.Equal(t, "2024-01-05", meta.Ads[0].FirstDate)
	assert.Equal(t, "2024-03-30", meta.Ads[0].LastDate)
	assert.Equal(t, "VIDEO", meta.Ads[0].Format)

	summary := shards.Summary.(*SummaryShard)
	week := summary.Periods["7d"]
	assert.Equal(t, 15.25, week.Spend)
	assert.Equal(t, float64(150), week.Impressions)
	assert.Equal(t, 2, week.ActiveAds)
	assert.Equal(t, 101.67, week.CPM)
	require.Len(t, summary.Daily, 4)
	assert.Equal(t, "2024-01-05", summary.Daily[0].Date)

	assert.Empty(t, NewValidator().Validate(shards))
}

func TestColumnarRejectsBadDate(t *testing.T) {
	_, err := NewColumnar().Transform([]domain.Record{{"ad_id": "a", "date_start": "yesterday"}}, ref, "act_1", "")
	assert.Error(t, err)
}

func TestColumnarEmptyInputValidates(t *testing.T) {
	shards, err := NewColumnar().Transform(nil, ref, "act_1", "")
	require.NoError(t, err)
	assert.Zero(t, shards.AdsCount)
	assert.Empty(t, NewValidator().Validate(shards))
}

func TestRetentionCapsPeriods(t *testing.T) {
	c := &Columnar{Periods: DefaultPeriods, Retention: func() int { return 30 }}
	shards, err := c.Transform(nil, ref, "act_1", "")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 14, 30}, shards.Periods)

	assert.Equal(t, []int{10}, PeriodsWithin([]int{14, 30}, 10))
	assert.Equal(t, []int{14, 30}, PeriodsWithin([]int{14, 30}, 0))
}

func TestValidatorFindsInconsistencies(t *testing.T) {
	shards, err := NewColumnar().Transform([]domain.Record{row("a", "2024-03-31", "1", "1")}, ref, "act_1", "")
	require.NoError(t, err)

	agg := shards.Agg.(*AggShard)
	cols := agg.Metrics["7d"]
	cols.Spend = append(cols.Spend, -1)
	agg.Metrics["7d"] = cols
	delete(shards.Summary.(*SummaryShard).Periods, "30d")
	shards.AdsCount = 3

	problems := NewValidator().Validate(shards)
	assert.Contains(t, problems, "ads count 3 does not match agg length 1")
	assert.Contains(t, problems, "7d column spend has 2 values, want 1")
	assert.Contains(t, problems, "summary missing period 30d")
}

func TestValidatorRejectsForeignShards(t *testing.T) {
	problems := NewValidator().Validate(domain.Shards{Meta: "x"})
	assert.Len(t, problems, 3)
}
