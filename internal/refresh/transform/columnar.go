// Package transform turns merged insight records into columnar shards.
package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/insightsync/internal/insights"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
)

const ShardVersion = 1

// DefaultPeriods are the rolling windows, in days, aggregated per ad.
var DefaultPeriods = []int{3, 7, 14, 30, 90}

type AdMeta struct {
	AdID            string `json:"ad_id"`
	AdName          string `json:"ad_name"`
	CampaignID      string `json:"campaign_id"`
	CampaignName    string `json:"campaign_name"`
	AdsetID         string `json:"adset_id"`
	AdsetName       string `json:"adset_name"`
	Format          string `json:"format"`
	MediaURL        string `json:"media_url"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
	CreatedTime     string `json:"created_time,omitempty"`
	FirstDate       string `json:"first_date"`
	LastDate        string `json:"last_date"`
}

type MetaShard struct {
	Version       int      `json:"version"`
	AccountID     string   `json:"account_id"`
	AccountName   string   `json:"account_name"`
	ReferenceDate string   `json:"reference_date"`
	Ads           []AdMeta `json:"ads"`
}

// PeriodColumns holds one value per ad, aligned with AggShard.Ads.
type PeriodColumns struct {
	Spend         []float64 `json:"spend"`
	Impressions   []float64 `json:"impressions"`
	Clicks        []float64 `json:"clicks"`
	Purchases     []float64 `json:"purchases"`
	PurchaseValue []float64 `json:"purchase_value"`
}

type AggShard struct {
	Version       int                      `json:"version"`
	ReferenceDate string                   `json:"reference_date"`
	Periods       []int                    `json:"periods"`
	Ads           []string                 `json:"ads"`
	Metrics       map[string]PeriodColumns `json:"metrics"`
}

type Totals struct {
	Spend         float64 `json:"spend"`
	Impressions   float64 `json:"impressions"`
	Clicks        float64 `json:"clicks"`
	Purchases     float64 `json:"purchases"`
	PurchaseValue float64 `json:"purchase_value"`
	CTR           float64 `json:"ctr"`
	CPM           float64 `json:"cpm"`
	CPA           float64 `json:"cpa"`
	ROAS          float64 `json:"roas"`
	ActiveAds     int     `json:"active_ads"`
}

type DailyTotals struct {
	Date          string  `json:"date"`
	Spend         float64 `json:"spend"`
	Impressions   float64 `json:"impressions"`
	Clicks        float64 `json:"clicks"`
	Purchases     float64 `json:"purchases"`
	PurchaseValue float64 `json:"purchase_value"`
}

type SummaryShard struct {
	Version       int               `json:"version"`
	ReferenceDate string            `json:"reference_date"`
	Periods       map[string]Totals `json:"periods"`
	Daily         []DailyTotals     `json:"daily"`
}

// PeriodKey renders a period as used in shard maps, e.g. "7d".
func PeriodKey(days int) string {
	return fmt.Sprintf("%dd", days)
}

// Columnar is the default Transformer. Periods longer than the retention
// horizon are dropped when Retention is set.
type Columnar struct {
	Periods   []int
	Retention func() int
}

func NewColumnar() *Columnar {
	return &Columnar{Periods: DefaultPeriods}
}

type dayMetrics struct {
	spend, impressions, clicks, purchases, purchaseValue float64
}

func metricsOf(r domain.Record) dayMetrics {
	return dayMetrics{
		spend:         insights.Float(r["spend"]),
		impressions:   insights.Float(r["impressions"]),
		clicks:        insights.Float(r["clicks"]),
		purchases:     insights.Purchase(r["actions"]),
		purchaseValue: insights.Purchase(r["action_values"]),
	}
}

func (m *dayMetrics) add(o dayMetrics) {
	m.spend += o.spend
	m.impressions += o.impressions
	m.clicks += o.clicks
	m.purchases += o.purchases
	m.purchaseValue += o.purchaseValue
}

func (c *Columnar) Transform(records []domain.Record, referenceDate time.Time, accountID, accountName string) (domain.Shards, error) {
	periods := c.Periods
	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	if c.Retention != nil {
		periods = PeriodsWithin(periods, c.Retention())
	}
	ref := referenceDate.UTC().Truncate(24 * time.Hour)
	refString := ref.Format(domain.DateLayout)

	type adState struct {
		meta    AdMeta
		periods []dayMetrics
	}
	ads := map[string]*adState{}
	daily := map[string]*dayMetrics{}
	periodAds := make([]map[string]struct{}, len(periods))
	for i := range periodAds {
		periodAds[i] = map[string]struct{}{}
	}

	for _, r := range records {
		key, ok := r.Key()
		if !ok {
			continue
		}
		day, err := time.Parse(domain.DateLayout, key.Date)
		if err != nil {
			return domain.Shards{}, fmt.Errorf("record %s has invalid date %q", key.EntityID, key.Date)
		}

		st, ok := ads[key.EntityID]
		if !ok {
			st = &adState{
				meta:    AdMeta{AdID: key.EntityID, FirstDate: key.Date, LastDate: key.Date},
				periods: make([]dayMetrics, len(periods)),
			}
			ads[key.EntityID] = st
		}
		if key.Date < st.meta.FirstDate {
			st.meta.FirstDate = key.Date
		}
		if key.Date >= st.meta.LastDate {
			st.meta.LastDate = key.Date
			fillMeta(&st.meta, r)
		}

		m := metricsOf(r)
		if day.After(ref) {
			continue
		}
		d, ok := daily[key.Date]
		if !ok {
			d = &dayMetrics{}
			daily[key.Date] = d
		}
		d.add(m)

		age := int(ref.Sub(day).Hours() / 24)
		for i, p := range periods {
			if age < p {
				st.periods[i].add(m)
				if m.impressions > 0 || m.spend > 0 {
					periodAds[i][key.EntityID] = struct{}{}
				}
			}
		}
	}

	ids := make([]string, 0, len(ads))
	for id := range ads {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	meta := &MetaShard{
		Version:       ShardVersion,
		AccountID:     accountID,
		AccountName:   accountName,
		ReferenceDate: refString,
		Ads:           make([]AdMeta, 0, len(ids)),
	}
	agg := &AggShard{
		Version:       ShardVersion,
		ReferenceDate: refString,
		Periods:       append([]int(nil), periods...),
		Ads:           ids,
		Metrics:       make(map[string]PeriodColumns, len(periods)),
	}
	summary := &SummaryShard{
		Version:       ShardVersion,
		ReferenceDate: refString,
		Periods:       make(map[string]Totals, len(periods)),
	}

	for i, p := range periods {
		cols := PeriodColumns{
			Spend:         make([]float64, len(ids)),
			Impressions:   make([]float64, len(ids)),
			Clicks:        make([]float64, len(ids)),
			Purchases:     make([]float64, len(ids)),
			PurchaseValue: make([]float64, len(ids)),
		}
		var total dayMetrics
		for j, id := range ids {
			m := ads[id].periods[i]
			cols.Spend[j] = insights.Round2(m.spend)
			cols.Impressions[j] = m.impressions
			cols.Clicks[j] = m.clicks
			cols.Purchases[j] = m.purchases
			cols.PurchaseValue[j] = insights.Round2(m.purchaseValue)
			total.add(m)
		}
		agg.Metrics[PeriodKey(p)] = cols
		summary.Periods[PeriodKey(p)] = totalsOf(total, len(periodAds[i]))
	}
	for _, id := range ids {
		meta.Ads = append(meta.Ads, ads[id].meta)
	}

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	summary.Daily = make([]DailyTotals, 0, len(dates))
	for _, date := range dates {
		d := daily[date]
		summary.Daily = append(summary.Daily, DailyTotals{
			Date:          date,
			Spend:         insights.Round2(d.spend),
			Impressions:   d.impressions,
			Clicks:        d.clicks,
			Purchases:     d.purchases,
			PurchaseValue: insights.Round2(d.purchaseValue),
		})
	}

	return domain.Shards{
		Meta:     meta,
		Agg:      agg,
		Summary:  summary,
		AdsCount: len(ids),
		Periods:  agg.Periods,
	}, nil
}

func fillMeta(meta *AdMeta, r domain.Record) {
	str := func(field string) string { return insights.String(r[field]) }
	meta.AdName = str("ad_name")
	meta.CampaignID = str("campaign_id")
	meta.CampaignName = str("campaign_name")
	meta.AdsetID = str("adset_id")
	meta.AdsetName = str("adset_name")
	meta.Format = str("format")
	meta.MediaURL = str("media_url")
	meta.Status = str("status")
	meta.EffectiveStatus = str("effective_status")
	meta.CreatedTime = str("created_time")
}

func totalsOf(m dayMetrics, activeAds int) Totals {
	return Totals{
		Spend:         insights.Round2(m.spend),
		Impressions:   m.impressions,
		Clicks:        m.clicks,
		Purchases:     m.purchases,
		PurchaseValue: insights.Round2(m.purchaseValue),
		CTR:           insights.Round2(insights.Ratio(m.clicks, m.impressions) * 100),
		CPM:           insights.Round2(insights.Ratio(m.spend, m.impressions) * 1000),
		CPA:           insights.Round2(insights.Ratio(m.spend, m.purchases)),
		ROAS:          insights.Round2(insights.Ratio(m.purchaseValue, m.spend)),
		ActiveAds:     activeAds,
	}
}
