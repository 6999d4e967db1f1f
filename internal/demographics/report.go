package demographics

import (
	"sort"

	"github.com/smallbiznis/insightsync/internal/insights"
)

const source = "insights(level=account, breakdowns=[age,gender])"

type Metadata struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Period      string `json:"period"`
	DateRange   string `json:"date_range"`
	GeneratedAt string `json:"generated_at"`
	Source      string `json:"source"`
}

// Segment is one age/gender bucket.
type Segment struct {
	Age           string  `json:"age"`
	Gender        string  `json:"gender"`
	Impressions   int64   `json:"impressions"`
	Clicks        int64   `json:"clicks"`
	Spend         float64 `json:"spend"`
	Purchases     int64   `json:"purchases"`
	PurchaseValue float64 `json:"purchase_value"`
	CTR           float64 `json:"ctr"`
	CPA           float64 `json:"cpa"`
	ROAS          float64 `json:"roas"`
}

type Totals struct {
	Impressions   int64   `json:"impressions"`
	Clicks        int64   `json:"clicks"`
	Spend         float64 `json:"spend"`
	Purchases     int64   `json:"purchases"`
	PurchaseValue float64 `json:"purchase_value"`
	ROAS          float64 `json:"roas"`
}

// Report is the stored document for one period.
type Report struct {
	Metadata Metadata  `json:"metadata"`
	Segments []Segment `json:"segments"`
	Totals   Totals    `json:"totals"`
}

type segmentKey struct {
	age, gender string
}

type segmentSums struct {
	impressions, clicks             int64
	spend, purchases, purchaseValue float64
}

// AggregateSegments buckets rows by (age, gender) and sorts by spend, highest first.
func AggregateSegments(rows []map[string]any) []Segment {
	sums := map[segmentKey]*segmentSums{}
	var order []segmentKey
	for _, row := range rows {
		key := segmentKey{age: orUnknown(insights.String(row["age"])), gender: orUnknown(insights.String(row["gender"]))}
		s, ok := sums[key]
		if !ok {
			s = &segmentSums{}
			sums[key] = s
			order = append(order, key)
		}
		s.impressions += insights.Int(row["impressions"])
		s.clicks += insights.Int(row["clicks"])
		s.spend += insights.Float(row["spend"])
		s.purchases += insights.Purchase(row["actions"])
		s.purchaseValue += insights.Purchase(row["action_values"])
	}

	segments := make([]Segment, 0, len(order))
	for _, key := range order {
		s := sums[key]
		segments = append(segments, Segment{
			Age:           key.age,
			Gender:        key.gender,
			Impressions:   s.impressions,
			Clicks:        s.clicks,
			Spend:         insights.Round2(s.spend),
			Purchases:     int64(s.purchases),
			PurchaseValue: insights.Round2(s.purchaseValue),
			CTR:           insights.Round2(insights.Ratio(float64(s.clicks), float64(s.impressions)) * 100),
			CPA:           insights.Round2(insights.Ratio(s.spend, s.purchases)),
			ROAS:          insights.Round2(insights.Ratio(s.purchaseValue, s.spend)),
		})
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Spend > segments[j].Spend
	})
	return segments
}

func CalculateTotals(segments []Segment) Totals {
	var t Totals
	for _, s := range segments {
		t.Impressions += s.Impressions
		t.Clicks += s.Clicks
		t.Spend += s.Spend
		t.Purchases += s.Purchases
		t.PurchaseValue += s.PurchaseValue
	}
	t.Spend = insights.Round2(t.Spend)
	t.PurchaseValue = insights.Round2(t.PurchaseValue)
	t.ROAS = insights.Round2(insights.Ratio(t.PurchaseValue, t.Spend))
	return t
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
