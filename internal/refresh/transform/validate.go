package transform

import (
	"fmt"
	"math"

	"github.com/smallbiznis/insightsync/internal/refresh/domain"
)

// Validator checks structural consistency of shards produced by Columnar.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Validate(shards domain.Shards) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	meta, ok := shards.Meta.(*MetaShard)
	if !ok || meta == nil {
		add("meta shard missing or of unexpected type %T", shards.Meta)
	}
	agg, ok := shards.Agg.(*AggShard)
	if !ok || agg == nil {
		add("agg shard missing or of unexpected type %T", shards.Agg)
	}
	summary, ok := shards.Summary.(*SummaryShard)
	if !ok || summary == nil {
		add("summary shard missing or of unexpected type %T", shards.Summary)
	}
	if len(problems) > 0 {
		return problems
	}

	if meta.ReferenceDate != agg.ReferenceDate || agg.ReferenceDate != summary.ReferenceDate {
		add("reference dates disagree: meta=%s agg=%s summary=%s", meta.ReferenceDate, agg.ReferenceDate, summary.ReferenceDate)
	}
	if shards.AdsCount != len(agg.Ads) {
		add("ads count %d does not match agg length %d", shards.AdsCount, len(agg.Ads))
	}
	if len(meta.Ads) != len(agg.Ads) {
		add("meta has %d ads, agg has %d", len(meta.Ads), len(agg.Ads))
	} else {
		for i := range meta.Ads {
			if meta.Ads[i].AdID != agg.Ads[i] {
				add("ad order mismatch at %d: meta=%s agg=%s", i, meta.Ads[i].AdID, agg.Ads[i])
				break
			}
		}
	}

	if len(agg.Periods) == 0 {
		add("no periods")
	}
	for i, p := range agg.Periods {
		if p <= 0 {
			add("period %d is not positive", p)
		}
		if i > 0 && p <= agg.Periods[i-1] {
			add("periods not strictly ascending at %d", p)
		}
		key := PeriodKey(p)
		cols, ok := agg.Metrics[key]
		if !ok {
			add("agg missing period %s", key)
			continue
		}
		for name, col := range map[string][]float64{
			"spend":          cols.Spend,
			"impressions":    cols.Impressions,
			"clicks":         cols.Clicks,
			"purchases":      cols.Purchases,
			"purchase_value": cols.PurchaseValue,
		} {
			if len(col) != len(agg.Ads) {
				add("%s column %s has %d values, want %d", key, name, len(col), len(agg.Ads))
				continue
			}
			for _, value := range col {
				if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
					add("%s column %s has invalid value %v", key, name, value)
					break
				}
			}
		}
		if _, ok := summary.Periods[key]; !ok {
			add("summary missing period %s", key)
		}
	}
	return problems
}
