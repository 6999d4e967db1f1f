package transform

import (
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("refresh.transform",
	fx.Provide(
		fx.Annotate(NewFromConfig, fx.As(new(domain.Transformer))),
		fx.Annotate(NewValidator, fx.As(new(domain.Validator))),
	),
)

// NewFromConfig follows the live retention setting, so a hot-reloaded
// sync.yml takes effect on the next run.
func NewFromConfig(holder *config.SyncConfigHolder) *Columnar {
	return &Columnar{
		Periods:   DefaultPeriods,
		Retention: func() int { return holder.Get().RetentionDays },
	}
}

// PeriodsWithin drops periods longer than retentionDays. A non-positive
// retention keeps every period.
func PeriodsWithin(periods []int, retentionDays int) []int {
	if retentionDays <= 0 {
		return append([]int(nil), periods...)
	}
	out := make([]int, 0, len(periods))
	for _, p := range periods {
		if p <= retentionDays {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, retentionDays)
	}
	return out
}
