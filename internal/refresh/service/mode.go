package service

import (
	"time"

	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
)

// DetermineMode picks BASELINE when there is no trustworthy prior dataset and
// TAIL otherwise. A prior reference date after ref is not trustworthy.
func DetermineMode(prior *domain.Dataset, ref time.Time, cfg config.SyncConfig) (domain.Mode, int) {
	baseline := func() (domain.Mode, int) { return domain.ModeBaseline, cfg.RetentionDays }

	if prior == nil || prior.Metadata == nil || prior.Metadata.ReferenceDate == "" {
		return baseline()
	}
	priorRef, err := time.Parse(domain.DateLayout, prior.Metadata.ReferenceDate)
	if err != nil {
		return baseline()
	}
	if priorRef.After(ref) {
		return baseline()
	}
	return domain.ModeTail, cfg.TailWindowDays
}
