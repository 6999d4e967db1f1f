package service

import (
	"time"

	"github.com/smallbiznis/insightsync/internal/refresh/domain"
)

// UpsertStats counts what a merge did.
type UpsertStats struct {
	Updated int
	Added   int
	Pruned  int
	// Skipped records had no usable key.
	Skipped int
}

// Upsert overlays incoming onto existing by record key, last write wins in
// slice order, then drops records older than ref minus retentionDays.
// Surviving records keep first-seen order, so merging the same input twice
// gives the same result.
func Upsert(existing, incoming []domain.Record, ref time.Time, retentionDays int) ([]domain.Record, UpsertStats) {
	var stats UpsertStats
	index := make(map[domain.RecordKey]int, len(existing)+len(incoming))
	ordered := make([]domain.Record, 0, len(existing)+len(incoming))
	keys := make([]domain.RecordKey, 0, len(existing)+len(incoming))

	put := func(r domain.Record) (replaced bool, ok bool) {
		key, ok := r.Key()
		if !ok {
			return false, false
		}
		if pos, seen := index[key]; seen {
			ordered[pos] = r
			return true, true
		}
		index[key] = len(ordered)
		ordered = append(ordered, r)
		keys = append(keys, key)
		return false, true
	}

	for _, r := range existing {
		if _, ok := put(r); !ok {
			stats.Skipped++
		}
	}
	for _, r := range incoming {
		replaced, ok := put(r)
		switch {
		case !ok:
			stats.Skipped++
		case replaced:
			stats.Updated++
		default:
			stats.Added++
		}
	}

	cutoff := ref.AddDate(0, 0, -retentionDays)
	merged := ordered[:0]
	for i, r := range ordered {
		day, err := time.Parse(domain.DateLayout, keys[i].Date)
		if err != nil || day.Before(cutoff) {
			stats.Pruned++
			continue
		}
		merged = append(merged, r)
	}
	return merged, stats
}

// UniqueEntities counts distinct entity ids among records.
func UniqueEntities(records []domain.Record) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if key, ok := r.Key(); ok {
			seen[key.EntityID] = struct{}{}
		}
	}
	return len(seen)
}
