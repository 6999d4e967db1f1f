package service

import (
	"time"

	"github.com/smallbiznis/insightsync/internal/refresh/domain"
)

// ReferenceDate is the last complete provider day: yesterday, UTC.
func ReferenceDate(now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -1)
}

// WindowEnding returns the days-long window whose last day is ref.
func WindowEnding(ref time.Time, days int) domain.FetchWindow {
	if days < 1 {
		days = 1
	}
	return domain.FetchWindow{
		Since: ref.AddDate(0, 0, -(days - 1)),
		Until: ref,
	}
}

// SplitWindow cuts w into contiguous chunks of chunkDays, in chronological
// order; the last chunk may be shorter. A window that fits is returned whole.
func SplitWindow(w domain.FetchWindow, chunkDays int) []domain.FetchWindow {
	if w.Days() == 0 {
		return nil
	}
	if chunkDays < 1 || w.Days() <= chunkDays {
		return []domain.FetchWindow{w}
	}

	var out []domain.FetchWindow
	for start := w.Since; !start.After(w.Until); {
		end := start.AddDate(0, 0, chunkDays-1)
		if end.After(w.Until) {
			end = w.Until
		}
		out = append(out, domain.FetchWindow{Since: start, Until: end})
		start = end.AddDate(0, 0, 1)
	}
	return out
}
