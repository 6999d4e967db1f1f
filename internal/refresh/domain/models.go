// Package domain holds the dataset model of a refresh run.
package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Mode string

const (
	ModeBaseline Mode = "BASELINE"
	ModeTail     Mode = "TAIL"
)

// Record is one provider row. It is replaced wholesale, never patched.
type Record map[string]any

// RecordKey identifies a record: one entity on one day.
type RecordKey struct {
	EntityID string
	Date     string
}

// Key returns the (ad_id, date_start|date) identity of r. ok is false when
// either half is missing.
func (r Record) Key() (RecordKey, bool) {
	entityID := stringField(r, "ad_id")
	date := stringField(r, "date_start")
	if date == "" {
		date = stringField(r, "date")
	}
	if entityID == "" || date == "" {
		return RecordKey{}, false
	}
	return RecordKey{EntityID: entityID, Date: date}, true
}

func stringField(r Record, name string) string {
	v, _ := r[name].(string)
	return strings.TrimSpace(v)
}

// Metadata describes the stored raw dataset.
type Metadata struct {
	Timestamp        time.Time `json:"timestamp"`
	ReferenceDate    string    `json:"reference_date"`
	Mode             Mode      `json:"mode"`
	DaysFetched      int       `json:"days_fetched"`
	TotalDailyRows   int       `json:"total_daily_rows"`
	UniqueAds        int       `json:"unique_ads"`
	BaselineDays     int       `json:"baseline_days"`
	TailBackfillDays int       `json:"tail_backfill_days"`
}

// Dataset is the raw per-account record set persisted between runs.
type Dataset struct {
	Metadata *Metadata `json:"metadata"`
	DailyAds []Record  `json:"daily_ads"`
}

// FetchWindow is an inclusive calendar range.
type FetchWindow struct {
	Since time.Time
	Until time.Time
}

// Days is the number of calendar days covered, both ends included.
func (w FetchWindow) Days() int {
	if w.Until.Before(w.Since) {
		return 0
	}
	return int(w.Until.Sub(w.Since).Hours()/24) + 1
}

func (w FetchWindow) SinceString() string { return w.Since.Format(DateLayout) }
func (w FetchWindow) UntilString() string { return w.Until.Format(DateLayout) }

// Outcome summarizes a completed run.
type Outcome struct {
	TenantID    string    `json:"tenant_id"`
	AccountID   string    `json:"account_id"`
	Mode        Mode      `json:"mode"`
	WindowDays  int       `json:"window_days"`
	Since       string    `json:"since"`
	Until       string    `json:"until"`
	RecordCount int       `json:"record_count"`
	UniqueAds   int       `json:"unique_ads"`
	Degraded    int       `json:"degraded_records"`
	Artifacts   []string  `json:"artifacts"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// RunRequest identifies the account to refresh. EncryptedToken is the sealed
// provider access token as stored.
type RunRequest struct {
	TenantID       string
	AccountID      string
	AccountName    string
	EncryptedToken string
}

// Shards are the read-optimized artifacts derived from a dataset.
type Shards struct {
	Meta    any
	Agg     any
	Summary any

	// AdsCount and Periods feed the manifest.
	AdsCount int
	Periods  []int
}
