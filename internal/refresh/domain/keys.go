package domain

import "fmt"

const (
	RawDatasetFile = "baseline_daily.json"
	MetaShardFile  = "meta_v1.json"
	AggShardFile   = "agg_v1.json"
	SummaryFile    = "summary_v1.json"
	ManifestFile   = "manifest.json"
)

func accountPrefix(tenantID, accountID string) string {
	return fmt.Sprintf("tenants/%s/accounts/%s", tenantID, accountID)
}

// RawDatasetKey is where the merged raw dataset lives.
func RawDatasetKey(tenantID, accountID string) string {
	return accountPrefix(tenantID, accountID) + "/data/" + RawDatasetFile
}

// OptimizedKey is where a shard or the manifest lives.
func OptimizedKey(tenantID, accountID, file string) string {
	return accountPrefix(tenantID, accountID) + "/data/optimized/" + file
}

// DemographicsKey is where one demographics period is stored.
func DemographicsKey(tenantID, accountID string, periodDays int) string {
	return fmt.Sprintf("%s/demographics/%dd.json", accountPrefix(tenantID, accountID), periodDays)
}
