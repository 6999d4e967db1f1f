package ratelimit

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	HeaderBusinessUseCase  = "X-Business-Use-Case-Usage"
	HeaderAdAccountUsage   = "X-Ad-Account-Usage"
	HeaderInsightsThrottle = "X-FB-Ads-Insights-Throttle"
)

// UsageDetail is one entry of the business use case header, keyed by its type.
type UsageDetail struct {
	CallCount    float64 `json:"call_count"`
	TotalTime    float64 `json:"total_time"`
	TotalCPUTime float64 `json:"total_cputime"`
	// RegainSeconds is the provider estimate, converted from minutes.
	RegainSeconds int `json:"regain_seconds,omitempty"`
}

type headerUsage struct {
	percent       float64
	regainSeconds int
	details       map[string]UsageDetail
}

// parseUsageHeaders reads the three usage encodings. The detailed business
// use case header wins outright when it parses; the account and insights
// headers are only consulted otherwise.
func parseUsageHeaders(h http.Header) headerUsage {
	if usage, ok := parseBusinessUseCase(h.Get(HeaderBusinessUseCase)); ok {
		return usage
	}

	usage := headerUsage{details: map[string]UsageDetail{}}
	if pct, ok := parseAdAccountUsage(h.Get(HeaderAdAccountUsage)); ok {
		usage.percent = pct
	}
	if pct, ok := parseInsightsThrottle(h.Get(HeaderInsightsThrottle)); ok && pct > usage.percent {
		usage.percent = pct
	}
	return usage
}

func parseBusinessUseCase(raw string) (headerUsage, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return headerUsage{}, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return headerUsage{}, false
	}

	usage := headerUsage{details: map[string]UsageDetail{}}
	valid := true
	root.ForEach(func(_, entries gjson.Result) bool {
		if !entries.IsArray() {
			valid = false
			return false
		}
		for _, entry := range entries.Array() {
			if !entry.IsObject() {
				valid = false
				return false
			}
			detail := UsageDetail{
				CallCount:    entry.Get("call_count").Float(),
				TotalTime:    entry.Get("total_time").Float(),
				TotalCPUTime: entry.Get("total_cputime").Float(),
			}
			usage.percent = maxFloat(usage.percent, detail.CallCount, detail.TotalTime, detail.TotalCPUTime)

			if minutes := entry.Get("estimated_time_to_regain_access").Float(); minutes > 0 {
				detail.RegainSeconds = int(minutes * 60)
				if detail.RegainSeconds > usage.regainSeconds {
					usage.regainSeconds = detail.RegainSeconds
				}
			}

			kind := strings.TrimSpace(entry.Get("type").String())
			if kind == "" {
				kind = "unknown"
			}
			usage.details[kind] = detail
		}
		return true
	})
	if !valid {
		return headerUsage{}, false
	}
	return usage, true
}

// parseAdAccountUsage reads only the percentage. reset_time_duration is not a
// pause hint: above the thresholds the fixed pauses apply.
func parseAdAccountUsage(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return 0, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return 0, false
	}
	return root.Get("acc_id_util_pct").Float(), true
}

func parseInsightsThrottle(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return 0, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return 0, false
	}
	return maxFloat(root.Get("app_id_util_pct").Float(), root.Get("acc_id_util_pct").Float()), true
}

func maxFloat(first float64, rest ...float64) float64 {
	out := first
	for _, v := range rest {
		if v > out {
			out = v
		}
	}
	return out
}
