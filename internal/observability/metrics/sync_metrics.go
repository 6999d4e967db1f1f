package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// SyncMetrics captures provider and refresh health signals.
type SyncMetrics struct {
	providerRequests   *prometheus.CounterVec
	providerRetries    *prometheus.CounterVec
	throttlePauses     *prometheus.CounterVec
	throttlePauseSecs  prometheus.Histogram
	usagePercent       *prometheus.GaugeVec
	refreshRuns        *prometheus.CounterVec
	refreshDuration    *prometheus.HistogramVec
	enrichmentDegraded prometheus.Counter
	batchFailures      prometheus.Counter
}

// NewSyncMetrics registers the sync collectors on registerer.
// A nil registerer uses the default prometheus registry.
func NewSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "insightsync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SyncMetrics{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "insightsync_provider_requests_total",
			Help:        "Provider HTTP attempts by endpoint and outcome.",
			ConstLabels: constLabels,
		}, []string{"endpoint", "outcome"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "insightsync_provider_retries_total",
			Help:        "Provider retries scheduled after a transient failure.",
			ConstLabels: constLabels,
		}, []string{"endpoint"}),
		throttlePauses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "insightsync_throttle_pauses_total",
			Help:        "Proactive pauses taken before calling the provider.",
			ConstLabels: constLabels,
		}, []string{"resource"}),
		throttlePauseSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "insightsync_throttle_pause_seconds",
			Help:        "Length of proactive throttle pauses.",
			Buckets:     []float64{1, 5, 15, 30, 60, 90, 120, 300, 600, 1800, 3600},
			ConstLabels: constLabels,
		}),
		usagePercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "insightsync_usage_percent",
			Help:        "Last provider-reported usage percent per resource.",
			ConstLabels: constLabels,
		}, []string{"resource"}),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "insightsync_refresh_runs_total",
			Help:        "Refresh runs by mode and outcome.",
			ConstLabels: constLabels,
		}, []string{"mode", "outcome"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "insightsync_refresh_duration_seconds",
			Help:        "Refresh run latency by mode.",
			Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 900, 1800},
			ConstLabels: constLabels,
		}, []string{"mode"}),
		enrichmentDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "insightsync_enrichment_degraded_total",
			Help:        "Records that fell back to sentinel enrichment values.",
			ConstLabels: constLabels,
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "insightsync_batch_failures_total",
			Help:        "Batched provider requests that failed and were skipped.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.providerRequests,
		m.providerRetries,
		m.throttlePauses,
		m.throttlePauseSecs,
		m.usagePercent,
		m.refreshRuns,
		m.refreshDuration,
		m.enrichmentDegraded,
		m.batchFailures,
	)
	return m
}

func (m *SyncMetrics) IncProviderRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) IncProviderRetry(endpoint string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(normalizeLabel(endpoint)).Inc()
}

func (m *SyncMetrics) ObserveThrottlePause(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.throttlePauses.WithLabelValues(normalizeLabel(resource)).Inc()
	m.throttlePauseSecs.Observe(d.Seconds())
}

func (m *SyncMetrics) SetUsagePercent(resource string, pct float64) {
	if m == nil {
		return
	}
	m.usagePercent.WithLabelValues(normalizeLabel(resource)).Set(pct)
}

func (m *SyncMetrics) ObserveRefresh(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	mode = normalizeLabel(mode)
	m.refreshRuns.WithLabelValues(mode, normalizeLabel(outcome)).Inc()
	m.refreshDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *SyncMetrics) AddEnrichmentDegraded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.enrichmentDegraded.Add(float64(n))
}

func (m *SyncMetrics) IncBatchFailure() {
	if m == nil {
		return
	}
	m.batchFailures.Inc()
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
