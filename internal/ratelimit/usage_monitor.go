package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/insightsync/internal/clock"
	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"go.uber.org/zap"
)

// GlobalResource is the resource key used when a call is not scoped to an account.
const GlobalResource = "global"

const (
	hardPausePercent = 90
	softPausePercent = 80
	hardPause        = 120
	softPause        = 60
)

// UsageSnapshot is the last usage reading for one resource key.
type UsageSnapshot struct {
	UsagePercent float64                `json:"usage_percent"`
	ShouldPause  bool                   `json:"should_pause"`
	PauseSeconds int                    `json:"pause_seconds"`
	Details      map[string]UsageDetail `json:"details,omitempty"`
	ObservedAt   time.Time              `json:"observed_at"`

	seq uint64
}

// UsageMonitor tracks provider usage per resource and pauses callers before
// the provider starts rejecting them. One instance is shared by every client.
type UsageMonitor struct {
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.SyncMetrics
	jitter  func() float64

	mu        sync.Mutex
	snapshots map[string]*UsageSnapshot
	seq       uint64

	// throttleMu serializes the decide/sleep/clear sequence.
	throttleMu sync.Mutex
}

type MonitorOption func(*UsageMonitor)

// WithJitter overrides the pause multiplier source. fn must return a value in [0.9, 1.1].
func WithJitter(fn func() float64) MonitorOption {
	return func(m *UsageMonitor) {
		if fn != nil {
			m.jitter = fn
		}
	}
}

func NewUsageMonitor(log *zap.Logger, clk clock.Clock, syncMetrics *metrics.SyncMetrics, opts ...MonitorOption) *UsageMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	m := &UsageMonitor{
		log:       log.Named("usage_monitor"),
		clock:     clk,
		metrics:   syncMetrics,
		jitter:    defaultJitter,
		snapshots: map[string]*UsageSnapshot{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultJitter() float64 {
	return 0.9 + rand.Float64()*0.2
}

// Parse reads the usage headers of a provider response and replaces the
// stored snapshot for resourceKey. Malformed headers count as absent.
func (m *UsageMonitor) Parse(headers http.Header, resourceKey string) UsageSnapshot {
	resourceKey = normalizeResource(resourceKey)
	usage := parseUsageHeaders(headers)

	snap := UsageSnapshot{
		UsagePercent: usage.percent,
		Details:      usage.details,
		ObservedAt:   m.clock.Now(),
	}
	switch {
	case usage.regainSeconds > 0:
		snap.ShouldPause = true
		snap.PauseSeconds = usage.regainSeconds
	case usage.percent >= hardPausePercent:
		snap.ShouldPause = true
		snap.PauseSeconds = hardPause
	case usage.percent >= softPausePercent:
		snap.ShouldPause = true
		snap.PauseSeconds = softPause
	}

	m.mu.Lock()
	m.seq++
	snap.seq = m.seq
	stored := snap
	m.snapshots[resourceKey] = &stored
	m.mu.Unlock()

	m.metrics.SetUsagePercent(resourceKey, snap.UsagePercent)
	if snap.ShouldPause {
		m.log.Warn("provider usage high, pausing next call",
			zap.String("resource", resourceKey),
			zap.Float64("usage_percent", snap.UsagePercent),
			zap.Int("pause_seconds", snap.PauseSeconds),
		)
	}
	return snap.clone()
}

// CheckAndThrottle sleeps when the stored snapshot for resourceKey asks for a
// pause, then clears the signal so concurrent callers do not pause twice for it.
// It reports whether a pause happened.
func (m *UsageMonitor) CheckAndThrottle(ctx context.Context, resourceKey string) (bool, error) {
	resourceKey = normalizeResource(resourceKey)

	m.throttleMu.Lock()
	defer m.throttleMu.Unlock()

	m.mu.Lock()
	snap, ok := m.snapshots[resourceKey]
	if !ok || !snap.ShouldPause {
		m.mu.Unlock()
		return false, nil
	}
	seq := snap.seq
	pauseSeconds := snap.PauseSeconds
	usagePercent := snap.UsagePercent
	m.mu.Unlock()

	pause := time.Duration(float64(pauseSeconds) * m.jitter() * float64(time.Second))
	m.log.Warn("proactive throttle",
		zap.String("resource", resourceKey),
		zap.Float64("usage_percent", usagePercent),
		zap.Duration("pause", pause),
	)
	if err := m.clock.Sleep(ctx, pause); err != nil {
		return false, err
	}
	m.metrics.ObserveThrottlePause(resourceKey, pause)

	m.mu.Lock()
	// A newer reading may have landed while sleeping; that signal is not ours to clear.
	if current, ok := m.snapshots[resourceKey]; ok && current.seq == seq {
		current.ShouldPause = false
	}
	m.mu.Unlock()
	return true, nil
}

// GlobalUsage is the highest usage percent across every stored snapshot. It
// follows the current snapshots, so it falls when a high reading is overwritten.
func (m *UsageMonitor) GlobalUsage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out float64
	for _, snap := range m.snapshots {
		if snap.UsagePercent > out {
			out = snap.UsagePercent
		}
	}
	return out
}

// RecommendedConcurrency maps global usage to an advisory fan-out width.
func (m *UsageMonitor) RecommendedConcurrency() int {
	usage := m.GlobalUsage()
	switch {
	case usage >= 80:
		return 2
	case usage >= 60:
		return 3
	case usage >= 40:
		return 5
	default:
		return 8
	}
}

func (m *UsageMonitor) Snapshot(resourceKey string) (UsageSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[normalizeResource(resourceKey)]
	if !ok {
		return UsageSnapshot{}, false
	}
	return snap.clone(), true
}

func (m *UsageMonitor) Snapshots() map[string]UsageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]UsageSnapshot, len(m.snapshots))
	for key, snap := range m.snapshots {
		out[key] = snap.clone()
	}
	return out
}

// UsageSummary renders a one-line description of resources above 50% usage.
func (m *UsageMonitor) UsageSummary() string {
	snapshots := m.Snapshots()
	if len(snapshots) == 0 {
		return "no usage data"
	}

	keys := make([]string, 0, len(snapshots))
	for key := range snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	high := make([]string, 0, len(keys))
	for _, key := range keys {
		if pct := snapshots[key].UsagePercent; pct > 50 {
			high = append(high, fmt.Sprintf("%s: %.0f%%", key, pct))
		}
	}
	if len(high) > 0 {
		return "high usage: " + strings.Join(high, ", ")
	}
	return fmt.Sprintf("usage ok (max: %.0f%%)", m.GlobalUsage())
}

func (s *UsageSnapshot) clone() UsageSnapshot {
	out := *s
	if s.Details != nil {
		out.Details = make(map[string]UsageDetail, len(s.Details))
		for k, v := range s.Details {
			out.Details[k] = v
		}
	}
	return out
}

func normalizeResource(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return GlobalResource
	}
	return key
}
