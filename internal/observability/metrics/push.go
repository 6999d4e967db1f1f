package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const defaultPushTimeout = 5 * time.Second

// Pusher sends the sync metrics of a one-shot run to a Prometheus
// Pushgateway. Long-running processes are scraped on /metrics instead.
type Pusher struct {
	endpoint string
	job      string
	grouping map[string]string
	gatherer prometheus.Gatherer
}

// NewPusher returns nil when no Pushgateway is configured.
func NewPusher(cfg Config, gatherer prometheus.Gatherer) *Pusher {
	endpoint := strings.TrimSpace(cfg.PushgatewayURL)
	if endpoint == "" || gatherer == nil {
		return nil
	}
	job := strings.TrimSpace(cfg.ServiceName)
	if job == "" {
		job = "insightsync"
	}
	return &Pusher{
		endpoint: endpoint,
		job:      job,
		grouping: map[string]string{"environment": strings.TrimSpace(cfg.Environment)},
		gatherer: gatherer,
	}
}

// Push replaces the job's metric group on the Pushgateway. A nil Pusher is a no-op.
func (p *Pusher) Push(ctx context.Context, instance string) error {
	if p == nil {
		return nil
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(p.gatherer)
	for key, value := range p.grouping {
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	if instance = strings.TrimSpace(instance); instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return pusher.PushContext(ctx)
}
