package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/insightsync/internal/config"
	"go.uber.org/zap"
)

const keyRefreshQuota = "insightsync:refresh:quota:%s"

const secondsPerDay = 24 * 60 * 60

var ErrQuotaExceeded = errors.New("refresh_quota_exceeded")

// RefreshQuota meters refresh runs per tenant with a day-long token bucket.
// Without Enforce an exhausted tenant is only logged.
type RefreshQuota struct {
	enabled bool
	enforce bool
	perDay  int

	bucket *TokenBucket
	log    *zap.Logger
}

func NewRefreshQuota(cfg config.Config, client *redis.Client, log *zap.Logger) (*RefreshQuota, error) {
	if log == nil {
		log = zap.NewNop()
	}
	quotaCfg := cfg.Quota
	if !quotaCfg.Enabled {
		return &RefreshQuota{log: log}, nil
	}
	if client == nil {
		return nil, errors.New("refresh quota requires REDIS_ADDR")
	}
	if quotaCfg.RefreshPerDay <= 0 {
		return nil, errors.New("refresh quota per day must be positive")
	}
	return &RefreshQuota{
		enabled: true,
		enforce: quotaCfg.Enforce,
		perDay:  quotaCfg.RefreshPerDay,
		bucket:  NewTokenBucket(client),
		log:     log.Named("refresh_quota"),
	}, nil
}

func (q *RefreshQuota) Enabled() bool {
	return q != nil && q.enabled
}

// Allow consumes one refresh for tenantID. It returns ErrQuotaExceeded only
// when enforcement is on. Redis failures never block a refresh.
func (q *RefreshQuota) Allow(ctx context.Context, tenantID string) error {
	if !q.Enabled() {
		return nil
	}
	tenantID = strings.TrimSpace(tenantID)
	rate := float64(q.perDay) / secondsPerDay

	res, err := q.bucket.Allow(ctx, fmt.Sprintf(keyRefreshQuota, tenantID), rate, q.perDay)
	if err != nil {
		q.log.Warn("refresh quota check failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}

	q.log.Warn("refresh quota exhausted",
		zap.String("tenant_id", tenantID),
		zap.Int("limit_per_day", q.perDay),
		zap.Duration("retry_after", res.RetryAfter),
		zap.Bool("enforced", q.enforce),
	)
	if q.enforce {
		return ErrQuotaExceeded
	}
	return nil
}
