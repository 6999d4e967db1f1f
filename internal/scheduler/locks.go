package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"go.uber.org/zap"
)

// Locker is the distributed lock used to keep one refresh per account.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// localLocks guards accounts within this process. It backs the distributed
// lock when redis is not configured.
type localLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalLocks() *localLocks {
	return &localLocks{held: map[string]struct{}{}}
}

func (l *localLocks) tryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *localLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// acquire takes the local lock and then the distributed one. The returned
// release func is never nil when ok is true.
func (s *Scheduler) acquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	if !s.local.tryLock(key) {
		return nil, false, nil
	}
	if s.locker == nil {
		return func() { s.local.release(key) }, true, nil
	}

	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if errors.Is(err, ratelimit.ErrLockNotConfigured) {
		return func() { s.local.release(key) }, true, nil
	}
	if err != nil || !ok {
		s.local.release(key)
		return nil, false, err
	}
	return func() {
		// The run context may be done by now; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("release refresh lock", zap.String("key", key), zap.Error(err))
		}
		s.local.release(key)
	}, true, nil
}
