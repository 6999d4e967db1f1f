package clock

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return NewReal() }),
)

// Clock is the time source used by the refresh engine. Sleep must return
// early with ctx.Err() when ctx is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct {
	q quartz.Clock
}

// NewReal returns a wall clock backed by quartz timers.
func NewReal() Clock {
	return &realClock{q: quartz.NewReal()}
}

func (c *realClock) Now() time.Time {
	return c.q.Now().UTC()
}

func (c *realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.q.NewTimer(d, "clock", "sleep")
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
