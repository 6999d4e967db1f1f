package provider

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/insightsync/internal/clock"
)

const (
	DefaultAttempts  = 4
	DefaultBaseDelay = 400 * time.Millisecond
	DefaultMaxJitter = 200 * time.Millisecond
)

// RetryPolicy decides how often and how long to wait between attempts. It
// knows nothing about HTTP; the operation classifies its own failures and
// marks the hopeless ones with Permanent.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxJitter time.Duration

	// Clock drives the wait between attempts. Nil uses wall-clock timers.
	Clock clock.Clock
	// Rand returns a value in [0, 1) scaling MaxJitter.
	Rand func() float64
}

func DefaultRetryPolicy(clk clock.Clock) RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxJitter: DefaultMaxJitter,
		Clock:     clk,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, or the attempt
// budget is spent. op receives the 1-based attempt number; notify, when set,
// is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, notify func(err error, wait time.Duration)) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	attempt := 0
	operation := func() error {
		attempt++
		return op(attempt)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)

	var timer backoff.Timer
	if p.Clock != nil {
		timer = &clockTimer{clk: p.Clock}
	}
	return backoff.RetryNotifyWithTimer(operation, b, backoff.Notify(notify), timer)
}

func (p RetryPolicy) backOff() *exponentialJitter {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxJitter := p.MaxJitter
	if maxJitter < 0 {
		maxJitter = 0
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return &exponentialJitter{base: base, maxJitter: maxJitter, rand: rnd}
}

// exponentialJitter waits base*2^(n-1) plus up to maxJitter before retry n.
type exponentialJitter struct {
	base      time.Duration
	maxJitter time.Duration
	rand      func() float64
	retry     int
}

func (b *exponentialJitter) NextBackOff() time.Duration {
	b.retry++
	delay := b.base << (b.retry - 1)
	return delay + time.Duration(b.rand()*float64(b.maxJitter))
}

func (b *exponentialJitter) Reset() {
	b.retry = 0
}

// clockTimer adapts clock.Clock to backoff.Timer.
type clockTimer struct {
	clk    clock.Clock
	c      chan time.Time
	cancel context.CancelFunc
}

func (t *clockTimer) Start(d time.Duration) {
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	c := make(chan time.Time, 1)
	t.c = c
	go func() {
		if err := t.clk.Sleep(ctx, d); err == nil {
			c <- t.clk.Now()
		}
	}()
}

func (t *clockTimer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
