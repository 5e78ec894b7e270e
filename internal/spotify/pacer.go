package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ademuri/workout-music-tools/internal/metrics"
)

// DefaultDelay is the minimum gap between the starts of two API calls.
const DefaultDelay = 150 * time.Millisecond

// Clock abstracts time for the pacer.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer is the single gate every outbound call passes through. It is safe
// for concurrent use, so one Pacer shared by several workers still enforces
// one global rate.
type Pacer struct {
	limiter *rate.Limiter
	clock   Clock
	delay   time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPacer allows one call per delay. A nil clock uses wall time; a
// non-positive delay disables pacing.
func NewPacer(delay time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = realClock{}
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock,
		delay:   delay,
	}
}

// Delay returns the configured minimum gap.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait blocks until the caller may start a call.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("pacer: reservation refused")
	}

	d := ceilMicro(r.DelayFrom(now))
	// A late wake-up lets the limiter bank time, so the gap is also measured
	// from the previous actual start.
	if !p.last.IsZero() {
		if gap := p.last.Add(p.delay).Sub(now); gap > d {
			d = gap
		}
	}
	metrics.PacerWait.Observe(d.Seconds())

	if d > 0 {
		if err := p.clock.Sleep(ctx, d); err != nil {
			r.CancelAt(p.clock.Now())
			return err
		}
	}
	p.last = p.clock.Now()
	return nil
}

// ceilMicro rounds up so float error in the limiter never shortens a gap.
func ceilMicro(d time.Duration) time.Duration {
	if rem := d % time.Microsecond; rem > 0 {
		d += time.Microsecond - rem
	}
	return d
}
