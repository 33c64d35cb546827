package grpclb

import (
	"math/rand"
	"time"
)

// backoffController computes the delay before LBSession's next reconnect
// attempt. It is deliberately not built on gostdlib/base/retry/exponential:
// that package's Backoff.Retry blocks the caller until success, while
// LBSession needs to compute one delay, arm a single-shot timer, and return
// immediately so the coordinator lock can be released (spec §5). The
// parameters it steps with (min/max/multiplier/jitter) mirror
// exponential.Policy's shape even though the stepping logic is our own.
type backoffController struct {
	min        time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	// cur is the delay that would be used if step were called right
	// now, before jitter is applied. It starts at min and is reset to
	// min by reset().
	cur time.Duration

	// randFloat returns a value in [0, 1); overridable in tests for
	// deterministic jitter.
	randFloat func() float64
}

func newBackoffController(min, max time.Duration, multiplier, jitter float64) *backoffController {
	return &backoffController{
		min:        min,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
		cur:        min,
		randFloat:  rand.Float64,
	}
}

// reset restores the controller so the next step() returns a delay no
// larger than min*(1+jitter), per P5. Called on every decoded response with
// >=1 servers that differs from the last list. A new controller already
// starts at min, so the first attempt after start_picking needs no reset.
func (b *backoffController) reset() {
	b.cur = b.min
}

// step returns the delay to wait before the next reconnect attempt, and
// advances the controller's internal state by multiplier for next time.
// Delays form a monotonically non-decreasing sequence (ignoring jitter)
// bounded by [min, max] until the next reset.
func (b *backoffController) step() time.Duration {
	base := b.cur

	next := time.Duration(float64(b.cur) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	if next < b.min {
		next = b.min
	}
	b.cur = next

	return b.jittered(base)
}

// jittered applies the randomization factor to base, producing a value in
// [base*(1-jitter), base*(1+jitter)], clamped to [min, max].
func (b *backoffController) jittered(base time.Duration) time.Duration {
	if b.jitter <= 0 {
		return b.clamp(base)
	}
	delta := b.jitter * float64(base)
	lo := float64(base) - delta
	hi := float64(base) + delta
	d := time.Duration(lo + b.randFloat()*(hi-lo))
	return b.clamp(d)
}

func (b *backoffController) clamp(d time.Duration) time.Duration {
	if d < b.min {
		return b.min
	}
	if d > b.max {
		return b.max
	}
	return d
}
