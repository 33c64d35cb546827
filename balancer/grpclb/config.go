package grpclb

import (
	"time"

	"github.com/bearlytools/grpclb/rpc/serviceconfig"
)

// config holds the tunables for a Policy. Unlike rpc/serviceconfig, grpclb
// has exactly one logical "method" (the streaming LB call), so there is no
// per-method pattern matching of its own here -- just a flat set of knobs,
// set through Options. WithServiceConfig is the one bridge between the two:
// it resolves a serviceconfig.Config's MethodConfig for this Policy's
// serviceName once, at construction, and flattens the two fields grpclb
// cares about (WaitForReady, Timeout) into waitForReady/pickTimeout below.
type config struct {
	// minBackoff is the initial delay before the first reconnect attempt
	// after a streaming LB call fails without ever receiving a response.
	minBackoff time.Duration

	// maxBackoff caps the reconnect delay.
	maxBackoff time.Duration

	// multiplier is applied to the backoff delay after each failed
	// attempt.
	multiplier float64

	// jitter is the randomization factor applied to each backoff delay,
	// in [0, 1].
	jitter float64

	// keepRROnEmptyList controls what happens when a LoadBalanceResponse
	// carries a zero-length ServerList. When true (the default) the
	// existing round-robin child policy, if any, is left installed and
	// continues serving picks. When false, an empty list is treated the
	// same as an explicit "no backends" update: the installed RR child
	// is released and subsequent picks queue until a non-empty list
	// arrives.
	keepRROnEmptyList bool

	// callDeadline is the value set by WithCallDeadline. session does not
	// read it: a streaming LB call runs until the stream ends or the
	// caller's context is done.
	callDeadline time.Duration

	// waitForReady controls what Pick does when no RR with a ready
	// backend is installed yet: true (the default) queues the pick,
	// matching grpclb's historical behavior; false fails it immediately
	// with TypeNotReady instead. Set via WithServiceConfig.
	waitForReady bool

	// pickTimeout is the resolved MethodConfig.Timeout from the last
	// WithServiceConfig applied, if any. It is only stored: Pick does not
	// enforce it against a pending pick's lifetime, and no exported
	// accessor returns it.
	pickTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		minBackoff:        10 * time.Second,
		maxBackoff:        60 * time.Second,
		multiplier:        1.6,
		jitter:            0.2,
		keepRROnEmptyList: true,
		waitForReady:      true,
	}
}

// Option configures a Policy.
type Option func(*config)

// WithMinBackoff sets the initial reconnect delay after a failed streaming
// LB call. Default is 10 seconds.
func WithMinBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.minBackoff = d
		}
	}
}

// WithMaxBackoff caps the reconnect delay. Default is 60 seconds.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithMultiplier sets the backoff growth factor applied after each failed
// attempt. Default is 1.6, matching the grpc-go connection backoff default.
func WithMultiplier(m float64) Option {
	return func(c *config) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithJitter sets the randomization factor applied to each backoff delay,
// in [0, 1]. Default is 0.2.
func WithJitter(j float64) Option {
	return func(c *config) {
		if j >= 0 && j <= 1 {
			c.jitter = j
		}
	}
}

// WithKeepRROnEmptyList controls whether an empty ServerList leaves the
// existing round-robin child policy installed (true, the default) or
// releases it so picks start queuing (false).
func WithKeepRROnEmptyList(keep bool) Option {
	return func(c *config) {
		c.keepRROnEmptyList = keep
	}
}

// WithCallDeadline records a lifetime bound for a single streaming LB call
// (zero, the default, means none). The session does not apply it; an LB
// call is bounded only by the caller's context.
func WithCallDeadline(d time.Duration) Option {
	return func(c *config) {
		c.callDeadline = d
	}
}

// WithServiceConfig resolves sc's MethodConfig for serviceName
// (serviceconfig.Config.ForService) and applies its WaitForReady and
// Timeout to this Policy. A no-op if sc is nil or has no pattern matching
// serviceName.
func WithServiceConfig(sc *serviceconfig.Config, serviceName string) Option {
	return func(c *config) {
		if sc == nil {
			return
		}
		mc, ok := sc.ForService(serviceName)
		if !ok {
			return
		}
		c.waitForReady = mc.WaitForReady
		if mc.Timeout > 0 {
			c.pickTimeout = mc.Timeout
		}
	}
}
