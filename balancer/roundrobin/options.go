package roundrobin

import (
	"time"

	"github.com/gostdlib/base/retry/exponential"
)

// config holds configuration for a Balancer.
type config struct {
	// connectRetryPolicy governs how a SubConn retries a failed dial.
	connectRetryPolicy exponential.Policy
}

func defaultConfig() *config {
	return &config{
		connectRetryPolicy: exponential.FastRetryPolicy(),
	}
}

// Option configures a Balancer.
type Option func(*config)

// WithConnectRetryPolicy sets the retry policy used when dialing a
// backend address fails. Default is exponential.FastRetryPolicy().
func WithConnectRetryPolicy(policy exponential.Policy) Option {
	return func(c *config) {
		c.connectRetryPolicy = policy
	}
}

// connectTimeout bounds a single dial attempt.
const connectTimeout = 10 * time.Second
