package roundrobin

import (
	"sync/atomic"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/transport"
)

// PickResult is the outcome of a successful Pick: the chosen address and
// its associated token, ready for the caller to splice into outbound
// metadata.
type PickResult struct {
	Addr  string
	Token string
}

// Balancer distributes picks round-robin across a fixed set of Addresses,
// connecting to each as soon as it is built and skipping any not currently StateReady. It
// is grpclb's inner child policy (spec §4.4/§6): grpclb owns deciding
// *when* a new Balancer replaces an old one; Balancer itself only knows
// how to dial and pick among the addresses it was built with.
//
// Modeled on rpc/client/pool.Pool + RoundRobinBalancer, narrowed to
// address selection: no RPC dispatch, no health service, no resolver --
// grpclb already did name resolution (it resolved the LB channel) and
// supplies a fixed address list itself.
type Balancer struct {
	dialFunc transport.DialFunc
	cfg      *config

	mu       sync.Mutex
	subConns []*SubConn
	closed   bool

	refs    atomic.Int64
	counter atomic.Uint64

	onStateChange func()
}

// NewBalancer builds a Balancer over addrs and immediately starts
// connecting to each. onStateChange, if non-nil, is invoked (without any
// lock held) every time any SubConn's state changes -- grpclb's
// RRSupervisor uses this to drive notify_on_state_change (spec §4.5).
func NewBalancer(ctx context.Context, addrs []Address, dialFunc transport.DialFunc, onStateChange func(), opts ...Option) *Balancer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Balancer{
		dialFunc:      dialFunc,
		cfg:           cfg,
		onStateChange: onStateChange,
	}
	b.refs.Store(1)

	b.subConns = make([]*SubConn, 0, len(addrs))
	for _, addr := range addrs {
		sc := newSubConn(addr, dialFunc, cfg.connectRetryPolicy, func(ConnState) {
			if b.onStateChange != nil {
				b.onStateChange()
			}
		})
		b.subConns = append(b.subConns, sc)
	}

	for _, sc := range b.subConns {
		sc.Connect(ctx)
	}

	return b
}

// Pick returns the next ready backend in round-robin order. Returns
// ErrNoReadySubConns if none are currently StateReady -- the caller
// (PolicyCore) is responsible for queuing the pick as pending in that
// case (spec §4.5/§8).
func (b *Balancer) Pick() (PickResult, error) {
	b.mu.Lock()
	subConns := b.subConns
	b.mu.Unlock()

	n := len(subConns)
	if n == 0 {
		return PickResult{}, ErrNoReadySubConns
	}

	start := b.counter.Add(1)
	for i := 0; i < n; i++ {
		sc := subConns[(int(start)+i)%n]
		if sc.State() == StateReady {
			return PickResult{Addr: sc.Addr().Addr, Token: sc.Addr().Token}, nil
		}
	}
	return PickResult{}, ErrNoReadySubConns
}

// Ping reports whether at least one backend is currently ready, without
// consuming a round-robin turn. Used to satisfy a pending ping (spec
// §4.5's ping semantics: "at least one backend is reachable").
func (b *Balancer) Ping() error {
	b.mu.Lock()
	subConns := b.subConns
	b.mu.Unlock()

	for _, sc := range subConns {
		if sc.State() == StateReady {
			return nil
		}
	}
	return ErrNoReadySubConns
}

// ExitIdle nudges every idle SubConn to begin connecting.
func (b *Balancer) ExitIdle(ctx context.Context) {
	b.mu.Lock()
	subConns := b.subConns
	b.mu.Unlock()

	for _, sc := range subConns {
		if sc.State() == StateIdle {
			sc.Connect(ctx)
		}
	}
}

// CheckConnectivity reports StateReady if any SubConn is ready, else
// StateConnecting if any is connecting, else StateTransientFailure (idle
// SubConns count as neither).
func (b *Balancer) CheckConnectivity() ConnState {
	b.mu.Lock()
	subConns := b.subConns
	b.mu.Unlock()

	anyConnecting := false
	for _, sc := range subConns {
		switch sc.State() {
		case StateReady:
			return StateReady
		case StateConnecting:
			anyConnecting = true
		}
	}
	if anyConnecting {
		return StateConnecting
	}
	return StateTransientFailure
}

// Ref increments the reference count. RRSupervisor takes one around each
// pick, so a Balancer replaced by a handover (spec §4.4) stays open until
// the picks in progress on it return.
func (b *Balancer) Ref() {
	b.refs.Add(1)
}

// Unref decrements the reference count and closes the Balancer once it
// reaches zero.
func (b *Balancer) Unref() {
	if b.refs.Add(-1) == 0 {
		b.Close()
	}
}

// Close shuts down every SubConn. Idempotent.
func (b *Balancer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subConns := b.subConns
	b.mu.Unlock()

	for _, sc := range subConns {
		sc.shutdown()
	}
}
