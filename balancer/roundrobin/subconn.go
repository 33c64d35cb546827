package roundrobin

import (
	"errors"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/retry/exponential"

	"github.com/bearlytools/grpclb/rpc/transport"
)

// ConnState is the connectivity state of a single SubConn.
type ConnState uint8

const (
	StateIdle ConnState = iota
	StateConnecting
	StateReady
	StateTransientFailure
	StateShutdown
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateTransientFailure:
		return "TRANSIENT_FAILURE"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrSubConnShutdown = errors.New("roundrobin: subconn is shutdown")
	ErrNoReadySubConns = errors.New("roundrobin: no ready subconns available")
)

// SubConn represents a dialed connection to a single backend address. It
// manages its own connect-with-backoff lifecycle, mirroring
// rpc/client/pool.SubConn but without the RPC-method surface -- grpclb
// only needs to know "is this address reachable right now", not send
// calls through it itself (that is the inner channel's job once the pick
// completes, out of scope here per spec §6).
type SubConn struct {
	addr     Address
	dialFunc transport.DialFunc
	policy   exponential.Policy

	mu      sync.Mutex
	state   ConnState
	conn    transport.Transport
	lastErr error
	closeCh chan struct{}

	onStateChange func(ConnState)
}

func newSubConn(addr Address, dialFunc transport.DialFunc, policy exponential.Policy, onStateChange func(ConnState)) *SubConn {
	return &SubConn{
		addr:          addr,
		dialFunc:      dialFunc,
		policy:        policy,
		state:         StateIdle,
		closeCh:       make(chan struct{}),
		onStateChange: onStateChange,
	}
}

// Addr returns the address this SubConn dials.
func (sc *SubConn) Addr() Address {
	return sc.addr
}

// State returns the current connectivity state.
func (sc *SubConn) State() ConnState {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// Connect starts connecting if idle. Non-blocking.
func (sc *SubConn) Connect(ctx context.Context) {
	sc.mu.Lock()
	switch sc.state {
	case StateShutdown, StateConnecting, StateReady:
		sc.mu.Unlock()
		return
	}
	sc.state = StateConnecting
	sc.mu.Unlock()
	sc.notify(StateConnecting)

	context.Pool(ctx).Submit(ctx, func() {
		sc.connectWithRetry(ctx)
	})
}

func (sc *SubConn) connectWithRetry(ctx context.Context) {
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	context.Pool(ctx).Submit(ctx, func() {
		select {
		case <-sc.closeCh:
			cancel()
		case <-connectCtx.Done():
		}
	})

	backoff, err := exponential.New(exponential.WithPolicy(sc.policy))
	if err != nil {
		sc.setTransientFailure(err)
		return
	}

	err = backoff.Retry(connectCtx, func(retryCtx context.Context, r exponential.Record) error {
		dialErr := sc.tryConnect(retryCtx)
		if dialErr != nil {
			sc.mu.Lock()
			if sc.state == StateShutdown {
				sc.mu.Unlock()
				return exponential.ErrRetryCanceled
			}
			sc.state = StateTransientFailure
			sc.lastErr = dialErr
			sc.mu.Unlock()
			sc.notify(StateTransientFailure)
		}
		return dialErr
	})

	if err != nil && !errors.Is(err, exponential.ErrRetryCanceled) {
		sc.setTransientFailure(err)
	}
}

func (sc *SubConn) tryConnect(ctx context.Context) error {
	t, err := sc.dialFunc(ctx, sc.addr.Addr)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	if sc.state == StateShutdown {
		sc.mu.Unlock()
		t.Close()
		return ErrSubConnShutdown
	}
	sc.conn = t
	sc.state = StateReady
	sc.lastErr = nil
	sc.mu.Unlock()
	sc.notify(StateReady)
	return nil
}

func (sc *SubConn) setTransientFailure(err error) {
	sc.mu.Lock()
	if sc.state != StateShutdown {
		sc.state = StateTransientFailure
		sc.lastErr = err
	}
	sc.mu.Unlock()
	sc.notify(StateTransientFailure)
}

// shutdown permanently shuts down the SubConn.
func (sc *SubConn) shutdown() {
	sc.mu.Lock()
	if sc.state == StateShutdown {
		sc.mu.Unlock()
		return
	}
	sc.state = StateShutdown
	conn := sc.conn
	sc.conn = nil
	select {
	case <-sc.closeCh:
	default:
		close(sc.closeCh)
	}
	sc.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	sc.notify(StateShutdown)
}

func (sc *SubConn) notify(s ConnState) {
	if sc.onStateChange != nil {
		sc.onStateChange(s)
	}
}
