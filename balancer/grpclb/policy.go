package grpclb

import (
	"io"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/balancer/roundrobin"
	"github.com/bearlytools/grpclb/rpc/metadata"
	"github.com/bearlytools/grpclb/rpc/transport"
)

// Policy is the public surface of the grpclb child policy (spec §4.5):
// pick, ping, cancel, exit-idle, connectivity state, shutdown. Every
// exported method takes the single coordinator lock (mu) for the
// duration of its synchronous bookkeeping and releases it before invoking
// any caller-supplied continuation, satisfying §5's "never call back
// under the lock" rule.
type Policy struct {
	cfg *config
	tr  *tracer

	session    *session
	pending    *pendingQueues
	supervisor *supervisor

	mu             sync.Mutex
	shutdownF      bool
	startedPicking bool
	state          State

	onStateChange func(State)
}

// New builds a Policy that streams server lists from channel for
// serviceName, dialing backends returned in those lists with dialFunc.
// lbAddrs is the LB-addresses channel arg (spec §6); New enforces its
// factory precondition -- serviceName non-empty and at least one entry of
// lbAddrs flagged IsBalancer -- and returns no Policy if it's unmet.
// onStateChange, if non-nil, is invoked (without the coordinator lock
// held) whenever the policy's aggregate connectivity state changes.
func New(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State), opts ...Option) (*Policy, error) {
	if err := validateFactoryArgs(serviceName, lbAddrs); err != nil {
		return nil, E(ctx, CatUser, TypeUnknown, err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	tr, err := newTracer(ctx, true)
	if err != nil {
		return nil, E(ctx, CatInternal, TypeUnknown, err)
	}

	p := &Policy{
		cfg:           cfg,
		tr:            tr,
		pending:       newPendingQueues(),
		state:         Idle,
		onStateChange: onStateChange,
	}

	newRR := func(ctx context.Context, list ServerList, onChange func()) rrBalancer {
		addrs := make([]roundrobin.Address, 0, len(list))
		for _, srv := range list {
			addrs = append(addrs, roundrobin.Address{Addr: srv.Addr.String(), Token: srv.Token})
		}
		return roundrobin.NewBalancer(ctx, addrs, dialFunc, onChange)
	}
	p.supervisor = newSupervisor(newRR, tr, p.handleRRStateChange, p.handleAdopted)
	p.session = newSession(channel, serviceName, cfg, tr, p.handleServerList, p.isShutdown)

	return p, nil
}

// startPickingLocked implements I2/§4.5's started_picking flag: the
// LBSession is started lazily, the first time either Pick or ExitIdle is
// called, rather than eagerly at construction. The flag flips at most
// once. Callers must already hold mu.
func (p *Policy) startPickingLocked(ctx context.Context) {
	if p.startedPicking {
		return
	}
	p.startedPicking = true
	p.session.start(ctx)
}

// isShutdown reports whether Shutdown has been called. Safe to call
// without holding mu from session's background goroutine.
func (p *Policy) isShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdownF
}

// handleServerList is session's onServerList callback: it re-acquires the
// coordinator lock and applies the Open Question's empty-list decision
// (spec §9) before delegating to supervisor.handover.
func (p *Policy) handleServerList(ctx context.Context, list ServerList) {
	p.mu.Lock()
	if p.shutdownF {
		p.mu.Unlock()
		return
	}
	picks, pings := p.pending.pickCount(), p.pending.pingCount()

	if len(list) == 0 {
		if p.cfg.keepRROnEmptyList {
			p.mu.Unlock()
			p.tr.recordPendingDepth(ctx, picks, pings)
			p.tr.recordHandover(ctx, false)
			return
		}
		p.mu.Unlock()
		p.tr.recordPendingDepth(ctx, picks, pings)
		p.supervisor.release()
		p.recomputeState()
		return
	}
	p.mu.Unlock()
	p.tr.recordPendingDepth(ctx, picks, pings)

	p.supervisor.handover(ctx, list)
	p.recomputeState()
}

// handleAdopted runs after supervisor.handover installs a new RR: it
// drains every pending pick and ping into the new RR, matching §4.4's
// "drain PendingQueues into it" step.
func (p *Policy) handleAdopted(ctx context.Context) {
	p.mu.Lock()
	picks := p.pending.drainPicks()
	pings := p.pending.drainPings()
	p.mu.Unlock()

	for _, pk := range picks {
		p.servePick(ctx, pk)
	}
	for _, pg := range pings {
		p.servePing(pg)
	}
}

// handleRRStateChange is the installed RR's onStateChange callback
// (invoked with no lock held, per roundrobin.Balancer's contract). It
// recomputes the aggregate state and, if changed, notifies the caller
// outside of mu.
func (p *Policy) handleRRStateChange(State) {
	p.recomputeState()
}

func (p *Policy) recomputeState() {
	next := p.supervisor.connectivity()

	p.mu.Lock()
	changed := next != p.state
	p.state = next
	p.mu.Unlock()

	if changed && p.onStateChange != nil {
		p.onStateChange(next)
	}
}

// Pick resolves one backend selection. If an RR is installed and has a
// ready backend, it completes synchronously (the "Immediate" outcome of
// spec §4.5); otherwise the pick is queued (the "Deferred" outcome) and
// continuation fires later from handleAdopted once an RR is installed, or
// from CancelPick/Shutdown if it's cancelled or the policy tears down
// first.
func (p *Policy) Pick(ctx context.Context, args PickArgs, continuation func(PickResult, error)) *PickResult {
	p.mu.Lock()
	if p.shutdownF {
		p.mu.Unlock()
		err := E(ctx, CatUser, TypeChannelShutdown, io.ErrClosedPipe)
		continuation(PickResult{}, err)
		return nil
	}

	if args.TokenStorage == nil {
		p.mu.Unlock()
		err := E(ctx, CatUser, TypeMissingTokenStorage, errMissingTokenStorage{})
		continuation(PickResult{}, err)
		return nil
	}

	p.startPickingLocked(ctx)

	result, err, ok := p.supervisor.pick()
	if ok && err == nil {
		p.mu.Unlock()
		token, found := p.lookupToken(result.Addr)
		checkTokenInvariant(found)
		injectToken(ctx, args.TokenStorage, token)
		pr := PickResult{Addr: result.Addr, Token: token}
		continuation(pr, nil)
		return &pr
	}

	if !p.cfg.waitForReady {
		p.mu.Unlock()
		err := E(ctx, CatUser, TypeNotReady, errNotReady{})
		continuation(PickResult{}, err)
		return nil
	}

	slot := &PickResult{}
	pk := &pendingPick{args: args, targetSlot: slot, continuation: continuation}
	p.pending.enqueuePick(pk)
	p.mu.Unlock()
	return slot
}

// servePick completes one previously-queued pick against the now-installed
// RR. Invoked without mu held.
func (p *Policy) servePick(ctx context.Context, pk *pendingPick) {
	result, err, ok := p.supervisor.pick()
	if !ok || err != nil {
		if pk.continuation != nil {
			pk.continuation(PickResult{}, err)
		}
		return
	}

	token, found := p.lookupToken(result.Addr)
	checkTokenInvariant(found)
	injectToken(ctx, pk.args.TokenStorage, token)
	pr := PickResult{Addr: result.Addr, Token: token}
	if pk.targetSlot != nil {
		*pk.targetSlot = pr
	}
	if pk.continuation != nil {
		pk.continuation(pr, nil)
	}
}

// lookupToken recovers the LB token for a chosen address from the last
// decoded ServerList. Done here (rather than threading the token through
// roundrobin.PickResult's untouched fields) because the token is session
// state, and session and supervisor are deliberately kept ignorant of one
// another beyond the ServerList handoff.
func (p *Policy) lookupToken(addr string) (string, bool) {
	for _, srv := range p.session.lastServerList() {
		if srv.Addr.String() == addr {
			return srv.Token, true
		}
	}
	return emptyToken, false
}

// Ping reports whether the installed RR has at least one ready backend. If
// no RR is installed, the ping is queued and continuation fires once one
// is.
func (p *Policy) Ping(ctx context.Context, continuation func(error)) {
	p.mu.Lock()
	if p.shutdownF {
		p.mu.Unlock()
		continuation(E(ctx, CatUser, TypeChannelShutdown, io.ErrClosedPipe))
		return
	}

	err, ok := p.supervisor.ping()
	if ok {
		p.mu.Unlock()
		continuation(err)
		return
	}

	p.pending.enqueuePing(&pendingPing{continuation: continuation})
	p.mu.Unlock()
}

func (p *Policy) servePing(pg *pendingPing) {
	err, ok := p.supervisor.ping()
	if !ok {
		err = nil
	}
	if pg.continuation != nil {
		pg.continuation(err)
	}
}

// CancelPick cancels the pending pick identified by the slot returned from
// Pick, if it is still queued. A no-op if the pick already completed.
func (p *Policy) CancelPick(ctx context.Context, slot *PickResult) {
	p.mu.Lock()
	matched := p.pending.cancelMatchingPicks(cancelByTargetSlot(slot))
	p.mu.Unlock()

	completePicks(matched, E(ctx, CatUser, TypePickCancelled, io.EOF))
}

// CancelPicksWithFlags cancels every pending pick whose flags, masked by
// mask, equal needle -- the bulk-cancel primitive spec §4.5 names for
// application-level batch cancellation (e.g. "cancel every pick for a
// call that timed out upstream").
func (p *Policy) CancelPicksWithFlags(ctx context.Context, mask, needle uint32) {
	p.mu.Lock()
	matched := p.pending.cancelMatchingPicks(cancelByFlagMask(mask, needle))
	p.mu.Unlock()

	completePicks(matched, E(ctx, CatUser, TypePickCancelled, io.EOF))
}

// ExitIdle nudges the installed RR's SubConns to begin connecting, if any
// are idle, and -- per I2/§4.5 -- is also one of the two calls (with Pick)
// that starts the LBSession the first time it's invoked on a freshly
// built Policy. A no-op beyond that if no RR is installed yet.
func (p *Policy) ExitIdle(ctx context.Context) {
	p.mu.Lock()
	if p.shutdownF {
		p.mu.Unlock()
		return
	}
	p.startPickingLocked(ctx)
	p.mu.Unlock()

	p.supervisor.exitIdle(ctx)
}

// CheckConnectivity reports the policy's current aggregate connectivity
// state.
func (p *Policy) CheckConnectivity() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// InjectToken splices a completed pick's token onto md, the call's initial
// metadata batch (C6/spec §4.6). A no-op if pr carries no backend (Addr
// empty, as produced by a cancelled or shutdown-completed pick).
func InjectToken(ctx context.Context, md metadata.MD, pr PickResult) {
	if pr.Addr == "" {
		return
	}
	injectToken(ctx, md, pr.Token)
}

// Shutdown tears down the streaming LB session, the installed RR, and
// completes every pending pick and ping with no backend (spec §4.5).
// Idempotent.
func (p *Policy) Shutdown() {
	p.mu.Lock()
	if p.shutdownF {
		p.mu.Unlock()
		return
	}
	p.shutdownF = true
	picks, pings := p.pending.drainAll()
	p.mu.Unlock()

	completePicks(picks, nil)
	completePings(pings, nil)

	p.session.stop()
	p.supervisor.shutdown()

	p.mu.Lock()
	p.state = Shutdown
	p.mu.Unlock()
	if p.onStateChange != nil {
		p.onStateChange(Shutdown)
	}
}
