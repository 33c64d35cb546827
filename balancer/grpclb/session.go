package grpclb

import (
	"io"
	"net"
	"time"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	rpccontext "github.com/bearlytools/grpclb/rpc/context"
)

// session drives one logical LBSession across its whole lifetime: connect,
// stream server lists, detect termination, reconnect with backoff, repeat.
// Its internal bookkeeping (state, stream, lastList, cancel, timer) runs on
// its own background goroutine and is guarded by its own mutex, mu --
// session never takes PolicyCore's coordinator lock itself. Decisions that
// depend on policy-owned state (whether to adopt a server list, whether a
// pick's token lookup is safe to run concurrently) go through the
// onServerList/shuttingDown callbacks and the lastServerList accessor,
// which PolicyCore calls back into under its own lock as needed.
type session struct {
	channel     LBChannel
	serviceName string
	cfg         *config
	tr          *tracer

	// onServerList is invoked from session's own goroutine, with no lock
	// held, whenever a message decodes to a list (empty or not) that
	// differs from the last one seen. PolicyCore's handler takes the
	// coordinator lock itself.
	onServerList func(ctx context.Context, list ServerList)

	// shuttingDown reports whether the owning PolicyCore has begun
	// shutdown; consulted before arming a retry timer or starting a new
	// attempt.
	shuttingDown func() bool

	state   sessionState
	stream  LBStream
	lastList ServerList
	backoff *backoffController

	mu     sync.Mutex
	cancel context.CancelFunc
	timer  *time.Timer
}

func newSession(channel LBChannel, serviceName string, cfg *config, tr *tracer, onServerList func(context.Context, ServerList), shuttingDown func() bool) *session {
	return &session{
		channel:      channel,
		serviceName:  serviceName,
		cfg:          cfg,
		tr:           tr,
		onServerList: onServerList,
		shuttingDown: shuttingDown,
		state:        sessionIdle,
		backoff:      newBackoffController(cfg.minBackoff, cfg.maxBackoff, cfg.multiplier, cfg.jitter),
	}
}

// start transitions Idle->Starting and submits the streaming call as a
// background task. It must be called with the coordinator lock held but
// must not itself block -- the actual dial and stream I/O happen in run,
// dispatched via context.Pool(ctx).Submit, matching the background-retry
// idiom rpc/client/pool.SubConn.Connect uses.
func (s *session) start(ctx context.Context) {
	if s.state != sessionIdle && s.state != sessionCooling {
		return
	}
	s.state = sessionStarting

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	context.Pool(ctx).Submit(ctx, func() {
		s.run(runCtx)
	})
}

// run performs one streaming LB call attempt end to end: dial, send the
// initial request, loop receiving responses until the stream ends, then
// hand off to endAttempt to arm a retry. It never holds the coordinator
// lock across the blocking Recv calls -- only the onServerList and
// endAttempt callbacks re-acquire it, briefly, to mutate shared state.
func (s *session) run(ctx context.Context) {
	stream, err := s.channel.NewStream(ctx)
	if err != nil {
		s.endAttempt(ctx, err)
		return
	}

	if ra, ok := stream.(interface{ RemoteAddr() net.Addr }); ok {
		ctx = rpccontext.WithRemoteAddr(ctx, ra.RemoteAddr())
	}

	ctx, endSpan := s.tr.startLBCall(ctx)

	s.mu.Lock()
	s.state = sessionStreaming
	s.stream = stream
	s.mu.Unlock()

	if err := stream.Send(ctx, balanceLoadRequest{ServiceName: s.serviceName}); err != nil {
		endSpan(err)
		s.endAttempt(ctx, err)
		return
	}

	for {
		resp, err := stream.Recv(ctx)
		if err != nil {
			endSpan(err)
			if err == io.EOF {
				err = E(ctx, CatInternal, TypeLBCallEnded, err)
			}
			s.endAttempt(ctx, err)
			return
		}

		if resp.Servers == nil {
			// Wire-level empty payload (as opposed to a decoded,
			// zero-valid-entry ServerList): treated as cancellation
			// per spec §4.3. Drop the stream reference and let
			// endAttempt (on_status) handle teardown.
			endSpan(nil)
			s.endAttempt(ctx, E(ctx, CatInternal, TypeLBCallEnded, io.EOF))
			return
		}

		s.handleResponse(ctx, resp)
	}
}

// handleResponse implements spec §4.3's "payload non-empty" branch. It
// re-acquires the coordinator lock (via the caller-supplied
// onServerList/shuttingDown hooks reaching back into PolicyCore) only for
// the brief window needed to compare/replace lastList and invoke the
// handover.
func (s *session) handleResponse(ctx context.Context, resp balanceLoadResponse) {
	decoded := decodeServerList(resp.Servers)
	if decoded.Invalid > 0 || decoded.Dropped > 0 {
		s.tr.recordDecodeDiagnostics(ctx, decoded.Invalid, decoded.Dropped)
	}

	s.mu.Lock()
	shutting := s.shuttingDown()
	unchanged := s.lastList.Equal(decoded.Valid)
	s.mu.Unlock()
	if shutting {
		return
	}
	if unchanged {
		// Two equal ServerLists in a row: discard, continue (P3). This
		// also covers "empty followed by empty" -- no repeated
		// no-op notifications.
		return
	}

	if len(decoded.Valid) > 0 {
		// Backoff is only reset by a usable (>=1 server) response
		// (spec §9 "Backoff not reset on stream-status").
		s.backoff.reset()
	}

	s.mu.Lock()
	s.lastList = decoded.Valid
	s.mu.Unlock()

	// Whether decoded.Valid is empty or not is left for onServerList
	// (PolicyCore) to interpret per the Open Question's
	// KeepRROnEmptyList decision -- session itself is agnostic to that
	// policy choice.
	s.onServerList(ctx, decoded.Valid)
}

// lastServerList returns the most recently adopted ServerList, guarded by
// s.mu so callers on a different goroutine (PolicyCore.lookupToken,
// resolving a completed pick's token) never race handleResponse's write.
func (s *session) lastServerList() ServerList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastList
}

// endAttempt implements spec §4.3's "on status received" branch: tear
// down the call, and unless shutting down, arm a single-shot retry timer
// using the backoff controller.
func (s *session) endAttempt(ctx context.Context, _ error) {
	s.mu.Lock()
	s.state = sessionCooling
	s.stream = nil
	s.mu.Unlock()

	if s.shuttingDown() {
		return
	}

	delay := s.backoff.step()

	s.mu.Lock()
	s.timer = time.AfterFunc(delay, func() {
		if s.shuttingDown() {
			return
		}
		s.start(ctx)
	})
	s.mu.Unlock()
}

// stop cancels any in-flight streaming call and pending retry timer. It is
// called from PolicyCore.Shutdown after the coordinator lock is released.
func (s *session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.stream != nil {
		s.stream.CloseSend()
	}
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
