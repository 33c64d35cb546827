package grpclb

import (
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/balancer/roundrobin"
)

// rrBalancer is the subset of roundrobin.Balancer's surface RRSupervisor
// needs. Defined as an interface so tests can substitute a fake RR without
// dialing real addresses -- mirrors how the teacher's pool_test.go swaps in
// fake BalancerPickers rather than real SubConns.
type rrBalancer interface {
	Pick() (roundrobin.PickResult, error)
	Ping() error
	ExitIdle(ctx context.Context)
	CheckConnectivity() roundrobin.ConnState
	Ref()
	Unref()
	Close()
}

// newRRFunc builds a rrBalancer from a ServerList. Swapped out in tests;
// production wiring passes a closure over roundrobin.NewBalancer.
type newRRFunc func(ctx context.Context, list ServerList, onStateChange func()) rrBalancer

// supervisor owns the currently-installed RR (the "RRSlot" of spec §3) and
// implements §4.4's handover decision table: build a candidate RR from a
// freshly decoded ServerList, and either adopt it (replace the old one,
// draining pending work into it) or keep the old one installed (dropping
// the unusable candidate). supervisor guards its RR slot with its own
// mutex, mu; PolicyCore calls it without holding the coordinator lock.
type supervisor struct {
	newRR newRRFunc
	tr    *tracer

	current   rrBalancer
	haveAny   bool
	onChange  func(State)
	onAdopted func(ctx context.Context)

	mu sync.Mutex
}

func newSupervisor(newRR newRRFunc, tr *tracer, onChange func(State), onAdopted func(ctx context.Context)) *supervisor {
	return &supervisor{
		newRR:     newRR,
		tr:        tr,
		onChange:  onChange,
		onAdopted: onAdopted,
	}
}

// handover implements §4.4's replacement decision table: given a freshly
// decoded, non-empty ServerList, build a candidate RR and decide whether
// to adopt it.
//
// Decision table:
//   - the candidate's CheckConnectivity() is TransientFailure or
//     Shutdown -> the candidate is unusable; release it and leave the
//     slot as it is (the old RR, or none if nothing was installed) (C4,
//     §1: "never disrupt an already-serving RR instance when a
//     replacement is unusable").
//   - otherwise -> adopt: install the candidate, release (Unref) the old
//     one so it tears down once any picks still referencing it (via Ref
//     taken at pick time) drain, and drain pending work into the
//     candidate.
func (s *supervisor) handover(ctx context.Context, list ServerList) {
	s.mu.Lock()
	old := s.current
	s.mu.Unlock()

	candidate := s.newRR(ctx, list, func() {
		s.notifyStateChange()
	})

	switch candidate.CheckConnectivity() {
	case roundrobin.StateTransientFailure, roundrobin.StateShutdown:
		candidate.Unref()
		if s.tr != nil {
			s.tr.recordHandover(ctx, false)
		}
		return
	}

	s.mu.Lock()
	s.current = candidate
	s.haveAny = true
	s.mu.Unlock()

	if old != nil {
		old.Unref()
	}

	if s.tr != nil {
		s.tr.recordHandover(ctx, true)
	}

	if s.onAdopted != nil {
		s.onAdopted(ctx)
	}
}

// release tears down the installed RR without replacing it -- used by the
// Open Question's KeepRROnEmptyList=false path (spec §9): an empty list
// releases capacity rather than forcing an unusable RR into place.
func (s *supervisor) release() {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.haveAny = false
	s.mu.Unlock()

	if old != nil {
		old.Unref()
	}
}

// installed reports whether an RR is currently installed.
func (s *supervisor) installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// pick delegates to the installed RR, if any. The returned bool reports
// whether an RR was installed to even attempt the pick; ok=false means the
// caller must enqueue as pending.
func (s *supervisor) pick() (result roundrobin.PickResult, err error, ok bool) {
	s.mu.Lock()
	rr := s.current
	if rr != nil {
		rr.Ref()
	}
	s.mu.Unlock()

	if rr == nil {
		return roundrobin.PickResult{}, nil, false
	}
	defer rr.Unref()
	result, err = rr.Pick()
	return result, err, true
}

// ping delegates to the installed RR, if any.
func (s *supervisor) ping() (err error, ok bool) {
	s.mu.Lock()
	rr := s.current
	s.mu.Unlock()

	if rr == nil {
		return nil, false
	}
	return rr.Ping(), true
}

// exitIdle nudges the installed RR to exit idle, if any.
func (s *supervisor) exitIdle(ctx context.Context) {
	s.mu.Lock()
	rr := s.current
	s.mu.Unlock()

	if rr != nil {
		rr.ExitIdle(ctx)
	}
}

// connectivity reports the installed RR's aggregate connectivity, or Idle
// if none is installed.
func (s *supervisor) connectivity() State {
	s.mu.Lock()
	rr := s.current
	s.mu.Unlock()

	if rr == nil {
		return Idle
	}
	return translateState(rr.CheckConnectivity())
}

// shutdown tears down the installed RR permanently.
func (s *supervisor) shutdown() {
	s.mu.Lock()
	rr := s.current
	s.current = nil
	s.mu.Unlock()

	if rr != nil {
		rr.Close()
	}
}

// notifyStateChange is invoked by the installed RR (without any lock held,
// per roundrobin.Balancer's contract) whenever a SubConn's state changes.
// It translates the RR's connectivity into grpclb's own State vocabulary
// and forwards it to PolicyCore, which owns the coordinator lock.
func (s *supervisor) notifyStateChange() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.connectivity())
}

// translateState maps roundrobin.ConnState to grpclb.State. Both
// enumerate the same five-state vocabulary (Idle, Connecting, Ready,
// TransientFailure, Shutdown) in the same order, but this function keeps
// the mapping explicit rather than relying on that ordinal coincidence,
// so either enum can grow independently without silently breaking the
// other.
func translateState(s roundrobin.ConnState) State {
	switch s {
	case roundrobin.StateIdle:
		return Idle
	case roundrobin.StateConnecting:
		return Connecting
	case roundrobin.StateReady:
		return Ready
	case roundrobin.StateTransientFailure:
		return TransientFailure
	case roundrobin.StateShutdown:
		return Shutdown
	default:
		return TransientFailure
	}
}
