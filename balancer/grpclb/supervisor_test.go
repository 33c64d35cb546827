package grpclb

import (
	"testing"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/balancer/roundrobin"
)

// fakeRR is a hand-written fake satisfying rrBalancer, following the
// teacher's no-mocking-framework convention.
type fakeRR struct {
	pickResult roundrobin.PickResult
	pickErr    error
	pingErr    error
	conn       roundrobin.ConnState
	closed     bool
	refs       int
}

func (f *fakeRR) Pick() (roundrobin.PickResult, error) { return f.pickResult, f.pickErr }
func (f *fakeRR) Ping() error                           { return f.pingErr }
func (f *fakeRR) ExitIdle(ctx context.Context)          {}
func (f *fakeRR) CheckConnectivity() roundrobin.ConnState { return f.conn }
func (f *fakeRR) Ref()                                  { f.refs++ }
func (f *fakeRR) Unref()                                { f.refs--; if f.refs <= 0 { f.closed = true } }
func (f *fakeRR) Close()                                { f.closed = true }

func TestSupervisorHandoverNoExisting(t *testing.T) {
	ctx := t.Context()
	want := &fakeRR{pickResult: roundrobin.PickResult{Addr: "a:1", Token: "t"}, conn: roundrobin.StateReady}
	adopted := false

	sv := newSupervisor(
		func(ctx context.Context, list ServerList, onChange func()) rrBalancer { return want },
		nil,
		nil,
		func(ctx context.Context) { adopted = true },
	)

	sv.handover(ctx, ServerList{{Addr: Address{IP: []byte{1, 2, 3, 4}, Port: 1}}})

	if !sv.installed() {
		t.Fatalf("TestSupervisorHandoverNoExisting: expected RR installed")
	}
	if !adopted {
		t.Errorf("TestSupervisorHandoverNoExisting: onAdopted not called")
	}
	res, err, ok := sv.pick()
	if !ok || err != nil || res.Addr != "a:1" {
		t.Errorf("TestSupervisorHandoverNoExisting: pick = %+v, %v, %v", res, err, ok)
	}
}

func TestSupervisorHandoverReplacesAndUnrefsOld(t *testing.T) {
	ctx := t.Context()
	old := &fakeRR{refs: 1}
	newOne := &fakeRR{conn: roundrobin.StateReady}

	calls := 0
	sv := newSupervisor(
		func(ctx context.Context, list ServerList, onChange func()) rrBalancer {
			calls++
			return newOne
		},
		nil, nil, nil,
	)
	sv.current = old
	sv.haveAny = true

	sv.handover(ctx, ServerList{{Addr: Address{IP: []byte{1, 2, 3, 4}, Port: 1}}})

	if sv.current != newOne {
		t.Errorf("TestSupervisorHandoverReplacesAndUnrefsOld: current not swapped")
	}
	if !old.closed {
		t.Errorf("TestSupervisorHandoverReplacesAndUnrefsOld: old RR not closed after Unref")
	}
}

func TestSupervisorHandoverKeepsOldOnTransientFailure(t *testing.T) {
	ctx := t.Context()
	old := &fakeRR{refs: 1, conn: roundrobin.StateReady}
	bad := &fakeRR{conn: roundrobin.StateTransientFailure}

	sv := newSupervisor(
		func(ctx context.Context, list ServerList, onChange func()) rrBalancer { return bad },
		nil, nil,
		func(ctx context.Context) { t.Errorf("onAdopted called for an unusable candidate") },
	)
	sv.current = old
	sv.haveAny = true

	sv.handover(ctx, ServerList{{Addr: Address{IP: []byte{1, 2, 3, 4}, Port: 1}}})

	if sv.current != old {
		t.Errorf("TestSupervisorHandoverKeepsOldOnTransientFailure: current = %v, want old RR kept", sv.current)
	}
	if old.closed {
		t.Errorf("TestSupervisorHandoverKeepsOldOnTransientFailure: old RR torn down, want left serving")
	}
	if !bad.closed {
		t.Errorf("TestSupervisorHandoverKeepsOldOnTransientFailure: unusable candidate not released")
	}
}

func TestSupervisorReleaseClearsSlot(t *testing.T) {
	old := &fakeRR{refs: 1}
	sv := newSupervisor(nil, nil, nil, nil)
	sv.current = old
	sv.haveAny = true

	sv.release()

	if sv.installed() {
		t.Errorf("TestSupervisorReleaseClearsSlot: expected no RR installed")
	}
	if !old.closed {
		t.Errorf("TestSupervisorReleaseClearsSlot: old RR not closed")
	}
}

func TestSupervisorPickNotInstalled(t *testing.T) {
	sv := newSupervisor(nil, nil, nil, nil)
	_, _, ok := sv.pick()
	if ok {
		t.Errorf("TestSupervisorPickNotInstalled: expected ok=false with no RR installed")
	}
}

func TestTranslateState(t *testing.T) {
	tests := map[roundrobin.ConnState]State{
		roundrobin.StateIdle:             Idle,
		roundrobin.StateConnecting:       Connecting,
		roundrobin.StateReady:            Ready,
		roundrobin.StateTransientFailure: TransientFailure,
		roundrobin.StateShutdown:         Shutdown,
	}
	for in, want := range tests {
		if got := translateState(in); got != want {
			t.Errorf("translateState(%v) = %v, want %v", in, got, want)
		}
	}
}
