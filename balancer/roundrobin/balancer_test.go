package roundrobin

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/transport"
)

func dialAlways(ok map[string]bool) transport.DialFunc {
	return func(ctx context.Context, addr string) (transport.Transport, error) {
		if !ok[addr] {
			return nil, errors.New("refused")
		}
		client, server := net.Pipe()
		go server.Close()
		return transport.NetConnTransport(client), nil
	}
}

func waitBalancerReady(t *testing.T, b *Balancer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ready := 0
		b.mu.Lock()
		scs := b.subConns
		b.mu.Unlock()
		for _, sc := range scs {
			if sc.State() == StateReady {
				ready++
			}
		}
		if ready >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("waitBalancerReady: did not reach %d ready subconns in time", n)
}

func TestBalancerPickRoundRobinsAcrossReady(t *testing.T) {
	ctx := t.Context()
	addrs := []Address{{Addr: "a:1", Token: "ta"}, {Addr: "b:1", Token: "tb"}}
	b := NewBalancer(ctx, addrs, dialAlways(map[string]bool{"a:1": true, "b:1": true}), nil)
	defer b.Close()

	waitBalancerReady(t, b, 2)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		res, err := b.Pick()
		if err != nil {
			t.Fatalf("TestBalancerPickRoundRobinsAcrossReady: Pick failed: %v", err)
		}
		seen[res.Addr] = true
	}
	if len(seen) != 2 {
		t.Errorf("TestBalancerPickRoundRobinsAcrossReady: saw %d distinct addrs, want 2", len(seen))
	}
}

func TestBalancerPickSkipsNotReady(t *testing.T) {
	ctx := t.Context()
	addrs := []Address{{Addr: "a:1", Token: "ta"}, {Addr: "b:1", Token: "tb"}}
	b := NewBalancer(ctx, addrs, dialAlways(map[string]bool{"a:1": true}), nil)
	defer b.Close()

	waitBalancerReady(t, b, 1)

	for i := 0; i < 3; i++ {
		res, err := b.Pick()
		if err != nil {
			t.Fatalf("TestBalancerPickSkipsNotReady: Pick failed: %v", err)
		}
		if res.Addr != "a:1" {
			t.Errorf("TestBalancerPickSkipsNotReady: Pick = %q, want a:1", res.Addr)
		}
	}
}

func TestBalancerPickNoneReady(t *testing.T) {
	ctx := t.Context()
	b := NewBalancer(ctx, []Address{{Addr: "a:1"}}, dialAlways(nil), nil)
	defer b.Close()

	if _, err := b.Pick(); err != ErrNoReadySubConns {
		t.Errorf("TestBalancerPickNoneReady: err = %v, want ErrNoReadySubConns", err)
	}
}

func TestBalancerRefUnrefClosesAtZero(t *testing.T) {
	ctx := t.Context()
	b := NewBalancer(ctx, []Address{{Addr: "a:1"}}, dialAlways(map[string]bool{"a:1": true}), nil)
	waitBalancerReady(t, b, 1)

	b.Ref()
	b.Unref()
	if b.CheckConnectivity() != StateReady {
		t.Errorf("TestBalancerRefUnrefClosesAtZero: expected still ready after one ref/unref pair")
	}

	b.Unref()
	time.Sleep(10 * time.Millisecond)
	b.mu.Lock()
	scs := b.subConns
	b.mu.Unlock()
	for _, sc := range scs {
		if sc.State() != StateShutdown {
			t.Errorf("TestBalancerRefUnrefClosesAtZero: subconn state = %s, want SHUTDOWN", sc.State())
		}
	}
}
