package grpclb

import (
	"testing"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/transport"
)

func TestFactoryDefaultBuilderRegistered(t *testing.T) {
	b, ok := Get(Name)
	if !ok {
		t.Fatalf("TestFactoryDefaultBuilderRegistered: %q not registered", Name)
	}

	stream := newFakeStream()
	channel := &fakeChannel{stream: stream}
	ctx := t.Context()

	p, err := b.Build(ctx, channel, "svc", testLBAddrs, testDialFunc(true), nil)
	if err != nil {
		t.Fatalf("TestFactoryDefaultBuilderRegistered: Build failed: %v", err)
	}
	defer p.Shutdown()

	if p.CheckConnectivity() == Shutdown {
		t.Errorf("TestFactoryDefaultBuilderRegistered: freshly built policy reports Shutdown")
	}
}

func TestFactoryBuildRejectsMissingBalancerAddress(t *testing.T) {
	b, ok := Get(Name)
	if !ok {
		t.Fatalf("TestFactoryBuildRejectsMissingBalancerAddress: %q not registered", Name)
	}

	stream := newFakeStream()
	channel := &fakeChannel{stream: stream}

	_, err := b.Build(t.Context(), channel, "svc", []BalancerAddress{{Addr: "10.0.0.1:1"}}, testDialFunc(true), nil)
	if err == nil {
		t.Errorf("TestFactoryBuildRejectsMissingBalancerAddress: expected an error, got a Policy")
	}
}

func TestFactoryRegisterOverride(t *testing.T) {
	const name = "grpclb-test-variant"
	called := false

	Register(name, BuilderFunc(func(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State)) (*Policy, error) {
		called = true
		return New(ctx, channel, serviceName, lbAddrs, dialFunc, onStateChange)
	}))

	b, ok := Get(name)
	if !ok || b == nil {
		t.Fatalf("TestFactoryRegisterOverride: %q not found after Register", name)
	}

	stream := newFakeStream()
	channel := &fakeChannel{stream: stream}
	p, err := b.Build(t.Context(), channel, "svc", testLBAddrs, testDialFunc(true), nil)
	if err != nil {
		t.Fatalf("TestFactoryRegisterOverride: Build failed: %v", err)
	}
	defer p.Shutdown()

	if !called {
		t.Errorf("TestFactoryRegisterOverride: registered builder was not invoked")
	}
}
