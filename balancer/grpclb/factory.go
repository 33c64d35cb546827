package grpclb

import (
	"errors"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/transport"
)

// Name is the plugin name the generic client channel looks up when a
// service config names "grpclb" as its load-balancing policy (spec §6).
const Name = "grpclb"

// BalancerAddress is one entry of the LB-addresses channel arg (spec §6):
// an address the generic client channel resolved, tagged with whether the
// resolver classified it as a balancer (grpclb endpoint) rather than a
// plain backend. Build/New only inspects IsBalancer; Addr is carried
// through for callers that want to log which address satisfied the
// precondition.
type BalancerAddress struct {
	Addr       string
	IsBalancer bool
}

// hasBalancerAddress reports whether addrs contains at least one entry
// flagged IsBalancer.
func hasBalancerAddress(addrs []BalancerAddress) bool {
	for _, a := range addrs {
		if a.IsBalancer {
			return true
		}
	}
	return false
}

// validateFactoryArgs enforces spec §6's factory precondition: "args must
// include a server-name string arg and an LB-addresses arg containing ≥1
// entry with is_balancer=true; otherwise factory returns no policy."
func validateFactoryArgs(serviceName string, lbAddrs []BalancerAddress) error {
	if serviceName == "" {
		return errors.New("grpclb: factory requires a non-empty server-name arg")
	}
	if !hasBalancerAddress(lbAddrs) {
		return errors.New("grpclb: factory requires an LB-addresses arg with at least one is_balancer=true entry")
	}
	return nil
}

// Builder constructs a Policy for one target service, given the LB channel
// to stream server lists over and a dialer for the backends that channel
// returns. Registered builders let a generic client channel instantiate
// grpclb by name without importing this package directly, mirroring
// rpc/transport/resolver's scheme registry.
type Builder interface {
	Build(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State)) (*Policy, error)
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc func(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State)) (*Policy, error)

func (f BuilderFunc) Build(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State)) (*Policy, error) {
	return f(ctx, channel, serviceName, lbAddrs, dialFunc, onStateChange)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{
		Name: BuilderFunc(func(ctx context.Context, channel LBChannel, serviceName string, lbAddrs []BalancerAddress, dialFunc transport.DialFunc, onStateChange func(State)) (*Policy, error) {
			return New(ctx, channel, serviceName, lbAddrs, dialFunc, onStateChange)
		}),
	}
)

// Register registers a Builder under name, replacing any existing one.
// Intended for tests or alternate grpclb variants; production code gets
// the "grpclb" builder pre-registered.
func Register(name string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = b
}

// Get returns the Builder registered under name.
func Get(name string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	return b, ok
}
