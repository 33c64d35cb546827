// Package context provides RPC-specific context utilities.
// It uses private key types to prevent collisions with other packages.
//
// balancer/grpclb.session stamps the remote address of the LB stream it
// just dialed onto the context it passes to the rest of one run() attempt,
// with RemoteAddr here rather than a second, grpclb-local key -- the value
// means "the peer this context's in-flight call is talking to" regardless
// of whether that peer accepted the connection (the original, server-side
// use this package was written for) or was dialed outbound (grpclb's).
package context

import (
	"net"

	"github.com/gostdlib/base/context"
)

// remoteAddrKey is a private type used as a context key for the remote address.
type remoteAddrKey struct{}

// RemoteAddr retrieves the remote address from context.
// Returns nil if not set.
func RemoteAddr(ctx context.Context) net.Addr {
	addr, _ := ctx.Value(remoteAddrKey{}).(net.Addr)
	return addr
}

// WithRemoteAddr returns a context with the remote address attached.
func WithRemoteAddr(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}
