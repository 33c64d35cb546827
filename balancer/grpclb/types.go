// Package grpclb implements the client-side half of the grpclb external
// load-balancing policy: a policy that delegates backend selection to an
// external LB service reached over a streaming bidirectional call, and
// that runs an inner round-robin policy over whatever backend list the LB
// service most recently returned.
package grpclb

import (
	"net"
	"strconv"
	"time"

	"github.com/bearlytools/grpclb/rpc/metadata"
)

// emptyToken is the sentinel used for a Server that carries no LB token.
const emptyToken = ""

// Address is an IPv4 or IPv6 socket address. Valid reports whether the
// address bytes have a length grpclb accepts (4 for IPv4, 16 for IPv6).
type Address struct {
	IP   []byte
	Port uint16
}

// Valid reports whether a holds a well-formed IPv4 or IPv6 address.
func (a Address) Valid() bool {
	return len(a.IP) == 4 || len(a.IP) == 16
}

// String renders the address as host:port, suitable for dialing.
func (a Address) String() string {
	return net.JoinHostPort(net.IP(a.IP).String(), strconv.Itoa(int(a.Port)))
}

// Server is one backend entry in a ServerList: an address plus an opaque
// LB token the client must echo back on calls routed to it.
type Server struct {
	Addr Address

	// Token is the opaque per-address byte string the client echoes as
	// metadata for usage accounting. Empty means the empty-token
	// sentinel; a pick that lands on this backend still writes an
	// lb-token entry, with an empty value.
	Token string
}

// HasToken reports whether s carries a non-sentinel token.
func (s Server) HasToken() bool {
	return s.Token != emptyToken
}

// ServerList is an ordered sequence of Servers, as returned by one
// LoadBalanceResponse from the LB service. Order is preserved, is
// significant for RR's traffic distribution, and is part of equality.
type ServerList []Server

// Equal reports whether two ServerLists hold the same sequence of
// (address, port, token) tuples, element-wise.
func (l ServerList) Equal(other ServerList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		a, b := l[i], other[i]
		if a.Token != b.Token || a.Addr.Port != b.Addr.Port {
			return false
		}
		if string(a.Addr.IP) != string(b.Addr.IP) {
			return false
		}
	}
	return true
}

// sessionState is the LBSession's state machine position.
type sessionState int

const (
	sessionIdle sessionState = iota
	sessionStarting
	sessionStreaming
	sessionCooling
)

func (s sessionState) String() string {
	switch s {
	case sessionIdle:
		return "Idle"
	case sessionStarting:
		return "Starting"
	case sessionStreaming:
		return "Streaming"
	case sessionCooling:
		return "Cooling"
	default:
		return "Unknown"
	}
}

// State mirrors the aggregate connectivity states a Policy (and its inner
// RR) can be in. It deliberately matches the vocabulary used throughout
// rpc/transport/resolver and rpc/client/pool rather than inventing a new
// one.
type State int

const (
	Idle State = iota
	Connecting
	Ready
	TransientFailure
	Shutdown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Ready:
		return "Ready"
	case TransientFailure:
		return "TransientFailure"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// PickResult is what a completed pick yields: the chosen address's dial
// target and the LB token TokenInjector attaches to the call's initial
// metadata.
type PickResult struct {
	// Addr is empty when the pick completed with no chosen backend (for
	// example during shutdown).
	Addr string

	// Token is the backend's opaque LB token, or emptyToken if it
	// carried none.
	Token string
}

// PickArgs describes one pick request.
type PickArgs struct {
	// Deadline is carried with the pick request. Policy does not read it:
	// a pending pick stays queued until an RR is adopted, the pick is
	// cancelled, or the policy shuts down.
	Deadline time.Time

	// TokenStorage is the call's initial metadata batch, the destination
	// InjectToken writes the chosen backend's LB token into. It must be
	// non-nil (spec §4.5): a Pick carrying a nil TokenStorage fails
	// immediately with TypeMissingTokenStorage rather than resolving a
	// backend it has nowhere to record a token for.
	TokenStorage metadata.MD
}
