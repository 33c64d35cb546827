package grpclb

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
)

// Category classifies who is responsible for an error: the caller, the
// package itself, or neither (unknown). It implements gostdlib's
// errors.Category interface so values can be passed straight to errors.E.
type Category uint32

const (
	CatUnknown Category = iota
	// CatUser indicates the caller did something invalid, such as
	// calling Pick() after Shutdown().
	CatUser
	// CatInternal indicates a bug or an unexpected failure talking to
	// the remote balancer.
	CatInternal
)

func (c Category) Category() string {
	return c.String()
}

// Type further classifies an error within a Category.
type Type uint32

const (
	TypeUnknown Type = iota
	// TypeMissingTokenStorage is returned by Pick when
	// PickArgs.TokenStorage is nil, leaving no metadata batch to carry
	// the LB token.
	TypeMissingTokenStorage
	// TypePickCancelled is returned to a pending pick that was cancelled
	// before a backend became available.
	TypePickCancelled
	// TypeChannelShutdown is returned to any pick or ping submitted after
	// the policy has been shut down. Picks and pings still pending when
	// Shutdown runs complete with a nil error instead.
	TypeChannelShutdown
	// TypeInvalidLBResponse names a server-list entry that fails
	// validation (bad port or IP length). decodeServerList drops and
	// counts such entries instead of returning an error, so nothing in
	// this package raises this Type.
	TypeInvalidLBResponse
	// TypeLBCallEnded wraps io.EOF when the streaming LB call ends with
	// EOF or an empty response payload. Other stream errors are passed
	// to the retry path unwrapped.
	TypeLBCallEnded
	// TypeConn indicates a transport-level dial or I/O failure.
	TypeConn
	// TypeTimeout indicates a deadline was exceeded.
	TypeTimeout
	// TypeNotReady is returned by Pick instead of queueing when the
	// policy's service config (WithServiceConfig) disables
	// wait-for-ready and no RR with a ready backend is installed yet.
	TypeNotReady
)

func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "Unknown"
	case TypeMissingTokenStorage:
		return "MissingTokenStorage"
	case TypePickCancelled:
		return "PickCancelled"
	case TypeChannelShutdown:
		return "ChannelShutdown"
	case TypeInvalidLBResponse:
		return "InvalidLBResponse"
	case TypeLBCallEnded:
		return "LBCallEnded"
	case TypeConn:
		return "Conn"
	case TypeTimeout:
		return "Timeout"
	case TypeNotReady:
		return "NotReady"
	default:
		return "Unknown"
	}
}

func (c Category) String() string {
	switch c {
	case CatUnknown:
		return "Unknown"
	case CatUser:
		return "User"
	case CatInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

func (t Type) Type() string {
	return t.String()
}

// Error is the error type returned by every exported call in this package.
type Error = errors.Error

// EOption is re-exported so callers can pass WithStackTrace()/WithCallNum()
// without importing gostdlib/base/errors directly.
type EOption = errors.EOption

// errMissingTokenStorage is the underlying error wrapped by a Pick that
// fails §4.5's "args.token_storage non-null" precondition.
type errMissingTokenStorage struct{}

func (errMissingTokenStorage) Error() string {
	return "grpclb: PickArgs.TokenStorage is nil"
}

// errNotReady is the underlying error wrapped by a Pick that fails fast
// under a wait-for-ready=false service config.
type errNotReady struct{}

func (errNotReady) Error() string {
	return "grpclb: no ready backend and wait-for-ready is disabled"
}

// E builds an Error tagged with our local Category/Type enums, adding an
// extra call frame so the reported location is the grpclb call site instead
// of this helper.
func E(ctx context.Context, c Category, t Type, msg error, options ...EOption) Error {
	opts := make([]EOption, 0, len(options)+1)
	opts = append(opts, errors.WithCallNum(2))
	opts = append(opts, options...)
	return errors.E(ctx, c, t, msg, opts...)
}
