package grpclb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/compress"
	"github.com/bearlytools/grpclb/rpc/credentials"
	"github.com/bearlytools/grpclb/rpc/transport"
)

// balanceLoadRequest is the single outbound message LBSession sends at the
// start of a streaming call: the name of the service the caller wants
// backends for. The wire encoding of the real LB protobuf schema
// (grpc.lb.v1.LoadBalancer/BalanceLoad) is an external collaborator (spec
// §6) -- this struct and its gob framing are this module's own internal
// substitute, used by TransportLBChannel so the rest of the package has a
// concrete channel to run against.
type balanceLoadRequest struct {
	ServiceName string

	// AuthHeader carries the metadata produced by a configured
	// PerRPCCredentials (WithCredentials), if any. Empty when the channel
	// carries no credentials.
	AuthHeader map[string]string
}

// perRPCCredentials is an alias for rpc/credentials.PerRPCCredentials, the
// interface every concrete type in that package satisfies (TokenCredentials,
// TokenSourceCredentials, APIKeyCredentials, CompositeCredentials).
type perRPCCredentials = credentials.PerRPCCredentials

// balanceLoadResponse is the single inbound message shape: either a
// server list, or nothing (a pure keepalive/cancellation signal, per spec
// §4.3's "payload empty" case).
type balanceLoadResponse struct {
	Servers []rawServer
}

// LBStream is one streaming LB call in progress. It is the minimal
// surface LBSession needs: send the initial request once, then receive a
// sequence of responses until the stream ends.
type LBStream interface {
	// Send issues the single outbound request for this call. It must be
	// called at most once, before the first Recv.
	Send(ctx context.Context, req balanceLoadRequest) error

	// Recv blocks until the next response arrives, the stream ends
	// (io.EOF), or ctx is done. It must not be called concurrently with
	// itself.
	Recv(ctx context.Context) (balanceLoadResponse, error)

	// CloseSend cancels the call from the client side. The provider
	// guarantees a subsequent Recv will return promptly with an error.
	CloseSend() error
}

// LBChannel opens streaming calls to the LB service. Neither this interface
// nor TransportLBChannel carries channel args, so there are none to strip:
// TransportLBChannel dials through the transport.Dialer it was built with
// and runs no balancing policy of its own.
type LBChannel interface {
	NewStream(ctx context.Context) (LBStream, error)
	Close() error
}

// TransportLBChannel is the concrete LBChannel built on
// rpc/transport.Dialer. It dials a fresh Transport per streaming call and
// frames messages as a 4-byte big-endian length prefix followed by a gob
// payload.
type TransportLBChannel struct {
	dialer       transport.Dialer
	compressType compress.Type
	creds        perRPCCredentials
}

// ChannelOption configures a TransportLBChannel.
type ChannelOption func(*TransportLBChannel)

// WithCompression sets the wire compression algorithm applied to every
// frame this channel sends and received frames are assumed to carry. t must
// be registered in rpc/compress (the three built-ins are registered by that
// package's init, so CmpGzip/CmpSnappy/CmpZstd always work; a custom type
// needs compress.Register first). Defaults to compress.CmpNone.
func WithCompression(t compress.Type) ChannelOption {
	return func(c *TransportLBChannel) { c.compressType = t }
}

// WithCredentials attaches creds to every outbound balanceLoadRequest's
// AuthHeader, the same way a grpc.lb.v1.LoadBalancer/BalanceLoad call would
// carry PerRPCCredentials metadata. Required when the LB endpoint enforces
// auth; a nil creds (the default) sends no auth header.
func WithCredentials(creds perRPCCredentials) ChannelOption {
	return func(c *TransportLBChannel) { c.creds = creds }
}

// NewTransportLBChannel builds an LBChannel that dials through dialer.
// Callers typically construct dialer via
// transport.NewResolvingDialer(balancerAddrsTarget, dialFunc) over the
// comma-joined list of balancer addresses named in spec §6, with a plain
// transport.DialFunc (tcp.Dial, unix.Dial, ...) doing the actual
// connection -- never another grpclb policy.
func NewTransportLBChannel(dialer transport.Dialer, opts ...ChannelOption) *TransportLBChannel {
	c := &TransportLBChannel{dialer: dialer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TransportLBChannel) NewStream(ctx context.Context) (LBStream, error) {
	t, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, E(ctx, CatInternal, TypeConn, fmt.Errorf("dial lb channel: %w", err))
	}
	return &transportLBStream{t: t, compressType: c.compressType, creds: c.creds}, nil
}

func (c *TransportLBChannel) Close() error {
	return nil
}

// transportLBStream implements LBStream over a raw transport.Transport
// using length-prefixed, optionally compressed gob framing.
type transportLBStream struct {
	t            transport.Transport
	compressType compress.Type
	creds        perRPCCredentials
}

func (s *transportLBStream) Send(ctx context.Context, req balanceLoadRequest) error {
	if s.creds != nil {
		md, err := s.creds.GetRequestMetadata(ctx, req.ServiceName)
		if err != nil {
			return fmt.Errorf("get request metadata: %w", err)
		}
		req.AuthHeader = md
	}
	return writeFrame(s.t, req, s.compressType)
}

func (s *transportLBStream) Recv(ctx context.Context) (balanceLoadResponse, error) {
	var resp balanceLoadResponse
	err := readFrame(s.t, &resp, s.compressType)
	return resp, err
}

func (s *transportLBStream) CloseSend() error {
	return s.t.Close()
}

// RemoteAddr exposes the dialed transport's peer address so session.run can
// stamp it onto the call context via rpc/context.WithRemoteAddr.
func (s *transportLBStream) RemoteAddr() net.Addr {
	return s.t.RemoteAddr()
}

func writeFrame(w io.Writer, v any, ct compress.Type) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	body, err := compress.Compress(ct, buf.Bytes())
	if err != nil {
		return fmt.Errorf("compress frame: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v any, ct compress.Type) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}

	plain, err := compress.Decompress(ct, body)
	if err != nil {
		return fmt.Errorf("decompress frame: %w", err)
	}

	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
