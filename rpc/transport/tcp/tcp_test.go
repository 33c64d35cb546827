package tcp

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/transport"
)

// echoHandler reads length-prefixed-free raw bytes and echoes them back,
// prefixed with the given tag, until the connection is closed.
func echoHandler(tag string) transport.ConnHandler {
	return func(ctx context.Context, t transport.Transport) error {
		buf := make([]byte, 4096)
		for {
			n, err := t.Read(buf)
			if n > 0 {
				out := append([]byte(tag), buf[:n]...)
				if _, werr := t.Write(out); werr != nil {
					return werr
				}
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}
}

func TestTCPTransportRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		requests [][]byte
	}{
		{
			name:     "Success: single request",
			requests: [][]byte{[]byte("hello")},
		},
		{
			name:     "Success: multiple requests",
			requests: [][]byte{[]byte("first"), []byte("second"), []byte("third")},
		},
		{
			name:     "Success: large payload",
			requests: [][]byte{make([]byte, 100000)}, // 100KB
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := t.Context()

			listener, err := Listen(ctx, "127.0.0.1:0")
			if err != nil {
				t.Fatalf("[TestTCPTransportRoundTrip(%s)]: failed to listen: %v", test.name, err)
			}
			defer listener.Close()

			go func() {
				for {
					trans, err := listener.Accept(ctx)
					if err != nil {
						return
					}
					go echoHandler("echo:")(ctx, trans)
				}
			}()

			clientTrans, err := Dial(ctx, listener.Addr().String())
			if err != nil {
				t.Fatalf("[TestTCPTransportRoundTrip(%s)]: failed to dial: %v", test.name, err)
			}
			defer clientTrans.Close()

			for i, req := range test.requests {
				if _, err := clientTrans.Write(req); err != nil {
					t.Fatalf("[TestTCPTransportRoundTrip(%s)]: request %d: write failed: %v", test.name, i, err)
				}

				want := append([]byte("echo:"), req...)
				got := make([]byte, len(want))
				if _, err := io.ReadFull(clientTrans, got); err != nil {
					t.Fatalf("[TestTCPTransportRoundTrip(%s)]: request %d: read failed: %v", test.name, i, err)
				}
				if !bytes.Equal(want, got) {
					t.Errorf("[TestTCPTransportRoundTrip(%s)]: request %d: got %q, want %q", test.name, i, got, want)
				}
			}
		})
	}
}

func TestTCPTransportWithTLS(t *testing.T) {
	ctx := t.Context()

	tlsConfig, err := generateTestTLSConfig()
	if err != nil {
		t.Fatalf("[TestTCPTransportWithTLS]: failed to generate TLS config: %v", err)
	}

	listener, err := Listen(ctx, "127.0.0.1:0", WithTLSConfig(tlsConfig))
	if err != nil {
		t.Fatalf("[TestTCPTransportWithTLS]: failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			trans, err := listener.Accept(ctx)
			if err != nil {
				return
			}
			go echoHandler("secure:")(ctx, trans)
		}
	}()

	clientTLSConfig := &tls.Config{
		InsecureSkipVerify: true, // For testing with self-signed cert.
	}

	clientTrans, err := Dial(ctx, listener.Addr().String(), WithTLSConfig(clientTLSConfig))
	if err != nil {
		t.Fatalf("[TestTCPTransportWithTLS]: failed to dial: %v", err)
	}
	defer clientTrans.Close()

	if _, err := clientTrans.Write([]byte("hello")); err != nil {
		t.Fatalf("[TestTCPTransportWithTLS]: write failed: %v", err)
	}

	want := []byte("secure:hello")
	got := make([]byte, len(want))
	if _, err := io.ReadFull(clientTrans, got); err != nil {
		t.Fatalf("[TestTCPTransportWithTLS]: read failed: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Errorf("[TestTCPTransportWithTLS]: got %q, want %q", got, want)
	}
}

func TestTCPTransportConnectionClose(t *testing.T) {
	ctx := t.Context()

	listener, err := Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("[TestTCPTransportConnectionClose]: failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			trans, err := listener.Accept(ctx)
			if err != nil {
				return
			}
			go echoHandler("")(ctx, trans)
		}
	}()

	clientTrans, err := Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("[TestTCPTransportConnectionClose]: failed to dial: %v", err)
	}

	clientTrans.Close()

	if _, err := clientTrans.Write([]byte("test")); err == nil {
		t.Errorf("[TestTCPTransportConnectionClose]: expected error after close, got nil")
	}
}

func TestTCPTransportDialErrors(t *testing.T) {
	ctx := t.Context()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{
			name:    "Error: invalid address",
			addr:    "invalid:address:format",
			wantErr: true,
		},
		{
			name:    "Error: connection refused",
			addr:    "127.0.0.1:1", // Port 1 is unlikely to be listening.
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Dial(ctx, test.addr)
			switch {
			case err == nil && test.wantErr:
				t.Errorf("[TestTCPTransportDialErrors(%s)]: got err == nil, want err != nil", test.name)
			case err != nil && !test.wantErr:
				t.Errorf("[TestTCPTransportDialErrors(%s)]: got err == %v, want err == nil", test.name, err)
			}
		})
	}
}

func TestTCPTransportBufferedIO(t *testing.T) {
	ctx := t.Context()

	// This test verifies that buffered I/O works correctly by sending many
	// small messages that would be inefficient without buffering.
	listener, err := Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("[TestTCPTransportBufferedIO]: failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			trans, err := listener.Accept(ctx)
			if err != nil {
				return
			}
			go echoHandler("")(ctx, trans)
		}
	}()

	clientTrans, err := Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("[TestTCPTransportBufferedIO]: failed to dial: %v", err)
	}
	defer clientTrans.Close()

	for i := 0; i < 100; i++ {
		req := []byte("small")
		if _, err := clientTrans.Write(req); err != nil {
			t.Fatalf("[TestTCPTransportBufferedIO]: write %d failed: %v", i, err)
		}
		got := make([]byte, len(req))
		if _, err := io.ReadFull(clientTrans, got); err != nil {
			t.Fatalf("[TestTCPTransportBufferedIO]: read %d failed: %v", i, err)
		}
		if !bytes.Equal(req, got) {
			t.Errorf("[TestTCPTransportBufferedIO]: call %d: got %q, want %q", i, got, req)
		}
	}
}

func TestTCPServerListenAndServe(t *testing.T) {
	ctx := t.Context()

	tcpSrv := NewServer(echoHandler("server:"), "127.0.0.1:0")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- tcpSrv.ListenAndServe(ctx)
	}()

	var addr net.Addr
	for i := 0; i < 100; i++ {
		addr = tcpSrv.Addr()
		if addr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatalf("[TestTCPServerListenAndServe]: server did not start listening")
	}

	clientTrans, err := Dial(ctx, addr.String())
	if err != nil {
		t.Fatalf("[TestTCPServerListenAndServe]: failed to dial: %v", err)
	}
	defer clientTrans.Close()

	if _, err := clientTrans.Write([]byte("hello")); err != nil {
		t.Fatalf("[TestTCPServerListenAndServe]: write failed: %v", err)
	}

	want := []byte("server:hello")
	got := make([]byte, len(want))
	if _, err := io.ReadFull(clientTrans, got); err != nil {
		t.Fatalf("[TestTCPServerListenAndServe]: read failed: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Errorf("[TestTCPServerListenAndServe]: got %q, want %q", got, want)
	}

	if err := tcpSrv.Close(); err != nil {
		t.Errorf("[TestTCPServerListenAndServe]: close failed: %v", err)
	}

	select {
	case err := <-serverErr:
		if err != nil {
			t.Logf("[TestTCPServerListenAndServe]: server returned: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Errorf("[TestTCPServerListenAndServe]: server did not stop")
	}
}

func TestTCPServerShutdown(t *testing.T) {
	ctx := t.Context()

	tcpSrv := NewServer(echoHandler(""), "127.0.0.1:0")

	serverDone := make(chan struct{})
	go func() {
		tcpSrv.ListenAndServe(ctx)
		close(serverDone)
	}()

	for i := 0; i < 100; i++ {
		if tcpSrv.Addr() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tcpSrv.Shutdown(shutdownCtx); err != nil {
		t.Errorf("[TestTCPServerShutdown]: shutdown failed: %v", err)
	}

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Errorf("[TestTCPServerShutdown]: server did not stop after shutdown")
	}
}

// generateTestTLSConfig creates a self-signed certificate for testing.
func generateTestTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}, nil
}
