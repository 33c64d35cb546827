// Command grpclbdemo wires balancer/grpclb and balancer/roundrobin together
// over a resolved TCP dialer, demonstrating the "grpclb" factory surface
// (spec §6). It is not a production server: it exists so the plugin
// surface has one real, runnable caller in the tree.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/balancer/grpclb"
	"github.com/bearlytools/grpclb/rpc/compress"
	"github.com/bearlytools/grpclb/rpc/credentials"
	"github.com/bearlytools/grpclb/rpc/metadata"
	"github.com/bearlytools/grpclb/rpc/transport"
	rpchttp "github.com/bearlytools/grpclb/rpc/transport/http"
	"github.com/bearlytools/grpclb/rpc/transport/tcp"
	"github.com/bearlytools/grpclb/rpc/transport/unix"

	// Registers the "dns" and "passthrough" resolver schemes (spec §6:
	// the balancer target is never itself grpclb-resolved) so
	// GRPCLB_LB_TARGET can name either.
	_ "github.com/bearlytools/grpclb/rpc/transport/resolver/dns"
	_ "github.com/bearlytools/grpclb/rpc/transport/resolver/passthrough"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "grpclbdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	lbTarget := envOr("GRPCLB_LB_TARGET", "passthrough:///127.0.0.1:50051")
	serviceName := envOr("GRPCLB_SERVICE_NAME", "demo.Service")

	ctx := context.Background()

	dialFunc := transport.DialFunc(func(ctx context.Context, addr string) (transport.Transport, error) {
		return tcp.Dial(ctx, addr)
	})

	lbDialer, err := transport.NewResolvingDialer(lbTarget, dialFunc)
	if err != nil {
		return fmt.Errorf("build lb dialer: %w", err)
	}
	defer lbDialer.Close()

	channelOpts := []grpclb.ChannelOption{grpclb.WithCompression(compress.CmpZstd)}
	if token := os.Getenv("GRPCLB_AUTH_TOKEN"); token != "" {
		channelOpts = append(channelOpts, grpclb.WithCredentials(credentials.NewTokenCredentials("Bearer", token, false)))
	}
	channel := grpclb.NewTransportLBChannel(lbDialer, channelOpts...)
	defer channel.Close()

	// Backends named in the server list are dialed directly, never
	// through the LB target's resolver. dialFunc is the one place grpclb
	// is transport-agnostic (spec §6): swap it for any transport.DialFunc.
	backendDialFunc := transport.DialFunc(func(ctx context.Context, addr string) (transport.Transport, error) {
		return tcp.Dial(ctx, addr)
	})
	switch envOr("GRPCLB_BACKEND_TRANSPORT", "tcp") {
	case "http2":
		scheme := "http"
		if os.Getenv("GRPCLB_BACKEND_TLS") != "" {
			scheme = "https"
		}
		backendDialFunc = transport.DialFunc(func(ctx context.Context, addr string) (transport.Transport, error) {
			return rpchttp.Dial(ctx, scheme+"://"+addr+"/grpclb.demo")
		})
	case "unix":
		// Backends returned in the ServerList are still "addr" strings,
		// here interpreted as socket paths rather than host:port pairs.
		backendDialFunc = transport.DialFunc(func(ctx context.Context, addr string) (transport.Transport, error) {
			return unix.Dial(ctx, addr)
		})
	}

	onStateChange := func(s grpclb.State) {
		fmt.Printf("grpclb: connectivity -> %s\n", s)
	}

	builder, ok := grpclb.Get(grpclb.Name)
	if !ok {
		return fmt.Errorf("no builder registered for %q", grpclb.Name)
	}

	lbAddrs := []grpclb.BalancerAddress{{Addr: lbTarget, IsBalancer: true}}
	policy, err := builder.Build(ctx, channel, serviceName, lbAddrs, backendDialFunc, onStateChange)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}
	defer policy.Shutdown()

	done := make(chan struct{})
	md := metadata.MD{}
	policy.Pick(ctx, grpclb.PickArgs{Deadline: time.Now().Add(10 * time.Second), TokenStorage: md}, func(res grpclb.PickResult, err error) {
		defer close(done)
		if err != nil {
			fmt.Println("pick failed:", err)
			return
		}
		fmt.Printf("picked backend %s (token=%q, lb-token md=%q)\n", res.Addr, res.Token, md.GetString("lb-token"))
	})

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		fmt.Println("pick did not complete within demo timeout")
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
