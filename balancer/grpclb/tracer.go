package grpclb

import (
	"time"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/telemetry/otel/trace/span"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	rpccontext "github.com/bearlytools/grpclb/rpc/context"
)

// tracer holds the OTEL instrumentation for a Policy. Span creation is
// gated by the glb atomic flag (see glb.enabled) so tracing can be flipped
// on and off at runtime without rebuilding the Policy.
type tracer struct {
	glb *glb

	callDuration   metric.Float64Histogram
	callCount      metric.Int64Counter
	rrHandoverRate metric.Int64Counter
	pendingDepth   metric.Int64Histogram
	decodeRejects  metric.Int64Counter
}

// glb (short for "grpclb") is an atomic-bool gate controlling whether each
// streaming LB call attempt gets a span. RR handovers are recorded only as
// a metric, whatever the gate says. It's a plain struct
// wrapping a bool behind the repo's sync wrapper rather than sync/atomic
// directly, matching how the rest of this module guards shared state.
//
// Per spec §6/AMBIENT STACK, this knob is process-wide: every Policy in
// the process shares the single package-level instance below rather than
// each carrying its own, so flipping it once affects every Policy's
// tracing without restarting any of them.
type glb struct {
	mu      sync.RWMutex
	enabled bool
}

func (g *glb) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

func (g *glb) SetEnabled(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = v
}

// processGLB is the single process-wide tracing gate every Policy's
// tracer consults.
var processGLB = &glb{}

// SetTracing turns the process-wide `glb` tracing knob on or off. It has
// no semantic effect on any Policy's behavior (spec §6) -- only on
// whether streaming LB call attempts get a span.
func SetTracing(enabled bool) {
	processGLB.SetEnabled(enabled)
}

func newTracer(ctx context.Context, enableMetrics bool) (*tracer, error) {
	tr := &tracer{glb: processGLB}

	if !enableMetrics {
		return tr, nil
	}

	meter := context.Meter(ctx)

	var err error
	tr.callDuration, err = meter.Float64Histogram(
		"grpclb.lb_call.duration",
		metric.WithDescription("Duration of a single streaming LB call attempt in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tr.callCount, err = meter.Int64Counter(
		"grpclb.lb_call.count",
		metric.WithDescription("Total number of streaming LB call attempts, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	tr.rrHandoverRate, err = meter.Int64Counter(
		"grpclb.rr_handover.count",
		metric.WithDescription("Total number of RR handover decisions, by decision (adopted or keep_old)"),
	)
	if err != nil {
		return nil, err
	}

	tr.pendingDepth, err = meter.Int64Histogram(
		"grpclb.pending.depth",
		metric.WithDescription("Depth of the pending pick/ping queues at the time of a server list update"),
	)
	if err != nil {
		return nil, err
	}

	tr.decodeRejects, err = meter.Int64Counter(
		"grpclb.server_list.rejected",
		metric.WithDescription("Entries dropped from a decoded LoadBalanceResponse's server list, by reason"),
	)
	if err != nil {
		return nil, err
	}

	return tr, nil
}

// startLBCall starts a span for one streaming LB call attempt, if tracing
// is enabled. The returned end func must always be called, and is a no-op
// when tracing is disabled.
func (tr *tracer) startLBCall(ctx context.Context) (context.Context, func(err error)) {
	start := time.Now()

	var sp span.Span
	traced := tr.glb.Enabled()
	if traced {
		ctx, sp = span.New(ctx,
			span.WithName("grpclb.lb_call"),
			span.WithSpanStartOption(trace.WithSpanKind(trace.SpanKindClient)),
		)
		sp.Span.SetAttributes(attribute.String("grpclb.component", "lb_session"))
		if addr := rpccontext.RemoteAddr(ctx); addr != nil {
			sp.Span.SetAttributes(attribute.String("net.peer.addr", addr.String()))
		}
	}

	return ctx, func(err error) {
		if traced {
			defer sp.End()
		}
		if tr.callCount == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(attribute.String("status", status))
		tr.callCount.Add(ctx, 1, attrs)
		if tr.callDuration != nil {
			tr.callDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		}
	}
}

// recordHandover records a single RR adopt/keep-old decision.
func (tr *tracer) recordHandover(ctx context.Context, adopted bool) {
	if tr.rrHandoverRate == nil {
		return
	}
	decision := "keep_old"
	if adopted {
		decision = "adopted"
	}
	tr.rrHandoverRate.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// recordDecodeDiagnostics records the entries decodeServerList rejected
// from one LoadBalanceResponse (spec §4.2): invalid ones (bad port/IP
// length) and drop-request ones, each under its own "reason" attribute so
// the two causes aren't conflated in the resulting metric. A no-op call
// (invalid==0 && dropped==0) still records zero-valued points so the
// series doesn't go quiet between genuinely clean responses.
func (tr *tracer) recordDecodeDiagnostics(ctx context.Context, invalid, dropped int) {
	if tr.decodeRejects == nil {
		return
	}
	tr.decodeRejects.Add(ctx, int64(invalid), metric.WithAttributes(attribute.String("reason", "invalid")))
	tr.decodeRejects.Add(ctx, int64(dropped), metric.WithAttributes(attribute.String("reason", "drop_request")))
}

// recordPendingDepth records the combined depth of the pending pick and
// ping queues, sampled whenever a new ServerList is processed.
func (tr *tracer) recordPendingDepth(ctx context.Context, picks, pings int) {
	if tr.pendingDepth == nil {
		return
	}
	tr.pendingDepth.Record(ctx, int64(picks), metric.WithAttributes(attribute.String("queue", "pick")))
	tr.pendingDepth.Record(ctx, int64(pings), metric.WithAttributes(attribute.String("queue", "ping")))
}
