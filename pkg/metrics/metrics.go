// Package metrics wires the allocator stack to Prometheus counters/gauges
// and OpenTelemetry tracing.
//
// A nil *Recorder is valid and makes every method a no-op, so callers that
// don't want observability wiring can leave it unset.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Recorder aggregates the Prometheus and OpenTelemetry instruments a
// single allocator instance reports through.
type Recorder struct {
	regionsCreated prometheus.Counter
	regionsActive  prometheus.Gauge
	bytesMapped    prometheus.Gauge

	otelCounter otelmetric.Int64Counter
	tracer      trace.Tracer

	component string
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	meter      otelmetric.Meter
	tracer     trace.Tracer
}

// WithRegisterer registers this Recorder's collectors against reg instead
// of the default global Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMeter supplies the OTel Meter to derive counters from.
func WithMeter(m otelmetric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer supplies the OTel Tracer to start allocator spans on.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New builds a Recorder scoped to component (e.g. "monobuf", "pool",
// "regionset", "readercache"). Safe to call with no options: Prometheus
// collectors register against the default registry and tracing becomes a
// no-op tracer.
func New(component string, opts ...Option) *Recorder {
	o := options{registerer: prometheus.DefaultRegisterer, tracer: nooptrace.NewTracerProvider().Tracer("ipcator")}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{component: component, tracer: o.tracer}

	r.regionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "ipcator",
		Name:        "regions_created_total",
		Help:        "Total number of shared-memory regions created.",
		ConstLabels: prometheus.Labels{"component": component},
	})
	r.regionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "ipcator",
		Name:        "regions_active",
		Help:        "Number of currently-mapped shared-memory regions.",
		ConstLabels: prometheus.Labels{"component": component},
	})
	r.bytesMapped = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "ipcator",
		Name:        "bytes_mapped",
		Help:        "Total bytes currently mapped across active regions.",
		ConstLabels: prometheus.Labels{"component": component},
	})
	if o.registerer != nil {
		// Duplicate registration (e.g. two allocators of the same
		// component name in one process/test) is expected and harmless
		// here; ignore it rather than panic.
		_ = o.registerer.Register(r.regionsCreated)
		_ = o.registerer.Register(r.regionsActive)
		_ = o.registerer.Register(r.bytesMapped)
	}

	if o.meter != nil {
		if c, err := o.meter.Int64Counter("ipcator_regions_created_total"); err == nil {
			r.otelCounter = c
		}
	}

	return r
}

// RegionCreated records that a new backing region of size bytes was mapped.
func (r *Recorder) RegionCreated(ctx context.Context, size int) {
	if r == nil {
		return
	}
	r.regionsCreated.Inc()
	r.regionsActive.Inc()
	r.bytesMapped.Add(float64(size))
	if r.otelCounter != nil {
		r.otelCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("component", r.component)))
	}
}

// RegionReleased records that a backing region of size bytes was released.
func (r *Recorder) RegionReleased(size int) {
	if r == nil {
		return
	}
	r.regionsActive.Dec()
	r.bytesMapped.Sub(float64(size))
}

// StartSpan starts an OTel span named component+"."+op, or returns a no-op
// span/context if the Recorder has no tracer configured.
func (r *Recorder) StartSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, r.component+"."+op)
}
