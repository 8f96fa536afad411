package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/shared/id"
)

// Propagation headers, read on inbound requests and written on responses
// and outbound bridge calls
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

const spanBuffer = 1000

// SpanContext is the part of a span that crosses process boundaries
type SpanContext struct {
	TraceID id.TraceID
	SpanID  id.SpanID
}

// Valid reports whether the context names a trace
func (sc SpanContext) Valid() bool { return sc.TraceID != "" }

type spanKey struct{}

// ContextWith returns ctx carrying sc as the current span
func ContextWith(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, spanKey{}, sc)
}

// FromContext returns the current span of ctx, if any
func FromContext(ctx context.Context) (SpanContext, bool) {
	sc, ok := ctx.Value(spanKey{}).(SpanContext)
	return sc, ok && sc.Valid()
}

// Inject writes the current span of ctx into h. It is a no-op when ctx
// carries no trace.
func Inject(ctx context.Context, h http.Header) {
	sc, ok := FromContext(ctx)
	if !ok {
		return
	}
	h.Set(HeaderTraceID, sc.TraceID.String())
	h.Set(HeaderSpanID, sc.SpanID.String())
}

// Extract reads a span context from h. The result is invalid when h
// carries no trace ID.
func Extract(h http.Header) SpanContext {
	return SpanContext{
		TraceID: id.TraceID(h.Get(HeaderTraceID)),
		SpanID:  id.SpanID(h.Get(HeaderSpanID)),
	}
}

// Span times one operation. A span belongs to the goroutine that started
// it and is handed to the collector by End.
type Span struct {
	SpanContext
	ParentID id.SpanID
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error

	attrs  []zap.Field
	tracer *Tracer
	ended  bool
}

// Set attaches attributes reported with the span
func (s *Span) Set(fields ...zap.Field) {
	s.attrs = append(s.attrs, fields...)
}

// Fail marks the span as failed with err. status is kept when non-zero.
func (s *Span) Fail(err error, status int) {
	s.Err = err
	if status != 0 {
		s.Status = status
	}
}

// End stops the clock and submits the span. Later calls do nothing.
func (s *Span) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
	s.tracer.submit(s)
}

// Tracer hands finished spans to a background collector that logs them.
// Submitting never blocks: spans are dropped with a warning when the
// buffer is full.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New creates a tracer and starts its collector
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger.Named("tracing"),
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

// Start opens a span. It joins the trace carried by ctx, or starts a new
// trace, and returns ctx with the new span as current.
func (t *Tracer) Start(ctx context.Context, name string) (*Span, context.Context) {
	parent, _ := FromContext(ctx)
	traceID := parent.TraceID
	if traceID == "" {
		traceID = id.NewTraceID()
	}
	span := &Span{
		SpanContext: SpanContext{TraceID: traceID, SpanID: id.NewSpanID()},
		ParentID:    parent.SpanID,
		Name:        name,
		Start:       time.Now(),
		tracer:      t,
	}
	return span, ContextWith(ctx, span.SpanContext)
}

// Close stops accepting spans and waits for buffered ones to be logged
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

func (t *Tracer) submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("operation", span.Name))
	}
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.log(span)
	}
}

func (t *Tracer) log(span *Span) {
	fields := append([]zap.Field{
		zap.String("service", t.service),
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	}, span.attrs...)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.Status != 0 {
		fields = append(fields, zap.Int("status", span.Status))
	}

	if span.Err != nil {
		t.logger.Error("span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}
