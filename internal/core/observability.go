package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// MetricsRecorder receives one observation per engine operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// ConflictRecorder is implemented by recorders that also count optimistic
// concurrency retries.
type ConflictRecorder interface {
	ObserveConflict(operation string)
}

// Tracer opens a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// instrument runs fn inside a span and reports its outcome.
func instrument[T any](ctx context.Context, o *options, operation string, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, operation)
	out, err := fn(ctx)
	span.End(err)
	o.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	return out, err
}

func (o *options) conflict(operation string) {
	if rec, ok := o.metrics.(ConflictRecorder); ok {
		rec.ObserveConflict(operation)
	}
}

// SpanRecord is one finished span written by JSONTracer.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTracer writes finished spans as JSON lines and keeps them for
// inspection.
type JSONTracer struct {
	mu    sync.Mutex
	spans []SpanRecord
	enc   *json.Encoder
}

// NewJSONTracer writes to w; a nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns a copy of the finished spans.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanRecord, len(t.spans))
	copy(out, t.spans)
	return out
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	ended := time.Now().UTC()
	rec := SpanRecord{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, rec)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(rec)
	}
	s.tracer.mu.Unlock()
}
