package core

import (
	"assetflow/internal/blob"
	"time"

	"go.uber.org/zap"
)

// CancelPolicy decides what happens to reservations when an approved
// request is cancelled.
type CancelPolicy string

const (
	// CancelKeep leaves reserved assets reserved.
	CancelKeep CancelPolicy = "keep"
	// CancelReleaseReservations returns RESERVED assets to AVAILABLE.
	CancelReleaseReservations CancelPolicy = "release_reservations"
)

const defaultMaxConflictRetries = 5

type options struct {
	clock             Clock
	logger            *zap.Logger
	metrics           MetricsRecorder
	tracer            Tracer
	receipts          blob.Store
	cancelPolicy      CancelPolicy
	reserveOnApproval bool
	maxRetries        int
	overdueGrace      time.Duration
}

func defaultOptions() options {
	return options{
		clock:        SystemClock(),
		logger:       zap.NewNop(),
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		cancelPolicy: CancelKeep,
		maxRetries:   defaultMaxConflictRetries,
	}
}

// Option configures an engine.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder reports per-operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer wraps every operation in a span.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithReceiptStore enables hand-off receipts on issuance.
func WithReceiptStore(s blob.Store) Option {
	return func(o *options) { o.receipts = s }
}

// WithCancelPolicy selects the cancellation side effects.
func WithCancelPolicy(p CancelPolicy) Option {
	return func(o *options) {
		if p != "" {
			o.cancelPolicy = p
		}
	}
}

// WithReserveOnApproval moves AVAILABLE assets to RESERVED when a
// non-consumable request is approved.
func WithReserveOnApproval(enabled bool) Option {
	return func(o *options) { o.reserveOnApproval = enabled }
}

// WithMaxConflictRetries bounds re-read attempts after a version conflict.
func WithMaxConflictRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithOverdueGrace delays overdue reporting past the due date.
func WithOverdueGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.overdueGrace = d
		}
	}
}
