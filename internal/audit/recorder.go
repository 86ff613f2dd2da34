package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"perimeter/internal/audit/metrics"
	"perimeter/pkg/requestcontext"
)

// Recorder accepts audit events from the request path. Record never blocks
// and never fails: events go into a bounded ring buffer and the background
// worker delivers them. Under sustained sink outage the oldest events are
// dropped first.
type Recorder struct {
	buffer     *RingBuffer
	instanceID string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the structured logger used for drop warnings.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithCapacity overrides the ring buffer capacity.
func WithCapacity(capacity int) RecorderOption {
	return func(r *Recorder) {
		r.buffer = NewRingBuffer(capacity)
	}
}

// NewRecorder creates a Recorder. instanceID identifies this gateway process
// in every event it records.
func NewRecorder(instanceID string, opts ...RecorderOption) (*Recorder, error) {
	if instanceID == "" {
		return nil, errors.New("instance ID is required")
	}
	r := &Recorder{
		buffer:     NewRingBuffer(defaultBufferCapacity),
		instanceID: instanceID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record enriches the event from the request context and enqueues it.
// Fields the emitter already filled are left untouched.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.Severity == "" {
		e.Severity = e.Type.Severity()
	}

	req := requestcontext.RequestFrom(ctx)
	if e.CorrelationID == "" {
		e.CorrelationID = req.CorrelationID
	}
	if e.Method == "" {
		e.Method = req.Method
	}
	if e.Path == "" {
		e.Path = req.Path
	}
	if e.ClientAddr == "" {
		e.ClientAddr = req.ClientAddr
	}
	if e.ClientDevice == "" {
		e.ClientDevice = DescribeDevice(req.UserAgent)
	}
	e.InstanceID = r.instanceID

	dropped := r.buffer.Enqueue(e)
	if r.metrics != nil {
		r.metrics.IncEnqueued()
		if dropped {
			r.metrics.IncDropped()
		}
		r.metrics.SetBufferDepth(r.buffer.Len())
	}
	if dropped && r.logger != nil {
		r.logger.WarnContext(ctx, "audit buffer full, dropped oldest event",
			"capacity", r.buffer.Capacity(),
			"dropped_total", r.buffer.Dropped(),
		)
	}
}

// Drain removes up to max buffered events, oldest first. The worker is the
// only production caller; tests use it to inspect recorded events.
func (r *Recorder) Drain(max int) []Event {
	return r.buffer.DequeueBatch(max)
}

// Pending returns the number of events waiting for delivery.
func (r *Recorder) Pending() int {
	return r.buffer.Len()
}

// Dropped returns the total number of events lost to buffer overflow.
func (r *Recorder) Dropped() int64 {
	return r.buffer.Dropped()
}
