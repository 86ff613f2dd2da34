package audit

import (
	"context"
	"errors"
	"time"
)

const (
	defaultFlushInterval  = time.Second
	defaultBatchSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Worker drains the recorder's buffer on a fixed interval and fans each
// batch out to every sink. A failing sink is logged and counted but never
// blocks the others, and never stops the worker.
type Worker struct {
	recorder       *Recorder
	sinks          []Sink
	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithFlushInterval overrides how often the buffer is drained.
func WithFlushInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize overrides how many events are dequeued per sink call.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithPublishTimeout bounds each sink delivery.
func WithPublishTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.publishTimeout = d
		}
	}
}

// NewWorker creates a Worker draining the given recorder into sinks.
func NewWorker(recorder *Recorder, sinks []Sink, opts ...WorkerOption) (*Worker, error) {
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if len(sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}
	w := &Worker{
		recorder:       recorder,
		sinks:          sinks,
		interval:       defaultFlushInterval,
		batchSize:      defaultBatchSize,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run drains the buffer until ctx is canceled, then performs one final drain
// so a clean shutdown does not lose buffered events.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), w.publishTimeout)
			w.drain(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch := w.recorder.Drain(w.batchSize)
		if len(batch) == 0 {
			return
		}
		w.publish(ctx, batch)
	}
}

func (w *Worker) publish(ctx context.Context, batch []Event) {
	for _, sink := range w.sinks {
		pubCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
		err := sink.Publish(pubCtx, batch)
		cancel()

		if err != nil {
			if w.recorder.logger != nil {
				w.recorder.logger.WarnContext(ctx, "audit sink publish failed",
					"sink", sink.Name(),
					"events", len(batch),
					"error", err,
				)
			}
			if w.recorder.metrics != nil {
				w.recorder.metrics.IncSinkFailures(sink.Name())
			}
			continue
		}
		if w.recorder.metrics != nil {
			w.recorder.metrics.AddPublished(sink.Name(), len(batch))
		}
	}
	if w.recorder.metrics != nil {
		w.recorder.metrics.SetBufferDepth(w.recorder.Pending())
	}
}
