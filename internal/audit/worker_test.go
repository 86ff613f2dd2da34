package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"perimeter/internal/audit"
	"perimeter/internal/audit/mocks"
)

func newTestRecorder(t *testing.T) *audit.Recorder {
	t.Helper()
	rec, err := audit.NewRecorder("gw-test-1", audit.WithCapacity(32))
	require.NoError(t, err)
	return rec
}

func TestNewWorker(t *testing.T) {
	rec := newTestRecorder(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	t.Run("nil recorder returns error", func(t *testing.T) {
		_, err := audit.NewWorker(nil, []audit.Sink{sink})
		assert.Error(t, err)
	})

	t.Run("no sinks returns error", func(t *testing.T) {
		_, err := audit.NewWorker(rec, nil)
		assert.Error(t, err)
	})

	t.Run("valid dependencies return worker", func(t *testing.T) {
		w, err := audit.NewWorker(rec, []audit.Sink{sink})
		assert.NoError(t, err)
		assert.NotNil(t, w)
	})
}

func TestWorker_DrainsBufferToAllSinks(t *testing.T) {
	rec := newTestRecorder(t)
	ctrl := gomock.NewController(t)

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)

	got := make(chan int, 2)
	capture := func(_ context.Context, events []audit.Event) error {
		got <- len(events)
		return nil
	}
	first.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(capture).Times(1)
	second.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(capture).Times(1)

	for i := 0; i < 3; i++ {
		rec.Record(context.Background(), audit.Event{Type: audit.EventRequestForwarded})
	}

	w, err := audit.NewWorker(rec, []audit.Sink{first, second}, audit.WithFlushInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); _ = w.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case n := <-got:
			assert.Equal(t, 3, n, "each sink receives the full batch")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for sink delivery")
		}
	}

	cancel()
	wg.Wait()
	assert.Equal(t, 0, rec.Pending())
}

func TestWorker_FailingSinkDoesNotBlockOthers(t *testing.T) {
	rec := newTestRecorder(t)
	ctrl := gomock.NewController(t)

	broken := mocks.NewMockSink(ctrl)
	broken.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(1)
	broken.EXPECT().Name().Return("kafka").AnyTimes()

	healthy := mocks.NewMockSink(ctrl)
	delivered := make(chan []audit.Event, 1)
	healthy.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, events []audit.Event) error {
			delivered <- events
			return nil
		},
	).Times(1)

	rec.Record(context.Background(), audit.Event{Type: audit.EventAuthFailed, Subject: "user-1"})

	// Sink order matters: the broken sink is consulted first.
	w, err := audit.NewWorker(rec, []audit.Sink{broken, healthy}, audit.WithFlushInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); _ = w.Run(ctx) }()

	select {
	case events := <-delivered:
		require.Len(t, events, 1)
		assert.Equal(t, "user-1", events[0].Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("healthy sink never received the batch")
	}

	cancel()
	wg.Wait()
}

func TestWorker_FlushesOnShutdown(t *testing.T) {
	rec := newTestRecorder(t)
	ctrl := gomock.NewController(t)

	sink := mocks.NewMockSink(ctrl)
	delivered := make(chan int, 1)
	sink.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, events []audit.Event) error {
			delivered <- len(events)
			return nil
		},
	).Times(1)

	for i := 0; i < 5; i++ {
		rec.Record(context.Background(), audit.Event{Type: audit.EventAuthzAllowed})
	}

	// Interval far beyond the test duration: only the shutdown drain can deliver.
	w, err := audit.NewWorker(rec, []audit.Sink{sink}, audit.WithFlushInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case n := <-delivered:
		assert.Equal(t, 5, n)
	default:
		t.Fatal("shutdown drain did not deliver buffered events")
	}
	assert.Equal(t, 0, rec.Pending())
}
