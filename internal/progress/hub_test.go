package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageTaskStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.New(core),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
	require.Equal(t, 1, logs.FilterMessage("progress events dropped due to backpressure").Len())
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	for range 3 {
		hub.Emit(sampleEvent(StageTaskStart))
	}

	require.NoError(t, hub.Close(context.Background()))
	total := 0
	for _, b := range sink.Batches() {
		total += len(b)
	}
	require.Equal(t, 3, total)
	require.True(t, sink.Closed())

	// Emit after Close is ignored and a second Close only waits.
	hub.Emit(sampleEvent(StageTaskStart))
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(Event{RunID: "r", TS: time.Now(), Stage: StageTaskDone, URL: "https://x/pdp/1"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
	require.Zero(t, hub.Dropped())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"run start", Event{RunID: "r", TS: now, Stage: StageRunStart}, false},
		{"missing run id", Event{TS: now, Stage: StageRunStart}, true},
		{"missing ts", Event{RunID: "r", Stage: StageRunDone}, true},
		{"task without url", Event{RunID: "r", TS: now, Stage: StageTaskFailed}, true},
		{"task done without status", Event{RunID: "r", TS: now, Stage: StageTaskDone, URL: "u"}, true},
		{"task done", Event{RunID: "r", TS: now, Stage: StageTaskDone, URL: "u", StatusClass: Status2xx}, false},
		{"unknown stage", Event{RunID: "r", TS: now, Stage: "BOGUS"}, true},
		{"negative duration", Event{RunID: "r", TS: now, Stage: StageRunDone, Dur: -time.Second}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID:   "0192f0c4-7a35-7000-8000-000000000001",
		TS:      time.Now(),
		Stage:   stage,
		Backend: "lightweight",
	}
	switch stage {
	case StageTaskStart, StageTaskFailed:
		evt.URL = "https://www.rbauction.com/pdp/x/1"
	case StageTaskDone:
		evt.URL = "https://www.rbauction.com/pdp/x/1"
		evt.StatusClass = Status2xx
	}
	return evt
}
