package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

	hub.Emit(sampleEvent(StageSessionStart))
	hub.Emit(sampleEvent(StageSessionStart))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
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

	hub.Emit(sampleEvent(StageSessionStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageSessionStart))
	hub.Emit(sampleEvent(StageSessionStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	assert.EqualValues(t, 2, hub.Dropped())
}

// TestHubFlushOnClose ensures Close drains any buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageSessionStart))
	hub.Emit(articleEvent(StageArticleDone, 1))
	hub.Emit(sampleEvent(StageSessionDone))
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, sink.Batches(), 1)
	assert.Len(t, sink.Batches()[0], 3)
	assert.True(t, sink.Closed())

	// Emits after close are ignored and a second Close is harmless.
	hub.Emit(sampleEvent(StageSessionStart))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageSessionStart})
	hub.Emit(articleEvent(StageArticleDone, 0))
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubSinkErrorsDoNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := newStubSink()
	failing.err = errors.New("sink down")
	healthy := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, failing, healthy)

	hub.Emit(sampleEvent(StageSessionStart))
	hub.Emit(sampleEvent(StageSessionDone))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, healthy.Batches(), 2)
}

func TestHubStopDrainRespectsBatchSize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := &Hub{
		cfg:    Config{MaxBatchEvents: 2, SinkTimeout: time.Second},
		sinks:  []Sink{sink},
		events: make(chan Event, 3),
		logger: zap.NewNop(),
	}
	hub.events <- sampleEvent(StageSessionStart)
	hub.events <- articleEvent(StageArticleDone, 1)
	hub.events <- sampleEvent(StageSessionDone)

	hub.handleStop(nil)

	batches := sink.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.True(t, sink.closed)
}

func TestHubCloseHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	blocking := sinkFunc(func(context.Context, []Event) error {
		<-release
		return nil
	})
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, blocking)
	hub.Emit(sampleEvent(StageSessionStart))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Eventually(t, func() bool { return len(hub.events) == 0 }, time.Second, time.Millisecond)
	err := hub.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{name: "session start", evt: sampleEvent(StageSessionStart)},
		{name: "article", evt: articleEvent(StageTranslationFailed, 3)},
		{name: "missing session", evt: Event{TS: time.Now(), Stage: StageSessionDone}, wantErr: true},
		{name: "missing timestamp", evt: Event{SessionID: "s", Stage: StageSessionDone}, wantErr: true},
		{name: "article without position", evt: articleEvent(StageArticleSkipped, 0), wantErr: true},
		{name: "unknown stage", evt: sampleEvent("NOPE"), wantErr: true},
		{name: "negative duration", evt: Event{SessionID: "s", TS: time.Now(), Stage: StageSessionDone, Dur: -1}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.True(t, StageSessionError.Terminal())
	assert.False(t, StageArticleDone.Terminal())
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:     "run-1",
		SessionID: "session-1",
		Target:    "Windows 11 - Chrome",
		TS:        time.Now().UTC(),
		Stage:     stage,
	}
}

func articleEvent(stage Stage, position int) Event {
	evt := sampleEvent(stage)
	evt.Position = position
	evt.URL = "https://elpais.com/opinion/2024-05-01/a.html"
	return evt
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	err     error
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
