package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/wa-relay/internal/kafka"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newChanSource() *chanSource { return &chanSource{in: make(chan kafka.Message, 16)} }

func (s *chanSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *chanSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *chanSource) offsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type memWriter struct {
	mu      sync.Mutex
	batches [][]model.AuditEvent
	fails   int
}

func (w *memWriter) InsertEvents(_ context.Context, events []model.AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fails > 0 {
		w.fails--
		return errors.New("clickhouse unavailable")
	}
	w.batches = append(w.batches, append([]model.AuditEvent(nil), events...))
	return nil
}

func (w *memWriter) snapshot() [][]model.AuditEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]model.AuditEvent(nil), w.batches...)
}

func eventMsg(t *testing.T, offset int64, id string, status model.AuditStatus) kafka.Message {
	t.Helper()
	v, err := json.Marshal(model.AuditEvent{ID: id, RoutingKey: "PN1", Status: status, At: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: v}
}

func startSink(t *testing.T, sink *AuditSink) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sink.Run(ctx)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestAuditSinkFlushesOnBatchSize(t *testing.T) {
	src, wr := newChanSource(), &memWriter{}
	sink := NewAuditSink(src, wr, nil)
	sink.BatchSize = 2
	sink.BatchWait = time.Hour

	stop := startSink(t, sink)
	src.in <- eventMsg(t, 1, "A", model.AuditPending)
	src.in <- eventMsg(t, 2, "A", model.AuditForwarded)

	require.Eventually(t, func() bool { return len(src.offsets()) == 2 }, time.Second, 5*time.Millisecond)
	stop()

	batches := wr.snapshot()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, model.AuditPending, batches[0][0].Status)
	assert.Equal(t, model.AuditForwarded, batches[0][1].Status)
}

func TestAuditSinkFlushesOnTick(t *testing.T) {
	src, wr := newChanSource(), &memWriter{}
	sink := NewAuditSink(src, wr, nil)
	sink.BatchWait = 10 * time.Millisecond

	stop := startSink(t, sink)
	defer stop()
	src.in <- eventMsg(t, 7, "B", model.AuditFailed)

	require.Eventually(t, func() bool { return len(src.offsets()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, wr.snapshot(), 1)
}

func TestAuditSinkCommitsPoisonMessages(t *testing.T) {
	src, wr := newChanSource(), &memWriter{}
	sink := NewAuditSink(src, wr, nil)
	sink.BatchWait = 10 * time.Millisecond

	stop := startSink(t, sink)
	defer stop()
	src.in <- kafka.Message{Offset: 1, Value: []byte("not json")}
	src.in <- kafka.Message{Offset: 2, Value: []byte(`{"id":"C","status":"weird"}`)}

	require.Eventually(t, func() bool { return len(src.offsets()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, wr.snapshot())
}

func TestAuditSinkRetriesBeforeCommitting(t *testing.T) {
	src, wr := newChanSource(), &memWriter{fails: 2}
	sink := NewAuditSink(src, wr, nil)
	sink.BatchWait = 10 * time.Millisecond
	sink.RetryWait = 5 * time.Millisecond

	stop := startSink(t, sink)
	defer stop()
	src.in <- eventMsg(t, 3, "D", model.AuditPending)

	require.Eventually(t, func() bool { return len(src.offsets()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, wr.snapshot(), 1)
}

func TestAuditSinkFinalFlushOnShutdown(t *testing.T) {
	src, wr := newChanSource(), &memWriter{}
	sink := NewAuditSink(src, wr, nil)
	sink.BatchWait = time.Hour

	stop := startSink(t, sink)
	src.in <- eventMsg(t, 9, "E", model.AuditPending)
	require.Eventually(t, func() bool { return len(src.in) == 0 }, time.Second, time.Millisecond)
	// the fetcher may still hold the message on its way to the batch loop
	time.Sleep(20 * time.Millisecond)
	stop()

	assert.Equal(t, []int64{9}, src.offsets())
	assert.Len(t, wr.snapshot(), 1)
}
