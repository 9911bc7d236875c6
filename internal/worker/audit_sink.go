package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/wa-relay/internal/kafka"
	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
	"go.uber.org/zap"
)

// Source is where audit events arrive (the relay.audit topic).
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// EventWriter stores a batch of audit events (ClickHouse).
type EventWriter interface {
	InsertEvents(ctx context.Context, events []model.AuditEvent) error
}

// AuditSink:
// - fetches audit events relayed from the MySQL outbox,
// - batches them by size and time,
// - appends each batch to ClickHouse and only then commits the offsets.
type AuditSink struct {
	// Dependencies
	Source Source
	Writer EventWriter
	Log    *zap.Logger

	// Behavior
	BatchSize  int           // max events per insert
	BatchWait  time.Duration // max time an event waits for its batch
	RetryWait  time.Duration // pause between failed inserts
	FlushGrace time.Duration // budget for the final flush on shutdown
}

// NewAuditSink builds a sink with sane defaults.
func NewAuditSink(src Source, writer EventWriter, log *zap.Logger) *AuditSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditSink{
		Source:     src,
		Writer:     writer,
		Log:        log,
		BatchSize:  500,
		BatchWait:  500 * time.Millisecond,
		RetryWait:  time.Second,
		FlushGrace: 10 * time.Second,
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (w *AuditSink) Run(ctx context.Context) error {
	if w.BatchSize <= 0 {
		w.BatchSize = 500
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 500 * time.Millisecond
	}
	if w.RetryWait <= 0 {
		w.RetryWait = time.Second
	}

	msgCh := make(chan kafka.Message, w.BatchSize)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	w.runBatchWriter(ctx, msgCh)
	return nil
}

type batch struct {
	events []model.AuditEvent
	msgs   []kafka.Message
}

func (b *batch) reset() {
	b.events = b.events[:0]
	b.msgs = b.msgs[:0]
}

// add decodes one outbox payload. Undecodable messages are kept only so
// their offset is committed with the batch.
func (w *AuditSink) add(b *batch, m kafka.Message) {
	b.msgs = append(b.msgs, m)

	var ev model.AuditEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" || !ev.Status.Valid() {
		metrics.AuditSinkRows.WithLabelValues("skipped").Inc()
		w.Log.Warn("skipping bad audit event",
			zap.Int64("offset", m.Offset),
			zap.Int("partition", m.Partition),
			zap.Error(err),
		)
		return
	}
	if ev.At.IsZero() {
		ev.At = m.Time
	}
	b.events = append(b.events, ev)
}

// runBatchWriter does size/time-based flush of events into ClickHouse.
func (w *AuditSink) runBatchWriter(ctx context.Context, in <-chan kafka.Message) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	b := &batch{}

	for {
		select {
		case <-ctx.Done():
			w.finalFlush(ctx, b)
			return

		case m, ok := <-in:
			if !ok {
				w.finalFlush(ctx, b)
				return
			}
			w.add(b, m)
			if len(b.msgs) >= w.BatchSize {
				w.flushUntilDone(ctx, b)
			}

		case <-tick.C:
			w.flushUntilDone(ctx, b)
		}
	}
}

// flushUntilDone retries a failed insert until it lands or ctx ends. While
// it retries nothing new is fetched, which bounds memory.
func (w *AuditSink) flushUntilDone(ctx context.Context, b *batch) {
	for {
		if err := w.flush(ctx, b); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.RetryWait):
		}
	}
}

func (w *AuditSink) finalFlush(ctx context.Context, b *batch) {
	if len(b.msgs) == 0 {
		return
	}
	grace := w.FlushGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := w.flush(fctx, b); err != nil {
		w.Log.Error("final audit flush failed, events will be redelivered", zap.Int("events", len(b.events)))
	}
}

func (w *AuditSink) flush(ctx context.Context, b *batch) error {
	if len(b.msgs) == 0 {
		return nil
	}

	if len(b.events) > 0 {
		if err := w.Writer.InsertEvents(ctx, b.events); err != nil {
			metrics.AuditSinkRows.WithLabelValues("error").Add(float64(len(b.events)))
			w.Log.Error("clickhouse insert failed", zap.Int("events", len(b.events)), zap.Error(err))
			return err
		}
		metrics.AuditSinkRows.WithLabelValues("ok").Add(float64(len(b.events)))
	}

	// at-least-once: offsets move only after the rows are stored
	if err := w.Source.Commit(ctx, b.msgs...); err != nil {
		w.Log.Warn("kafka commit failed", zap.Error(err))
	}

	w.Log.Debug("audit batch flushed", zap.Int("events", len(b.events)), zap.Int("messages", len(b.msgs)))
	b.reset()
	return nil
}
