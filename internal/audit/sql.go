package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmehdipour/wa-relay/internal/repository"
	"github.com/jmoiron/sqlx"
)

const outboxAggregate = "audit"

// SQLLog writes audit_records and an outbox row for every transition in one
// MySQL transaction, so the analytics stream never sees a state the table lacks.
type SQLLog struct {
	db      *sqlx.DB
	records repository.AuditRepository
	outbox  repository.OutboxRepository
	topic   string
	now     func() time.Time
}

var _ Log = (*SQLLog)(nil)

func NewSQLLog(db *sqlx.DB, records repository.AuditRepository, outbox repository.OutboxRepository, topic string) *SQLLog {
	if topic == "" {
		topic = "relay.audit"
	}
	return &SQLLog{
		db:      db,
		records: records,
		outbox:  outbox,
		topic:   topic,
		now:     time.Now,
	}
}

func (l *SQLLog) Record(ctx context.Context, rec model.AuditRecord) error {
	err := l.inTx(ctx, rec, model.AuditPending, func(tx *sqlx.Tx) error {
		if err := l.records.InsertPending(ctx, tx, rec); err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
		return nil
	})
	return l.result("record", rec.ID, err)
}

func (l *SQLLog) MarkStatus(ctx context.Context, rec model.AuditRecord, status model.AuditStatus) error {
	err := l.inTx(ctx, rec, status, func(tx *sqlx.Tx) error {
		if err := l.records.UpdateStatus(ctx, tx, rec.ID, status); err != nil {
			return fmt.Errorf("update audit status: %w", err)
		}
		return nil
	})
	return l.result("mark", rec.ID, err)
}

func (l *SQLLog) inTx(ctx context.Context, rec model.AuditRecord, status model.AuditStatus, write func(*sqlx.Tx) error) error {
	ev := eventOf(rec, status)
	ev.At = l.now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := write(tx); err != nil {
		return err
	}
	if err := l.outbox.Insert(ctx, tx, outboxAggregate, rec.ID, l.topic, payload); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return tx.Commit()
}

func (l *SQLLog) result(op, id string, err error) error {
	if err != nil {
		metrics.AuditWrites.WithLabelValues(op, "error").Inc()
		return &PersistenceError{Op: op, ID: id, Err: err}
	}
	metrics.AuditWrites.WithLabelValues(op, "ok").Inc()
	return nil
}
