package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHAuditRepository is the analytics side of the audit log: the sink worker
// appends transitions, the reports endpoint reads the folded view.
type CHAuditRepository interface {
	InsertEvents(ctx context.Context, events []model.AuditEvent) error
	ListByRoutingKey(ctx context.Context, routingKey string, status model.AuditStatus, limit, offset int) ([]model.AuditRecord, error)
}

type chAuditRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAuditRepository(ch *sqlx.DB) CHAuditRepository {
	return &chAuditRepository{ch: ch}
}

// InsertEvents appends a batch in one ClickHouse block (prepare + exec per row + commit).
func (r *chAuditRepository) InsertEvents(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relay.audit_events
		    (id, customer_id, phone_number_id, sender_id, message_id, status, at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.CustomerID, ev.RoutingKey, ev.SenderID, ev.MessageID, ev.Status.String(), ev.At,
		); err != nil {
			return fmt.Errorf("append %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

func (r *chAuditRepository) ListByRoutingKey(ctx context.Context, routingKey string, status model.AuditStatus, limit, offset int) ([]model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, customer_id, phone_number_id, sender_id, message_id, status, created_at, updated_at
		FROM relay.audit_latest
		WHERE 1 = 1
	`
	var args []any

	if routingKey != "" {
		q += " AND phone_number_id = ?"
		args = append(args, routingKey)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.AuditRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
