package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// AuditRepository persists the audit_records table.
type AuditRepository interface {
	InsertPending(ctx context.Context, tx *sqlx.Tx, rec model.AuditRecord) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status model.AuditStatus) error
}

type AuditRepositoryImpl struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepositoryImpl {
	return &AuditRepositoryImpl{db: db}
}

var _ AuditRepository = (*AuditRepositoryImpl)(nil)

// InsertPending inserts a new row with status=pending.
func (r *AuditRepositoryImpl) InsertPending(ctx context.Context, tx *sqlx.Tx, rec model.AuditRecord) error {
	const q = `
		INSERT INTO audit_records
		    (id, customer_id, phone_number_id, sender_id, message_id, payload, status, created_at, updated_at)
		VALUES
		    (?,  ?,           ?,               ?,         ?,          ?,       'pending', NOW(3),  NOW(3))
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			rec.ID, rec.CustomerID, rec.RoutingKey, rec.SenderID, rec.MessageID, []byte(rec.Payload),
		)
		return err
	})
}

// UpdateStatus moves a pending row to its final status.
func (r *AuditRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status model.AuditStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid audit status %q", status)
	}
	const q = `UPDATE audit_records SET status = ?, updated_at = NOW(3) WHERE id = ?`

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, status.String(), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("audit record %s not found", id)
		}
		return nil
	})
}
