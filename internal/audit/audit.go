package audit

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wa-relay/internal/model"
)

// Log is the durable record of inbound messages attributed to a tenant.
// It is written by the inbound router and never read back by the relay.
type Log interface {
	// Record stores rec with status pending. rec.ID is assigned by the caller.
	Record(ctx context.Context, rec model.AuditRecord) error
	// MarkStatus moves a recorded entry to forwarded or failed.
	MarkStatus(ctx context.Context, rec model.AuditRecord, status model.AuditStatus) error
}

// PersistenceError wraps any audit write failure. It is logged by callers
// and never changes the outcome of the request that triggered it.
type PersistenceError struct {
	Op  string // record | mark
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func eventOf(rec model.AuditRecord, status model.AuditStatus) model.AuditEvent {
	return model.AuditEvent{
		ID:         rec.ID,
		CustomerID: rec.CustomerID,
		RoutingKey: rec.RoutingKey,
		SenderID:   rec.SenderID,
		MessageID:  rec.MessageID,
		Status:     status,
	}
}
