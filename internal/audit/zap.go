package audit

import (
	"context"

	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
	"go.uber.org/zap"
)

// ZapLog is the audit sink used when no database is configured: each
// transition becomes one structured log line.
type ZapLog struct {
	log *zap.Logger
}

var _ Log = (*ZapLog)(nil)

func NewZapLog(log *zap.Logger) *ZapLog {
	return &ZapLog{log: log}
}

func (l *ZapLog) Record(_ context.Context, rec model.AuditRecord) error {
	l.log.Info("audit record",
		zap.String("audit_id", rec.ID),
		zap.String("customer_id", rec.CustomerID),
		zap.String("phone_number_id", rec.RoutingKey),
		zap.String("sender_id", rec.SenderID),
		zap.String("message_id", rec.MessageID),
		zap.String("status", model.AuditPending.String()),
		zap.ByteString("payload", rec.Payload),
	)
	metrics.AuditWrites.WithLabelValues("record", "ok").Inc()
	return nil
}

func (l *ZapLog) MarkStatus(_ context.Context, rec model.AuditRecord, status model.AuditStatus) error {
	l.log.Info("audit status",
		zap.String("audit_id", rec.ID),
		zap.String("phone_number_id", rec.RoutingKey),
		zap.String("message_id", rec.MessageID),
		zap.String("status", status.String()),
	)
	metrics.AuditWrites.WithLabelValues("mark", "ok").Inc()
	return nil
}
