package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCHAuditInsertEventsOneBlock(t *testing.T) {
	dbx, mock := newMock(t, "clickhouse")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []model.AuditEvent{
		{ID: "A", CustomerID: "acme", RoutingKey: "PN1", SenderID: "1", MessageID: "m1", Status: model.AuditPending, At: at},
		{ID: "A", CustomerID: "acme", RoutingKey: "PN1", SenderID: "1", MessageID: "m1", Status: model.AuditForwarded, At: at.Add(time.Second)},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO relay.audit_events")
	prep.ExpectExec().WithArgs("A", "acme", "PN1", "1", "m1", "pending", at).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("A", "acme", "PN1", "1", "m1", "forwarded", at.Add(time.Second)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewCHAuditRepository(dbx).InsertEvents(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHAuditInsertEventsEmpty(t *testing.T) {
	dbx, mock := newMock(t, "clickhouse")
	require.NoError(t, NewCHAuditRepository(dbx).InsertEvents(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHAuditListByRoutingKey(t *testing.T) {
	dbx, mock := newMock(t, "clickhouse")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM relay.audit_latest").
		WithArgs("PN1", "failed", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "phone_number_id", "sender_id", "message_id", "status", "created_at", "updated_at"}).
			AddRow("A", "acme", "PN1", "1", "m1", "failed", at, at.Add(time.Second)))

	rows, err := NewCHAuditRepository(dbx).ListByRoutingKey(context.Background(), "PN1", model.AuditFailed, 0, -3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.AuditFailed, rows[0].Status)
	assert.Equal(t, "acme", rows[0].CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
