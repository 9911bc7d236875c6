package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T, driver string) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, driver), mock
}

func TestTenantsGetActiveByRoutingKey(t *testing.T) {
	dbx, mock := newMock(t, "mysql")
	repo := NewTenantsRepository(dbx)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM tenants").
		WithArgs("PN1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "phone_number_id", "webhook_url", "active", "created_at", "updated_at"}).
			AddRow(7, "acme", "PN1", "https://acme.example/hook", true, now, now))

	got, err := repo.GetActiveByRoutingKey(context.Background(), "PN1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.Tenant{ID: 7, CustomerID: "acme", RoutingKey: "PN1", WebhookURL: "https://acme.example/hook", Active: true, CreatedAt: now, UpdatedAt: now}, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantsGetActiveByRoutingKeyMiss(t *testing.T) {
	dbx, mock := newMock(t, "mysql")

	mock.ExpectQuery("FROM tenants").WithArgs("PN9").WillReturnError(sql.ErrNoRows)

	got, err := NewTenantsRepository(dbx).GetActiveByRoutingKey(context.Background(), "PN9")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTenantsUpsert(t *testing.T) {
	dbx, mock := newMock(t, "mysql")

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("acme", "PN1", "https://acme.example/hook", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewTenantsRepository(dbx).Upsert(context.Background(), model.Tenant{
		CustomerID: "acme", RoutingKey: "PN1", WebhookURL: "https://acme.example/hook", Active: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
