package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

type TenantsRepository interface {
	// GetActiveByRoutingKey returns (nil, nil) when no active tenant owns the key.
	GetActiveByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error)
	Upsert(ctx context.Context, t model.Tenant) error
}

type TenantsRepositoryImpl struct {
	db *sqlx.DB
}

func NewTenantsRepository(db *sqlx.DB) *TenantsRepositoryImpl {
	return &TenantsRepositoryImpl{db: db}
}

var _ TenantsRepository = (*TenantsRepositoryImpl)(nil)

func (r *TenantsRepositoryImpl) GetActiveByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.db.GetContext(ctx, &t, `
		SELECT id, customer_id, phone_number_id, webhook_url, active, created_at, updated_at
		  FROM tenants
		 WHERE phone_number_id = ? AND active = 1
		 LIMIT 1
	`, routingKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Upsert is used by the seed command; phone_number_id is UNIQUE.
func (r *TenantsRepositoryImpl) Upsert(ctx context.Context, t model.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants
		    (customer_id, phone_number_id, webhook_url, active, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    customer_id = VALUES(customer_id),
		    webhook_url = VALUES(webhook_url),
		    active      = VALUES(active),
		    updated_at  = VALUES(updated_at)
	`, t.CustomerID, t.RoutingKey, t.WebhookURL, t.Active)
	return err
}
