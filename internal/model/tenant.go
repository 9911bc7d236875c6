package model

import "time"

// Tenant is a customer that owns one platform phone number.
// At most one active row exists per RoutingKey.
type Tenant struct {
	ID         int64     `db:"id" json:"-"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	RoutingKey string    `db:"phone_number_id" json:"phone_number_id"`
	WebhookURL string    `db:"webhook_url" json:"webhook_url"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
	UpdatedAt  time.Time `db:"updated_at" json:"-"`
}
