package model

import (
	"encoding/json"
	"time"
)

type AuditStatus string

const (
	AuditPending   AuditStatus = "pending"
	AuditForwarded AuditStatus = "forwarded"
	AuditFailed    AuditStatus = "failed"
)

func (s AuditStatus) String() string {
	return string(s)
}

func (s AuditStatus) Valid() bool {
	return s == AuditPending || s == AuditForwarded || s == AuditFailed
}

// AuditRecord is one inbound message attributed to a tenant (audit_records table).
type AuditRecord struct {
	ID         string          `db:"id" json:"id"`
	CustomerID string          `db:"customer_id" json:"customer_id"`
	RoutingKey string          `db:"phone_number_id" json:"phone_number_id"`
	SenderID   string          `db:"sender_id" json:"sender_id"`
	MessageID  string          `db:"message_id" json:"message_id"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	Status     AuditStatus     `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// AuditEvent is the payload written to the outbox for each audit transition
// and consumed by the audit-sink worker. The message payload stays in MySQL.
type AuditEvent struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	RoutingKey string      `json:"phone_number_id"`
	SenderID   string      `json:"sender_id"`
	MessageID  string      `json:"message_id"`
	Status     AuditStatus `json:"status"`
	At         time.Time   `json:"at"`
}
