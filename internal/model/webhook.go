package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// WebhookEnvelope is the subset of the platform webhook body the relay
// inspects. The raw bytes are what gets forwarded, never this struct.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Messages         []WebhookMessage  `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber Scalar `json:"display_phone_number"`
	PhoneNumberID      Scalar `json:"phone_number_id"`
}

type WebhookMessage struct {
	From      Scalar `json:"from"`
	ID        Scalar `json:"id"`
	Timestamp Scalar `json:"timestamp"`
	Type      Scalar `json:"type"`
}

// Scalar is a webhook field that is normally a string. Numbers keep their
// literal text; null, objects, arrays and booleans decode to "".
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*s = Scalar(b)
	default:
		*s = ""
	}
	return nil
}

func (s Scalar) String() string { return string(s) }

// InboundEvent is built per request from an accepted webhook and never stored.
type InboundEvent struct {
	RoutingKey string
	SenderID   string
	MessageID  string
	Raw        json.RawMessage
	ReceivedAt time.Time
}
