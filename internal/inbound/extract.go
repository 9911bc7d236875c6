package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmehdipour/wa-relay/internal/model"
)

var errNotJSON = errors.New("body is not valid JSON")

// Extract reads the first entry's first change of a webhook envelope. It
// returns a nil event with the drop outcome when there is nothing to route.
// Status-only callbacks (delivery receipts) carry no message and are dropped.
// Only a body that is not JSON at all is an error; valid JSON of another
// shape is dropped as unrecognized.
func Extract(raw []byte, receivedAt time.Time) (*model.InboundEvent, Outcome, error) {
	if !json.Valid(raw) {
		return nil, "", errNotJSON
	}

	var env model.WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, OutcomeUnrecognized, nil
		}
		return nil, "", err
	}

	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return nil, OutcomeNoMessage, nil
	}
	value := env.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, OutcomeNoMessage, nil
	}

	key := strings.TrimSpace(value.Metadata.PhoneNumberID.String())
	if key == "" {
		return nil, OutcomeNoRoutingKey, nil
	}

	msg := value.Messages[0]
	return &model.InboundEvent{
		RoutingKey: key,
		SenderID:   msg.From.String(),
		MessageID:  msg.ID.String(),
		Raw:        json.RawMessage(bytes.Clone(raw)),
		ReceivedAt: receivedAt,
	}, "", nil
}
