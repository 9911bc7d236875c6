package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/gateway"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	calls int
}

func (f *fakeAuthorizer) Authorize(_ context.Context, key string) (model.Tenant, error) {
	f.calls++
	if key != "PN1" {
		return model.Tenant{}, directory.ErrUnauthorized
	}
	return model.Tenant{CustomerID: "acme", RoutingKey: "PN1", Active: true}, nil
}

type fakeSender struct {
	calls    int
	key      string
	payload  []byte
	response json.RawMessage
	err      error
}

func (f *fakeSender) Send(_ context.Context, key string, payload []byte) (json.RawMessage, error) {
	f.calls++
	f.key = key
	f.payload = payload
	return f.response, f.err
}

func TestServiceSendText(t *testing.T) {
	auth := &fakeAuthorizer{}
	gw := &fakeSender{response: json.RawMessage(`{"messages":[{"id":"wamid.1"}]}`)}
	svc := NewService(auth, gw, nil)

	res, err := svc.Send(context.Background(), model.SendRequest{RoutingKey: "PN1", To: "+1555", Message: strPtr("hi")})
	require.NoError(t, err)

	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, "PN1", gw.key)
	assert.JSONEq(t, `{"messaging_product":"whatsapp","to":"+1555","type":"text","text":{"body":"hi"}}`, string(gw.payload))
	assert.Equal(t, gw.response, res)
}

func TestServiceSendUnauthorized(t *testing.T) {
	gw := &fakeSender{}
	_, err := NewService(&fakeAuthorizer{}, gw, nil).Send(context.Background(),
		model.SendRequest{RoutingKey: "PN9", To: "+1555", Message: strPtr("hi")})
	assert.ErrorIs(t, err, directory.ErrUnauthorized)
	assert.Zero(t, gw.calls)
}

func TestServiceSendValidationSkipsDirectoryAndGateway(t *testing.T) {
	auth, gw := &fakeAuthorizer{}, &fakeSender{}
	_, err := NewService(auth, gw, nil).Send(context.Background(), model.SendRequest{RoutingKey: "PN1", To: "+1555"})

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, auth.calls)
	assert.Zero(t, gw.calls)
}

func TestServiceSendGatewayError(t *testing.T) {
	gerr := &gateway.Error{Op: "send", Status: 400, Body: json.RawMessage(`{"error":{"code":131030}}`)}
	gw := &fakeSender{err: gerr}

	_, err := NewService(&fakeAuthorizer{}, gw, nil).Send(context.Background(),
		model.SendRequest{RoutingKey: "PN1", To: "+1555", TemplateName: strPtr("t")})

	var got *gateway.Error
	require.True(t, errors.As(err, &got))
	assert.Same(t, gerr, got)
}

func TestServiceSendMedia(t *testing.T) {
	raw := json.RawMessage(`{"messaging_product":"whatsapp","to":"+1555","type":"document","document":{"link":"https://x/y.pdf"}}`)
	gw := &fakeSender{response: json.RawMessage(`{"ok":true}`)}

	res, err := NewService(&fakeAuthorizer{}, gw, nil).SendMedia(context.Background(),
		model.SendMediaRequest{RoutingKey: "PN1", Payload: raw})
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), gw.payload)
	assert.JSONEq(t, `{"ok":true}`, string(res))
}

func TestServiceSendMediaRejectsBadEnvelopeBeforeAnyCall(t *testing.T) {
	for _, payload := range []string{
		`{"to":"+1555","type":"image"}`,
		`{"messaging_product":"whatsapp","type":"image"}`,
		`{"messaging_product":"whatsapp","to":"+1555"}`,
	} {
		auth, gw := &fakeAuthorizer{}, &fakeSender{}
		_, err := NewService(auth, gw, nil).SendMedia(context.Background(),
			model.SendMediaRequest{RoutingKey: "PN1", Payload: json.RawMessage(payload)})

		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), payload)
		assert.Zero(t, auth.calls, payload)
		assert.Zero(t, gw.calls, payload)
	}
}

func TestServiceSendMediaUnknownTenant(t *testing.T) {
	gw := &fakeSender{}
	_, err := NewService(&fakeAuthorizer{}, gw, nil).SendMedia(context.Background(), model.SendMediaRequest{
		RoutingKey: "PN9",
		Payload:    json.RawMessage(`{"messaging_product":"whatsapp","to":"+1555","type":"image"}`),
	})
	assert.ErrorIs(t, err, directory.ErrUnauthorized)
	assert.Zero(t, gw.calls)
}
