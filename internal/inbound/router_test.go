package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "PN1"},
        "messages": [{"from": "15557654321", "id": "wamid.A", "timestamp": "1700000000", "type": "text", "text": {"body": "hi"}}]
      }
    }]
  }]
}`

type fakeTenants map[string]model.Tenant

func (f fakeTenants) Resolve(_ context.Context, key string) (model.Tenant, error) {
	t, ok := f[key]
	if !ok || !t.Active {
		return model.Tenant{}, directory.ErrNotFound
	}
	return t, nil
}

type fakeAudit struct {
	mu        sync.Mutex
	records   []model.AuditRecord
	statuses  map[string]model.AuditStatus
	recordErr error
}

func (f *fakeAudit) Record(_ context.Context, rec model.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) MarkStatus(_ context.Context, rec model.AuditRecord, status model.AuditStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]model.AuditStatus)
	}
	f.statuses[rec.ID] = status
	return nil
}

func (f *fakeAudit) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records) + len(f.statuses)
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeForwarder) Forward(ctx context.Context, tenant model.Tenant, deliveryID string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliveryID)
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.err
}

func newTestRouter(a *fakeAudit, fw *fakeForwarder) *Router {
	tenants := fakeTenants{
		"PN1": {CustomerID: "acme", RoutingKey: "PN1", WebhookURL: "http://acme.test/hook", Active: true},
		"PN2": {CustomerID: "gone", RoutingKey: "PN2", WebhookURL: "http://gone.test/hook", Active: false},
	}
	return New(tenants, a, fw, "verify-me", nil)
}

func TestVerify(t *testing.T) {
	r := newTestRouter(&fakeAudit{}, &fakeForwarder{})

	got, err := r.Verify("subscribe", "verify-me", "1158201444")
	require.NoError(t, err)
	assert.Equal(t, "1158201444", got)

	for _, tc := range []struct{ name, mode, token string }{
		{"wrong token", "subscribe", "nope"},
		{"wrong mode", "unsubscribe", "verify-me"},
		{"empty mode", "", "verify-me"},
		{"empty token", "subscribe", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Verify(tc.mode, tc.token, "1158201444")
			assert.ErrorIs(t, err, ErrVerification)
			assert.Empty(t, got)
		})
	}
}

func TestVerifyRejectsWhenNoTokenConfigured(t *testing.T) {
	r := New(fakeTenants{}, &fakeAudit{}, &fakeForwarder{}, "", nil)
	_, err := r.Verify("subscribe", "", "x")
	assert.ErrorIs(t, err, ErrVerification)
}

func TestIntakeForwardsAndAudits(t *testing.T) {
	a, fw := &fakeAudit{}, &fakeForwarder{}
	r := newTestRouter(a, fw)

	outcome, err := r.Intake(context.Background(), []byte(messageEnvelope))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)

	require.Len(t, a.records, 1)
	rec := a.records[0]
	assert.Equal(t, "acme", rec.CustomerID)
	assert.Equal(t, "PN1", rec.RoutingKey)
	assert.Equal(t, "15557654321", rec.SenderID)
	assert.Equal(t, "wamid.A", rec.MessageID)
	assert.Equal(t, model.AuditPending, rec.Status)
	assert.JSONEq(t, messageEnvelope, string(rec.Payload))

	require.Len(t, fw.calls, 1)
	assert.Equal(t, rec.ID, fw.calls[0])
	assert.Equal(t, model.AuditForwarded, a.statuses[rec.ID])
}

func TestIntakeUnknownTenantIsDropped(t *testing.T) {
	for _, key := range []string{"PN9", "PN2"} {
		t.Run(key, func(t *testing.T) {
			a, fw := &fakeAudit{}, &fakeForwarder{}
			r := newTestRouter(a, fw)

			body := []byte(`{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"` + key + `"},"messages":[{"from":"1","id":"m"}]}}]}]}`)
			outcome, err := r.Intake(context.Background(), body)
			require.NoError(t, err)
			assert.Equal(t, OutcomeUnknownTenant, outcome)
			assert.Empty(t, fw.calls)
			assert.Zero(t, a.writes())
		})
	}
}

func TestIntakeIgnoredShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Outcome
	}{
		{"empty object", `{}`, OutcomeNoMessage},
		{"no changes", `{"entry":[{"id":"1"}]}`, OutcomeNoMessage},
		{"status receipt", `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"PN1"},"statuses":[{"id":"wamid.A","status":"delivered"}]}}]}]}`, OutcomeNoMessage},
		{"no routing key", `{"entry":[{"changes":[{"value":{"metadata":{},"messages":[{"from":"1","id":"m"}]}}]}]}`, OutcomeNoRoutingKey},
		{"top-level array", `[]`, OutcomeUnrecognized},
		{"entry is an object", `{"entry":{}}`, OutcomeUnrecognized},
		{"json string", `"hello"`, OutcomeUnrecognized},
		{"numeric sender for unknown tenant", `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"PN404"},"messages":[{"from":15557654321,"id":"m"}]}}]}]}`, OutcomeUnknownTenant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, fw := &fakeAudit{}, &fakeForwarder{}
			outcome, err := newTestRouter(a, fw).Intake(context.Background(), []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			assert.Empty(t, fw.calls)
			assert.Zero(t, a.writes())
		})
	}
}

func TestIntakeMalformedBody(t *testing.T) {
	for _, body := range []string{`{"entry":`, `not json`, ``} {
		_, err := newTestRouter(&fakeAudit{}, &fakeForwarder{}).Intake(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestExtractNumericFields(t *testing.T) {
	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":1234567},"messages":[{"from":15557654321,"id":"wamid.N"}]}}]}]}`
	ev, _, err := Extract([]byte(body), time.Unix(0, 0))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "1234567", ev.RoutingKey)
	assert.Equal(t, "15557654321", ev.SenderID)
	assert.Equal(t, "wamid.N", ev.MessageID)
}

func TestIntakeReplayIsNotDeduplicated(t *testing.T) {
	a, fw := &fakeAudit{}, &fakeForwarder{}
	r := newTestRouter(a, fw)

	for i := 0; i < 2; i++ {
		_, err := r.Intake(context.Background(), []byte(messageEnvelope))
		require.NoError(t, err)
	}

	require.Len(t, a.records, 2)
	assert.Len(t, fw.calls, 2)
	assert.NotEqual(t, a.records[0].ID, a.records[1].ID)
	assert.Equal(t, "wamid.A", a.records[0].MessageID)
	assert.Equal(t, "wamid.A", a.records[1].MessageID)
}

func TestIntakeForwardFailureMarksFailed(t *testing.T) {
	a := &fakeAudit{}
	fw := &fakeForwarder{err: errors.New("connection refused")}
	r := newTestRouter(a, fw)

	outcome, err := r.Intake(context.Background(), []byte(messageEnvelope))
	assert.ErrorIs(t, err, ErrForward)
	assert.Equal(t, OutcomeForwardFailed, outcome)

	require.Len(t, a.records, 1)
	assert.Equal(t, model.AuditFailed, a.statuses[a.records[0].ID])
}

func TestIntakePersistenceFailureStillForwards(t *testing.T) {
	a := &fakeAudit{recordErr: errors.New("db down")}
	fw := &fakeForwarder{}
	r := newTestRouter(a, fw)

	outcome, err := r.Intake(context.Background(), []byte(messageEnvelope))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)
	assert.Len(t, fw.calls, 1)
	assert.Empty(t, a.statuses)
}

func TestIntakeForwardIgnoresCancelledRequest(t *testing.T) {
	a, fw := &fakeAudit{}, &fakeForwarder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := newTestRouter(a, fw).Intake(ctx, []byte(messageEnvelope))
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)
	assert.Len(t, fw.calls, 1)
}
