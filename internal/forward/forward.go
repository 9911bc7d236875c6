package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
)

const (
	DefaultSecretHeader = "X-Internal-Secret"
	DeliveryIDHeader    = "X-Relay-Delivery-Id"
)

// ErrBreakerOpen means the tenant endpoint failed repeatedly and is being skipped for a while.
var ErrBreakerOpen = errors.New("tenant webhook circuit open")

// StatusError is a non-2xx answer from a tenant webhook.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tenant webhook %s answered %d", e.URL, e.Status)
}

type Options struct {
	SharedSecret  string
	SecretHeader  string
	Timeout       time.Duration // 0 keeps the transport default (no client timeout)
	FailThreshold int           // 0 disables the per-URL breaker
	OpenFor       time.Duration
	Client        *http.Client
}

// Forwarder relays raw webhook bodies to tenant endpoints.
type Forwarder struct {
	client       *http.Client
	secret       string
	secretHeader string
	breakers     *breakers
}

func New(opts Options) *Forwarder {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	header := opts.SecretHeader
	if header == "" {
		header = DefaultSecretHeader
	}

	f := &Forwarder{client: client, secret: opts.SharedSecret, secretHeader: header}
	if opts.FailThreshold > 0 {
		openFor := opts.OpenFor
		if openFor <= 0 {
			openFor = 15 * time.Second
		}
		f.breakers = &breakers{
			byURL:     make(map[string]*breaker),
			threshold: opts.FailThreshold,
			openFor:   openFor,
			now:       time.Now,
		}
	}
	return f
}

// Forward POSTs raw to the tenant's webhook. Any transport error or non-2xx
// status is a failure.
func (f *Forwarder) Forward(ctx context.Context, tenant model.Tenant, deliveryID string, raw []byte) error {
	var br *breaker
	if f.breakers != nil {
		br = f.breakers.get(tenant.WebhookURL)
		if !br.allow() {
			metrics.Forwards.WithLabelValues("breaker_open").Inc()
			return ErrBreakerOpen
		}
	}

	err := f.post(ctx, tenant.WebhookURL, deliveryID, raw)
	if br != nil {
		br.done(err == nil)
	}
	if err != nil {
		metrics.Forwards.WithLabelValues("error").Inc()
		return err
	}
	metrics.Forwards.WithLabelValues("ok").Inc()
	return nil
}

func (f *Forwarder) post(ctx context.Context, url, deliveryID string, raw []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(f.secretHeader, f.secret)
	if deliveryID != "" {
		req.Header.Set(DeliveryIDHeader, deliveryID)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", url, err)
	}
	defer res.Body.Close()
	// drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode/100 != 2 {
		return &StatusError{URL: url, Status: res.StatusCode}
	}
	return nil
}
