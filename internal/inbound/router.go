package inbound

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/wa-relay/internal/audit"
	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmehdipour/wa-relay/internal/util"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const SubscribeMode = "subscribe"

var (
	// ErrVerification rejects a webhook handshake (403, empty body).
	ErrVerification = errors.New("webhook verification failed")
	// ErrMalformed means the webhook body is not a JSON envelope.
	ErrMalformed = errors.New("malformed webhook body")
	// ErrForward means the tenant webhook could not be reached or refused the event.
	// It is surfaced as a 500 so the platform retries the delivery.
	ErrForward = errors.New("forward to tenant failed")
)

// Outcome is how an accepted webhook event was handled.
type Outcome string

const (
	OutcomeNoMessage     Outcome = "no_message"
	OutcomeUnrecognized  Outcome = "unrecognized"
	OutcomeNoRoutingKey  Outcome = "no_routing_key"
	OutcomeUnknownTenant Outcome = "unknown_tenant"
	OutcomeLookupError   Outcome = "lookup_error"
	OutcomeForwarded     Outcome = "forwarded"
	OutcomeForwardFailed Outcome = "forward_failed"
)

// Resolver is the inbound view of the tenant directory.
type Resolver interface {
	Resolve(ctx context.Context, routingKey string) (model.Tenant, error)
}

// Forwarder delivers a raw webhook body to a tenant endpoint.
type Forwarder interface {
	Forward(ctx context.Context, tenant model.Tenant, deliveryID string, raw []byte) error
}

// Router verifies webhook subscriptions and routes inbound events to tenants.
type Router struct {
	tenants     Resolver
	audit       audit.Log
	forwarder   Forwarder
	verifyToken string
	log         *zap.Logger

	newID func() string
	now   func() time.Time
}

func New(
	tenants Resolver,
	auditLog audit.Log,
	forwarder Forwarder,
	verifyToken string,
	log *zap.Logger,
) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		tenants:     tenants,
		audit:       auditLog,
		forwarder:   forwarder,
		verifyToken: verifyToken,
		log:         log,
		newID:       util.NewID,
		now:         time.Now,
	}
}

// Verify answers the platform subscription handshake. The challenge is
// returned untouched when mode is subscribe and token matches.
func (r *Router) Verify(mode, token, challenge string) (string, error) {
	if mode != SubscribeMode || r.verifyToken == "" {
		return "", ErrVerification
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.verifyToken)) != 1 {
		return "", ErrVerification
	}
	return challenge, nil
}

// Intake routes one webhook body. Events without a message, without a routing
// key, or for an unknown tenant are accepted and dropped. Accepted events are
// audited and forwarded concurrently; only a forward failure or a directory
// failure is returned as an error.
//
// There is no deduplication: the same body delivered twice is audited and
// forwarded twice.
func (r *Router) Intake(ctx context.Context, raw []byte) (Outcome, error) {
	ev, outcome, err := Extract(raw, r.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev == nil {
		metrics.InboundEvents.WithLabelValues(string(outcome)).Inc()
		r.log.Debug("webhook ignored", zap.String("outcome", string(outcome)))
		return outcome, nil
	}

	tenant, err := r.tenants.Resolve(ctx, ev.RoutingKey)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		metrics.InboundEvents.WithLabelValues(string(OutcomeUnknownTenant)).Inc()
		r.log.Warn("webhook for unknown tenant dropped",
			zap.String("phone_number_id", ev.RoutingKey),
			zap.String("message_id", ev.MessageID),
		)
		return OutcomeUnknownTenant, nil
	case err != nil:
		metrics.InboundEvents.WithLabelValues(string(OutcomeLookupError)).Inc()
		r.log.Error("tenant lookup failed", zap.String("phone_number_id", ev.RoutingKey), zap.Error(err))
		return OutcomeLookupError, fmt.Errorf("resolve tenant: %w", err)
	}

	return r.dispatch(ctx, tenant, ev)
}

func (r *Router) dispatch(ctx context.Context, tenant model.Tenant, ev *model.InboundEvent) (Outcome, error) {
	// Forward and audit run to completion even if the platform hangs up.
	ctx = context.WithoutCancel(ctx)

	rec := model.AuditRecord{
		ID:         r.newID(),
		CustomerID: tenant.CustomerID,
		RoutingKey: ev.RoutingKey,
		SenderID:   ev.SenderID,
		MessageID:  ev.MessageID,
		Payload:    ev.Raw,
		Status:     model.AuditPending,
		CreatedAt:  ev.ReceivedAt,
	}
	log := r.log.With(
		zap.String("audit_id", rec.ID),
		zap.String("customer_id", tenant.CustomerID),
		zap.String("phone_number_id", ev.RoutingKey),
		zap.String("message_id", ev.MessageID),
	)

	var recordErr, forwardErr error
	var wg conc.WaitGroup
	wg.Go(func() { recordErr = r.audit.Record(ctx, rec) })
	wg.Go(func() { forwardErr = r.forwarder.Forward(ctx, tenant, rec.ID, ev.Raw) })
	wg.Wait()

	status := model.AuditForwarded
	if forwardErr != nil {
		status = model.AuditFailed
	}

	if recordErr != nil {
		log.Error("audit record failed", zap.Error(recordErr))
	} else if err := r.audit.MarkStatus(ctx, rec, status); err != nil {
		log.Error("audit status update failed", zap.String("status", status.String()), zap.Error(err))
	}

	if forwardErr != nil {
		metrics.InboundEvents.WithLabelValues(string(OutcomeForwardFailed)).Inc()
		log.Warn("forward to tenant failed", zap.Error(forwardErr))
		return OutcomeForwardFailed, fmt.Errorf("%w: %w", ErrForward, forwardErr)
	}

	metrics.InboundEvents.WithLabelValues(string(OutcomeForwarded)).Inc()
	log.Info("webhook forwarded", zap.Duration("took", time.Since(ev.ReceivedAt)))
	return OutcomeForwarded, nil
}
