package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/jmehdipour/wa-relay/internal/model"
	"go.uber.org/zap"
)

// Authorizer is the outbound view of the tenant directory.
type Authorizer interface {
	Authorize(ctx context.Context, routingKey string) (model.Tenant, error)
}

// Sender posts a composed payload to the platform messages endpoint.
type Sender interface {
	Send(ctx context.Context, routingKey string, payload []byte) (json.RawMessage, error)
}

// Service turns tenant send requests into platform calls.
type Service struct {
	tenants Authorizer
	gateway Sender
	log     *zap.Logger
}

func NewService(tenants Authorizer, gateway Sender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tenants: tenants, gateway: gateway, log: log}
}

// Send handles a text or template request: parse, authorize, compose, send.
// The platform response is returned verbatim.
func (s *Service) Send(ctx context.Context, req model.SendRequest) (json.RawMessage, error) {
	r, err := Parse(req)
	if err != nil {
		s.count("unknown", err)
		return nil, err
	}
	return s.deliver(ctx, r)
}

// SendMedia proxies a pre-built media payload. The envelope is checked before
// the tenant so a malformed body never costs a directory or gateway call.
func (s *Service) SendMedia(ctx context.Context, req model.SendMediaRequest) (json.RawMessage, error) {
	var fields []string
	if strings.TrimSpace(req.RoutingKey) == "" {
		fields = append(fields, "phone_number_id")
	}
	if _, err := ValidateMediaEnvelope(req.Payload); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		fields = append(fields, verr.Fields...)
	}
	if len(fields) > 0 {
		err := missing(fields...)
		s.count(string(KindMedia), err)
		return nil, err
	}

	return s.deliver(ctx, Media{RoutingKey: strings.TrimSpace(req.RoutingKey), Payload: req.Payload})
}

func (s *Service) deliver(ctx context.Context, r Request) (json.RawMessage, error) {
	kind := string(r.Kind())
	log := s.log.With(zap.String("phone_number_id", r.Key()), zap.String("kind", kind))

	tenant, err := s.tenants.Authorize(ctx, r.Key())
	if err != nil {
		s.count(kind, err)
		if !errors.Is(err, directory.ErrUnauthorized) {
			log.Error("tenant lookup failed", zap.Error(err))
		}
		return nil, err
	}

	payload, err := Compose(r)
	if err != nil {
		s.count(kind, err)
		return nil, err
	}

	// Platform calls are not cancelled by the caller going away.
	res, err := s.gateway.Send(context.WithoutCancel(ctx), r.Key(), payload)
	s.count(kind, err)
	if err != nil {
		log.Warn("platform send failed", zap.String("customer_id", tenant.CustomerID), zap.Error(err))
		return nil, err
	}
	log.Info("message sent", zap.String("customer_id", tenant.CustomerID))
	return res, nil
}

func (s *Service) count(kind string, err error) {
	var verr *ValidationError
	result := "sent"
	switch {
	case err == nil:
	case errors.As(err, &verr):
		result = "invalid"
	case errors.Is(err, directory.ErrUnauthorized):
		result = "unauthorized"
	default:
		result = "error"
	}
	metrics.OutboundRequests.WithLabelValues(kind, result).Inc()
}
