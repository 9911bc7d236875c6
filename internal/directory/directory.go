package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/model"
)

var (
	// ErrNotFound is returned by Resolve (inbound path: the event is dropped).
	ErrNotFound = errors.New("tenant not found")
	// ErrUnauthorized is returned by Authorize (outbound path: the caller gets a 4xx).
	ErrUnauthorized = errors.New("tenant not authorized")
)

// Lookup is a tenant source. It returns (nil, nil) when the key is unknown.
type Lookup interface {
	Lookup(ctx context.Context, routingKey string) (*model.Tenant, error)
}

// Directory resolves routing keys to active tenants. Resolve and Authorize
// share one resolution rule and differ only in the error they report.
type Directory struct {
	src Lookup
}

func New(src Lookup) *Directory {
	return &Directory{src: src}
}

// Resolve returns the active tenant for routingKey or ErrNotFound.
func (d *Directory) Resolve(ctx context.Context, routingKey string) (model.Tenant, error) {
	t, err := d.active(ctx, routingKey)
	if err != nil {
		return model.Tenant{}, err
	}
	if t == nil {
		return model.Tenant{}, ErrNotFound
	}
	return *t, nil
}

// Authorize fails closed: unknown, inactive and empty keys are all ErrUnauthorized.
func (d *Directory) Authorize(ctx context.Context, routingKey string) (model.Tenant, error) {
	t, err := d.active(ctx, routingKey)
	if err != nil {
		return model.Tenant{}, err
	}
	if t == nil {
		return model.Tenant{}, ErrUnauthorized
	}
	return *t, nil
}

func (d *Directory) active(ctx context.Context, routingKey string) (*model.Tenant, error) {
	key := strings.TrimSpace(routingKey)
	if key == "" {
		return nil, nil
	}
	t, err := d.src.Lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup tenant %s: %w", key, err)
	}
	if t == nil || !t.Active {
		return nil, nil
	}
	return t, nil
}
