package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/jmehdipour/wa-relay/internal/model"
	"gopkg.in/yaml.v3"
)

// Snapshot is an immutable in-memory tenant table. It is safe for
// concurrent reads because nothing mutates it after construction.
type Snapshot struct {
	byKey map[string]model.Tenant
}

var _ Lookup = (*Snapshot)(nil)

// NewSnapshot indexes tenants by routing key. Two active records for the same
// key are rejected; an active record shadows inactive ones.
func NewSnapshot(tenants []model.Tenant) (*Snapshot, error) {
	byKey := make(map[string]model.Tenant, len(tenants))
	for _, t := range tenants {
		t.RoutingKey = strings.TrimSpace(t.RoutingKey)
		if t.RoutingKey == "" {
			return nil, fmt.Errorf("tenant %q: empty phone_number_id", t.CustomerID)
		}
		if t.Active && strings.TrimSpace(t.WebhookURL) == "" {
			return nil, fmt.Errorf("tenant %q: active without webhook_url", t.CustomerID)
		}

		prev, seen := byKey[t.RoutingKey]
		switch {
		case !seen:
			byKey[t.RoutingKey] = t
		case prev.Active && t.Active:
			return nil, fmt.Errorf("phone_number_id %s: more than one active tenant (%q, %q)",
				t.RoutingKey, prev.CustomerID, t.CustomerID)
		case t.Active:
			byKey[t.RoutingKey] = t
		}
	}
	return &Snapshot{byKey: byKey}, nil
}

func (s *Snapshot) Lookup(_ context.Context, routingKey string) (*model.Tenant, error) {
	t, ok := s.byKey[routingKey]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Len is the number of distinct routing keys.
func (s *Snapshot) Len() int { return len(s.byKey) }

// FromConfig converts the directory.tenants config section.
func FromConfig(entries []config.TenantConfig) []model.Tenant {
	out := make([]model.Tenant, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Tenant{
			CustomerID: e.CustomerID,
			RoutingKey: e.RoutingKey,
			WebhookURL: e.WebhookURL,
			Active:     e.Active,
		})
	}
	return out
}

type snapshotFile struct {
	Tenants []config.TenantConfig `yaml:"tenants"`
}

// LoadSnapshotFile reads a YAML file of the form `tenants: [{customer_id, phone_number_id, webhook_url, active}]`.
func LoadSnapshotFile(path string) ([]model.Tenant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant snapshot: %w", err)
	}
	var f snapshotFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tenant snapshot %s: %w", path, err)
	}
	return FromConfig(f.Tenants), nil
}
