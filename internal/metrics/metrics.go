package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_events_total",
			Help: "Inbound webhook events by outcome",
		},
		[]string{"outcome"}, // forwarded|forward_failed|no_message|no_routing_key|unknown_tenant|lookup_error
	)

	Forwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_forward_total",
			Help: "Calls to tenant webhooks by result",
		},
		[]string{"result"}, // ok|error|breaker_open
	)

	OutboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_outbound_requests_total",
			Help: "Outbound send requests by message kind and result",
		},
		[]string{"kind", "result"}, // text|template|media , sent|invalid|unauthorized|error
	)

	AuditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_audit_writes_total",
			Help: "Audit log writes by operation and result",
		},
		[]string{"op", "result"}, // record|mark , ok|error
	)

	AuditSinkRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_audit_sink_rows_total",
			Help: "Audit events flushed to ClickHouse by result",
		},
		[]string{"result"}, // ok|error|skipped
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once per process; serve and the
// worker share the default registerer.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			InboundEvents,
			Forwards,
			OutboundRequests,
			AuditWrites,
			AuditSinkRows,
		)
	})
}
