// Package metrics exposes Prometheus counters for the provisioning pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookDeliveriesProcessed counts terminal webhook processing outcomes.
	// outcome is one of: provisioned, skipped, failed.
	WebhookDeliveriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "webhook_deliveries_processed_total",
			Help:      "Webhook deliveries that reached a terminal processing outcome.",
		},
		[]string{"outcome"},
	)

	// ServerActions counts lifecycle actions by name and final status.
	ServerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "server_actions_total",
			Help:      "Lifecycle actions performed against provider servers.",
		},
		[]string{"action", "status"},
	)

	// SecretOperations counts secret store writes by operation (create, rotate).
	SecretOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "secret_operations_total",
			Help:      "Secret store create and rotate operations.",
		},
		[]string{"operation"},
	)
)
