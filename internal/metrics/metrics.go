// Package metrics holds the Prometheus collectors for mail delivery and the
// HTTP server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sends counts Adapter.Send outcomes.
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesmailer_sends_total",
			Help: "Messages handed to the mailer, by path and result.",
		},
		[]string{
			"path",   // "direct", "queue"
			"result", // "ok", "rejected", "error"
		},
	)

	// TransportRetries counts the single retry taken after a transient error.
	TransportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesmailer_transport_retries_total",
			Help: "Retries after a transient transport error.",
		},
		[]string{"client"},
	)

	// Jobs counts delivery job executions.
	Jobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sesmailer_jobs_total",
			Help: "Delivery job executions, by engine and result.",
		},
		[]string{
			"engine", // "river", "redis"
			"result", // "complete", "failed", "skipped"
		},
	)
)
