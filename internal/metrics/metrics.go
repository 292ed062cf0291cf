// Package metrics holds the Prometheus collectors shared by the worker and
// the API. Collectors are package variables so tests can swap in fresh ones
// against a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollPassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_poll_passes_total",
		Help: "Polling passes by outcome.",
	}, []string{"outcome"})

	TicketsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_tickets_processed_total",
		Help: "Ticket snapshots run through the tracker.",
	})

	TicketErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_ticket_errors_total",
		Help: "Ticket snapshots that failed to process.",
	})

	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_violations_total",
		Help: "Violations detected, by kind.",
	}, []string{"kind"})

	AlertsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_alerts_dispatched_total",
		Help: "Violation alerts delivered, by kind.",
	}, []string{"kind"})

	DispatchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_dispatch_failures_total",
		Help: "Alert deliveries that failed and will be retried next pass.",
	})

	AssignmentNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_assignment_notifications_total",
		Help: "Assignment notifications sent to opted-in agents.",
	})

	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sla_poll_duration_seconds",
		Help:    "Duration of one polling pass.",
		Buckets: prometheus.DefBuckets,
	})

	TrackedTickets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_tracked_tickets",
		Help: "Tickets with an SLA tracking record after the last pass.",
	})

	RateLimitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Number of requests rejected by rate limiting.",
	}, []string{"route"})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_clients",
		Help: "Connected websocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		PollPassesTotal,
		TicketsProcessedTotal,
		TicketErrorsTotal,
		ViolationsTotal,
		AlertsDispatchedTotal,
		DispatchFailuresTotal,
		AssignmentNotificationsTotal,
		PollDuration,
		TrackedTickets,
		RateLimitRejectionsTotal,
		WSClients,
	)
}
