package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhooksReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skimmer_webhooks_received",
	Help: "Number of webhook deliveries received",
})

var webhooksDuplicate = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skimmer_webhooks_duplicate",
	Help: "Number of webhook deliveries dropped as duplicates",
})

var webhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skimmer_webhooks_rejected",
	Help: "Number of webhook deliveries rejected before processing",
}, []string{"reason"})

var eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skimmer_webhook_events_processed",
	Help: "Number of webhook events fully processed",
})

var eventsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skimmer_webhook_events_failed",
	Help: "Number of webhook events which failed processing",
})

var incidentsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skimmer_incidents_created",
	Help: "Number of incidents created from webhook events",
})
