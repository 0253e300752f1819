package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skimmer_events_processed",
	Help: "Number of content events evaluated",
}, []string{"source"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skimmer_event_errors",
	Help: "Number of content events which failed evaluation",
}, []string{"source"})

var ruleHitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skimmer_rule_hits",
	Help: "Number of rule matches during evaluation",
}, []string{"severity"})

var actionAttemptCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skimmer_action_attempts",
	Help: "Number of enforcement action attempts, by outcome",
}, []string{"type", "status"})
