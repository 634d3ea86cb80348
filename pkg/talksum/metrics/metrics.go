package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talksum_events_received_total",
			Help: "Total webhook events received",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talksum_events_dropped_total",
			Help: "Total events dropped before storage",
		},
		[]string{"reason"}, // "bot_actor", "media", "unknown_template", "missing_param", "queue_full"
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talksum_messages_stored_total",
			Help: "Total messages appended to the log",
		},
	)

	// Command metrics
	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talksum_commands_handled_total",
			Help: "Total bot commands handled",
		},
		[]string{"command"},
	)

	// Summarization metrics
	SummariesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talksum_summaries_generated_total",
			Help: "Total summaries generated",
		},
	)

	SummaryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talksum_summary_failures_total",
			Help: "Total failed summarization attempts",
		},
		[]string{"kind"}, // "backend", "llm", "store"
	)

	// Scheduler metrics
	JobsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talksum_jobs_fired_total",
			Help: "Total scheduled jobs fired",
		},
	)

	JobFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talksum_job_failures_total",
			Help: "Total scheduled job executions that failed",
		},
	)
)
