package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "turns_started_total",
		Help:      "Number of chat turns accepted for processing.",
	})
	turnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "turns_completed_total",
		Help:      "Number of chat turns that produced a persisted assistant message.",
	})
	persistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "persistence_failures_total",
		Help:      "Number of message or conversation writes that failed after a finished turn.",
	})
	attachmentExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "attachment_extraction_failures_total",
		Help:      "Number of attachments whose text extraction failed.",
	})
	attachmentTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "attachment_truncations_total",
		Help:      "Number of attachments whose extracted text exceeded the size cap.",
	})
)
