package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_webhooks_received_total",
		Help: "Webhook deliveries received, labelled by result (accepted, ignored, duplicate, rejected).",
	}, []string{"result"})

	EventsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_events_reconciled_total",
		Help: "Collaborator events run through reconciliation, labelled by action and outcome.",
	}, []string{"action", "outcome"})

	TicketMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_ticket_mutations_total",
		Help: "Ticket system mutations, labelled by operation and status.",
	}, []string{"op", "status"})

	SweepRemovals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_sweep_removals_total",
		Help: "Outside collaborator removals issued by the expiration sweep, labelled by status.",
	}, []string{"status"})

	ExpirationNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_expiration_notices_total",
		Help: "Expiration reminders posted by the sweep, labelled by status.",
	}, []string{"status"})

	QueueDeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabsync_queue_dead_letters_total",
		Help: "Queue messages parked as dead letters.",
	})

	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabsync_alerts_sent_total",
		Help: "Operator alerts, labelled by severity and status.",
	}, []string{"severity", "status"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collabsync_event_processing_duration_ms",
		Help:    "Reconciliation latency per event in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collabsync_sweep_duration_seconds",
		Help:    "Wall time of one expiration sweep run.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Status maps an error to the "status" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
