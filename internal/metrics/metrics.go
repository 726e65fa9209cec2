package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "profilebus"

var (
	once sync.Once

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of publish attempts by topic and outcome.",
		},
		[]string{"topic", "status"},
	)

	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Count of payload messages received by topic.",
		},
		[]string{"topic"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Count of received messages that were not dispatched.",
		},
		[]string{"topic", "reason"},
	)

	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Count of handler invocations that returned an error or panicked.",
		},
		[]string{"topic"},
	)

	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"topic"},
	)

	handlersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_in_flight",
			Help:      "Number of handler goroutines currently running.",
		},
	)

	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_events_total",
			Help:      "Count of events processed by the processor by kind.",
		},
		[]string{"kind"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notification attempts by outcome.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			eventsPublished,
			eventsReceived,
			eventsDropped,
			handlerFailures,
			handlerDuration,
			handlersInFlight,
			eventsProcessed,
			notifications,
		)
	})
}

func IncPublished(topic, status string) {
	eventsPublished.WithLabelValues(topic, status).Inc()
}

func IncReceived(topic string) {
	eventsReceived.WithLabelValues(topic).Inc()
}

func IncDropped(topic, reason string) {
	eventsDropped.WithLabelValues(topic, reason).Inc()
}

func IncHandlerFailure(topic string) {
	handlerFailures.WithLabelValues(topic).Inc()
}

func ObserveHandlerDuration(topic string, seconds float64) {
	handlerDuration.WithLabelValues(topic).Observe(seconds)
}

func HandlerStarted() {
	handlersInFlight.Inc()
}

func HandlerFinished() {
	handlersInFlight.Dec()
}

func IncProcessed(kind string) {
	eventsProcessed.WithLabelValues(kind).Inc()
}

func IncNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}
