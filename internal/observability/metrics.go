package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	sessionsByStatus     *prometheus.GaugeVec
	sessionsCreatedTotal prometheus.Counter
	sessionsEvictedTotal prometheus.Counter

	eventsPublishedTotal *prometheus.CounterVec
	eventsDroppedTotal   prometheus.Counter
	subscribersActive    prometheus.Gauge

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	toolCallsOpen       prometheus.Gauge
	orphansSweptTotal   prometheus.Counter
	toolCallsEndedTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			sessionsByStatus: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "conduit_sessions",
					Help: "Current session count by status.",
				},
				[]string{"status"},
			),
			sessionsCreatedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conduit_sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			sessionsEvictedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conduit_sessions_evicted_total",
					Help: "Total terminal sessions evicted to honor the capacity bound.",
				},
			),
			eventsPublishedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conduit_events_published_total",
					Help: "Total events published to the bus by event type.",
				},
				[]string{"type"},
			),
			eventsDroppedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conduit_events_dropped_total",
					Help: "Total events dropped because a subscriber buffer overflowed.",
				},
			),
			subscribersActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conduit_subscribers_active",
					Help: "Current live event subscriptions across all sessions.",
				},
			),
			runsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conduit_runs_total",
					Help: "Total agent runs by terminal status.",
				},
				[]string{"status"},
			),
			runDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "conduit_run_duration_seconds",
					Help:    "Agent run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolCallsOpen: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conduit_tool_calls_open",
					Help: "Tool calls currently awaiting an end notification.",
				},
			),
			orphansSweptTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conduit_tool_call_orphans_swept_total",
					Help: "Total orphaned tool calls reclaimed by the sweep.",
				},
			),
			toolCallsEndedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conduit_tool_calls_ended_total",
					Help: "Total resolved tool calls by outcome.",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.sessionsByStatus,
			m.sessionsCreatedTotal,
			m.sessionsEvictedTotal,
			m.eventsPublishedTotal,
			m.eventsDroppedTotal,
			m.subscribersActive,
			m.runsTotal,
			m.runDuration,
			m.toolCallsOpen,
			m.orphansSweptTotal,
			m.toolCallsEndedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetSessions(status string, count int) {
	getMetrics().sessionsByStatus.WithLabelValues(status).Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreatedTotal.Inc()
}

func RecordSessionEvicted() {
	getMetrics().sessionsEvictedTotal.Inc()
}

func RecordEventPublished(eventType string) {
	getMetrics().eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func RecordEventDropped() {
	getMetrics().eventsDroppedTotal.Inc()
}

func AddSubscribers(delta int) {
	getMetrics().subscribersActive.Add(float64(delta))
}

func RecordRun(status string, duration time.Duration) {
	m := getMetrics()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func SetOpenToolCalls(count int) {
	getMetrics().toolCallsOpen.Set(float64(count))
}

func RecordOrphansSwept(count int) {
	if count > 0 {
		getMetrics().orphansSweptTotal.Add(float64(count))
	}
}

func RecordToolCallEnded(isError bool) {
	outcome := "success"
	if isError {
		outcome = "error"
	}
	getMetrics().toolCallsEndedTotal.WithLabelValues(outcome).Inc()
}
