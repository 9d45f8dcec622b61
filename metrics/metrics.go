// Package metrics exposes frame tree and notifier activity as Prometheus
// collectors.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/frametree/frame"
)

const namespace = "frametree"

var (
	registerOnce sync.Once

	framesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames",
			Help:      "Frames currently registered.",
		},
	)
	waitersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiters_pending",
			Help:      "Waiters blocked on a frame that is not registered yet.",
		},
	)
	frameEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_events_total",
			Help:      "Frame tree events by type.",
		},
		[]string{"type"},
	)
	waitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time between waiter registration and resolution.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	notifierEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_events_total",
			Help:      "Lifecycle events handled by the notifier.",
		},
		[]string{"type", "result"},
	)
	ingestConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "connections",
			Help:      "Open event feed connections.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total monitor HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Monitor HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RegisterMetrics registers all collectors with the default registry. It is
// safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesGauge, waitersGauge, frameEvents, waitDuration,
			notifierEvents, ingestConnections, httpRequests, httpDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// RecordNotifierEvent counts one lifecycle event and its outcome.
func RecordNotifierEvent(eventType, result string) {
	RegisterMetrics()
	notifierEvents.WithLabelValues(eventType, result).Inc()
}

// SetIngestConnections reports the number of open feed connections.
func SetIngestConnections(n int) {
	RegisterMetrics()
	ingestConnections.Set(float64(n))
}

// RecordHTTPRequest counts one monitor request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Observer feeds tree mutations into the collectors.
type Observer struct{}

var _ frame.Observer = Observer{}

// NewObserver registers the collectors and returns an Observer.
func NewObserver() Observer {
	RegisterMetrics()
	return Observer{}
}

func (Observer) FrameAdded(_ frame.Frame, total int) {
	framesGauge.Set(float64(total))
	frameEvents.WithLabelValues(frame.EventAdded.String()).Inc()
}

func (Observer) FrameRemoved(_ frame.Frame, total int) {
	framesGauge.Set(float64(total))
	frameEvents.WithLabelValues(frame.EventRemoved.String()).Inc()
}

func (Observer) WaiterRegistered(_ string, pending int) {
	waitersGauge.Set(float64(pending))
	frameEvents.WithLabelValues("waiter_registered").Inc()
}

func (Observer) WaiterResolved(_ string, waited time.Duration, pending int) {
	waitersGauge.Set(float64(pending))
	waitDuration.Observe(waited.Seconds())
	frameEvents.WithLabelValues(frame.EventWaiterResolved.String()).Inc()
}

func (Observer) WaiterCancelled(_ string, pending int) {
	waitersGauge.Set(float64(pending))
	frameEvents.WithLabelValues("waiter_cancelled").Inc()
}
