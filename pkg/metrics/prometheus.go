// Package metrics provides Prometheus metrics for the RSVP service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Roster and submission
	rsvpsCreated       prometheus.Counter
	rsvpCreateErrors   prometheus.Counter
	submissions        *prometheus.CounterVec
	submissionLatency  prometheus.Histogram
	snapshotsDelivered prometheus.Counter
	snapshotsDropped   prometheus.Counter
	subscriptionErrors prometheus.Counter
	activeSubscribers  prometheus.Gauge

	// Identity
	signIns *prometheus.CounterVec

	// Fan-out queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	fanoutLatency      prometheus.Histogram
	workerCount        prometheus.Gauge

	// Pages
	openPages prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rsvp",
		subsystem:        "page",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rsvpsCreated = auto.NewCounter(m.counter("rsvps_created_total", "RSVP records appended to the shared collection"))
	m.rsvpCreateErrors = auto.NewCounter(m.counter("rsvp_create_errors_total", "Rejected RSVP create operations"))
	m.submissions = auto.NewCounterVec(m.counter("submissions_total", "Submission attempts by outcome"), []string{"outcome"})
	m.submissionLatency = auto.NewHistogram(m.histogram("submission_latency_milliseconds", "Time spent in the submitting state"))
	m.snapshotsDelivered = auto.NewCounter(m.counter("snapshots_delivered_total", "Roster snapshots handed to subscribers"))
	m.snapshotsDropped = auto.NewCounter(m.counter("snapshots_dropped_total", "Snapshots skipped because a newer one was already delivered"))
	m.subscriptionErrors = auto.NewCounter(m.counter("subscription_errors_total", "Subscriptions terminated by an error"))
	m.activeSubscribers = auto.NewGauge(m.gauge("active_subscribers", "Standing roster subscriptions"))

	m.signIns = auto.NewCounterVec(m.counter("sign_ins_total", "Sign-in attempts by provider and outcome"), []string{"provider", "outcome"})

	m.queueSize = auto.NewGauge(m.gauge("fanout_queue_size", "Pending change notifications"))
	m.queueCapacity = auto.NewGauge(m.gauge("fanout_queue_capacity", "Capacity of the change notification queue"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counter("fanout_enqueue_errors_total", "Change notifications that could not be queued"), []string{"reason"})
	m.fanoutLatency = auto.NewHistogram(m.histogram("fanout_latency_milliseconds", "Time to load and deliver one change notification"))
	m.workerCount = auto.NewGauge(m.gauge("fanout_workers", "Fan-out workers running"))

	m.openPages = auto.NewGauge(m.gauge("open_pages", "Visitor pages currently held open"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_total", "Errors by component and type"), []string{"component", "type"})

	m.memoryUsage = auto.NewGauge(m.gauge("system_memory_bytes", "Heap bytes allocated"))
	m.goroutineCount = auto.NewGauge(m.gauge("system_goroutines", "Goroutines running"))
	m.gcPauseTime = auto.NewGauge(m.gauge("system_gc_pause_milliseconds", "Average GC pause"))
}

// RecordRSVPCreated increments the created records counter.
func RecordRSVPCreated() { globalManager.rsvpsCreated.Inc() }

// RecordRSVPCreateError increments the failed create counter.
func RecordRSVPCreateError() { globalManager.rsvpCreateErrors.Inc() }

// RecordSubmission records a submission attempt outcome.
func RecordSubmission(outcome string) { globalManager.submissions.WithLabelValues(outcome).Inc() }

// RecordSubmissionLatency records time spent submitting in milliseconds.
func RecordSubmissionLatency(ms float64) { globalManager.submissionLatency.Observe(ms) }

// RecordSnapshotDelivered counts a snapshot handed to a subscriber.
func RecordSnapshotDelivered() { globalManager.snapshotsDelivered.Inc() }

// RecordSnapshotDropped counts a stale snapshot that was skipped.
func RecordSnapshotDropped() { globalManager.snapshotsDropped.Inc() }

// RecordSubscriptionError counts a subscription terminated by an error.
func RecordSubscriptionError() { globalManager.subscriptionErrors.Inc() }

// UpdateActiveSubscribers sets the standing subscription gauge.
func UpdateActiveSubscribers(n int) { globalManager.activeSubscribers.Set(float64(n)) }

// RecordSignIn records a sign-in attempt.
func RecordSignIn(provider, outcome string) {
	globalManager.signIns.WithLabelValues(provider, outcome).Inc()
}

// UpdateQueueSize sets the current fan-out backlog.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the fan-out queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordFanoutLatency records how long one change took to fan out.
func RecordFanoutLatency(ms float64) { globalManager.fanoutLatency.Observe(ms) }

// UpdateWorkerCount sets the number of fan-out workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// UpdateOpenPages sets the open page gauge.
func UpdateOpenPages(n int) { globalManager.openPages.Set(float64(n)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.memoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) { globalManager.goroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime sets the average GC pause gauge.
func RecordSystemGCPauseTime(ms float64) { globalManager.gcPauseTime.Set(ms) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
