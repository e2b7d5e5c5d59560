// Package metrics provides Prometheus metrics for the form analytics service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingest Metrics - what the trackers send us
	eventsIngested    *prometheus.CounterVec
	eventsUnknownType prometheus.Counter
	eventsDuplicate   prometheus.Counter
	eventsRejected    *prometheus.CounterVec
	ingestRateLimited prometheus.Counter

	// Store Metrics - bounded event history
	storeSize           prometheus.Gauge
	storeCapacity       prometheus.Gauge
	storeEvictions      prometheus.Counter
	storeAppendLatency  prometheus.Histogram
	storeClearedBatches prometheus.Counter

	// Aggregation Metrics - read side cost and results
	aggregationLatency *prometheus.HistogramVec
	problemFields      *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - ingest buffer between transports and store
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - queue drain
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Archive Metrics - durable copy of accepted events
	archiveWrites   prometheus.Counter
	archiveErrors   prometheus.Counter
	archiveReplayed prometheus.Counter

	// Transport Metrics
	natsMessages *prometheus.CounterVec

	// Error Metrics
	errorsByComponent *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "formwizard",
		subsystem:        "analytics",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250}

	// Ingest
	m.eventsIngested = auto.NewCounterVec(
		m.counterOpts("events_ingested_total", "Events accepted into the store, by event type"),
		[]string{"event_type"},
	)
	m.eventsUnknownType = auto.NewCounter(
		m.counterOpts("events_unknown_type_total", "Accepted events whose type is not aggregated"),
	)
	m.eventsDuplicate = auto.NewCounter(
		m.counterOpts("events_duplicate_total", "Events dropped because their eventId was already seen"),
	)
	m.eventsRejected = auto.NewCounterVec(
		m.counterOpts("events_rejected_total", "Events refused at the edge, by reason"),
		[]string{"reason"},
	)
	m.ingestRateLimited = auto.NewCounter(
		m.counterOpts("ingest_rate_limited_total", "Ingest requests refused by the rate limiter"),
	)

	// Store
	m.storeSize = auto.NewGauge(m.gaugeOpts("store_events", "Events currently held in the store"))
	m.storeCapacity = auto.NewGauge(m.gaugeOpts("store_capacity", "Maximum events the store retains"))
	m.storeEvictions = auto.NewCounter(
		m.counterOpts("store_evictions_total", "Oldest events dropped to stay within capacity"),
	)
	m.storeAppendLatency = auto.NewHistogram(
		m.histogramOpts("store_append_latency_milliseconds", "Time to append one event", latencyBuckets),
	)
	m.storeClearedBatches = auto.NewCounter(
		m.counterOpts("store_clears_total", "Number of times the store was cleared"),
	)

	// Aggregation
	m.aggregationLatency = auto.NewHistogramVec(
		m.histogramOpts("aggregation_latency_milliseconds", "Time to compute an analytics view", latencyBuckets),
		[]string{"operation"},
	)
	m.problemFields = auto.NewCounterVec(
		m.counterOpts("problem_fields_total", "Fields reported as problematic, by issue"),
		[]string{"issue"},
	)

	// HTTP
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_seconds", "HTTP request duration in seconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)

	// Queue
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Events waiting in the ingest queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Ingest queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue fill ratio (0-1)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(
		m.counterOpts("queue_enqueue_errors_total", "Enqueue attempts refused (full or closed)"),
	)

	// Worker
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active", "Workers currently handling an event"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spends on one event", latencyBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker processing failures"))

	// Archive
	m.archiveWrites = auto.NewCounter(m.counterOpts("archive_writes_total", "Events written to the archive"))
	m.archiveErrors = auto.NewCounter(m.counterOpts("archive_errors_total", "Archive write or read failures"))
	m.archiveReplayed = auto.NewCounter(
		m.counterOpts("archive_replayed_total", "Events restored from the archive at startup"),
	)

	// Transport
	m.natsMessages = auto.NewCounterVec(
		m.counterOpts("nats_messages_total", "Messages received from NATS, by outcome"),
		[]string{"result"},
	)

	// Errors
	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	// System
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Live goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50}),
	)
}

// Ingest Metrics

// RecordEventIngested counts an accepted event by type.
func RecordEventIngested(eventType string) {
	globalManager.eventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventUnknownType counts an accepted event that aggregation ignores.
func RecordEventUnknownType() {
	globalManager.eventsUnknownType.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventRejected counts an event refused before reaching the queue.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordIngestRateLimited counts a request refused by the limiter.
func RecordIngestRateLimited() {
	globalManager.ingestRateLimited.Inc()
}

// Store Metrics

// UpdateStoreSize sets the number of events held.
func UpdateStoreSize(size int) {
	globalManager.storeSize.Set(float64(size))
}

// UpdateStoreCapacity sets the configured retention bound.
func UpdateStoreCapacity(capacity int) {
	globalManager.storeCapacity.Set(float64(capacity))
}

// RecordStoreEvictions adds n evicted events.
func RecordStoreEvictions(n int) {
	globalManager.storeEvictions.Add(float64(n))
}

// RecordStoreAppendLatency records append latency in milliseconds.
func RecordStoreAppendLatency(latencyMs float64) {
	globalManager.storeAppendLatency.Observe(latencyMs)
}

// RecordStoreCleared counts a clear of the store.
func RecordStoreCleared() {
	globalManager.storeClearedBatches.Inc()
}

// Aggregation Metrics

// RecordAggregationLatency records how long an analytics view took to compute.
func RecordAggregationLatency(operation string, latencyMs float64) {
	globalManager.aggregationLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordProblemField counts a reported field for one of its issues.
func RecordProblemField(issue string) {
	globalManager.problemFields.WithLabelValues(issue).Inc()
}

// HTTP Metrics

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics

// UpdateQueueSize updates the queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity updates the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization updates the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics

// UpdateWorkerCount updates the worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount updates the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Archive Metrics

// RecordArchiveWrite counts an archived event.
func RecordArchiveWrite() {
	globalManager.archiveWrites.Inc()
}

// RecordArchiveError counts an archive failure.
func RecordArchiveError() {
	globalManager.archiveErrors.Inc()
}

// RecordArchiveReplayed adds n events restored at startup.
func RecordArchiveReplayed(n int) {
	globalManager.archiveReplayed.Add(float64(n))
}

// Transport Metrics

// RecordNATSMessage counts a NATS message with its outcome (accepted, duplicate, invalid, rejected).
func RecordNATSMessage(result string) {
	globalManager.natsMessages.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Metrics

// UpdateSystemMemoryUsage sets the allocated heap size in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of live goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
