// Package metrics provides Prometheus metrics for the liftmap trajectory service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Trajectory
	samplesIngested  prometheus.Counter
	batchesDuplicate prometheus.Counter
	floorTransitions prometheus.Counter
	ingestLatency    prometheus.Histogram

	// Sessions
	sessionsActive   prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sessionsFinished prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

var global atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton used by package-level recorders

func init() { //nolint:gochecknoinits // metrics must exist before any recorder runs
	global.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "liftmap",
		subsystem:        "trajectory",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// SetDefault replaces the manager used by the package-level recorders.
func SetDefault(m *Manager) error {
	if m == nil {
		return ErrNilManager
	}
	global.Store(m)
	return nil
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.samplesIngested = m.counter("samples_ingested_total", "Accelerometer samples applied to session engines")
	m.batchesDuplicate = m.counter("batches_duplicate_total", "Sample batches dropped as retransmissions")
	m.floorTransitions = m.counter("floor_transitions_total", "Detected floor changes across all sessions")
	m.ingestLatency = m.histogram("ingest_latency_milliseconds", "Time to apply one batch to its engine", m.histogramBuckets)

	m.sessionsActive = m.gauge("sessions_active", "Sessions currently recording")
	m.sessionsStarted = m.counter("sessions_started_total", "Sessions started")
	m.sessionsFinished = m.counter("sessions_finished_total", "Sessions finished and persisted")

	m.queueSize = m.gauge("queue_size", "Batches waiting in ingestion queues")
	m.queueCapacity = m.gauge("queue_capacity", "Total capacity of ingestion queues")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Fill ratio of the most recently touched queue")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Batches enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Batches dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Ingestion workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Batch processing latency per worker", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Batches that failed in a worker")

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "store_latency_milliseconds",
		Help:    "Store operation latency",
		Buckets: m.histogramBuckets,
	}, []string{"op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "store_errors_total",
		Help: "Failed store operations",
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_component_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_by_endpoint_total",
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func get() *Manager { return global.Load() }

// RecordSamplesIngested adds n applied samples.
func RecordSamplesIngested(n int) { get().samplesIngested.Add(float64(n)) }

// RecordBatchDuplicate increments the duplicate batch counter.
func RecordBatchDuplicate() { get().batchesDuplicate.Inc() }

// RecordFloorTransitions adds n detected floor changes.
func RecordFloorTransitions(n int) { get().floorTransitions.Add(float64(n)) }

// RecordIngestLatency records the time spent applying a batch.
func RecordIngestLatency(latencyMs float64) { get().ingestLatency.Observe(latencyMs) }

// UpdateSessionsActive sets the number of recording sessions.
func UpdateSessionsActive(n int) { get().sessionsActive.Set(float64(n)) }

// RecordSessionStarted increments the started sessions counter.
func RecordSessionStarted() { get().sessionsStarted.Inc() }

// RecordSessionFinished increments the finished sessions counter.
func RecordSessionFinished() { get().sessionsFinished.Inc() }

// UpdateQueueSize sets the number of queued batches.
func UpdateQueueSize(size int) { get().queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the total queue capacity.
func UpdateQueueCapacity(capacity int) { get().queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(ratio float64) { get().queueUtilization.Set(ratio) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { get().queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { get().queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { get().queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) { get().queueProcessingLatency.Observe(latencyMs) }

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(n int) { get().workerCount.Set(float64(n)) }

// RecordWorkerProcessingLatency records batch processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) { get().workerProcessingLatency.Observe(latencyMs) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { get().workerErrors.Inc() }

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(op string, latencyMs float64) { get().storeLatency.WithLabelValues(op).Observe(latencyMs) }

// RecordStoreError increments the error counter of a store operation.
func RecordStoreError(op string) { get().storeErrors.WithLabelValues(op).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	get().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	get().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	get().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	get().errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { get().systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(n int) { get().systemGoroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { get().systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by the default manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
