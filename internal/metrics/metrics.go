package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/fmp-data/internal/model"
)

const namespace = "fmp"

// Metrics holds the ingester's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Provider
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitWait   prometheus.Histogram

	// Storage
	commitDuration *prometheus.HistogramVec
	commitErrors   *prometheus.CounterVec

	// Jobs
	jobs         *prometheus.CounterVec
	rows         *prometheus.CounterVec
	failedPages  *prometheus.CounterVec
	runningJobs  prometheus.Gauge
	lastFinished *prometheus.GaugeVec
}

// New creates Metrics with Go and process collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "FMP requests by endpoint and status class (2xx, 4xx, 5xx, error).",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "FMP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_rate_limit_wait_seconds",
			Help:      "Backoff waited after a 429 response.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 60},
		}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Batch commit latency by entity.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity"}),
		commitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_errors_total",
			Help:      "Failed batch commits by entity.",
		}, []string{"entity"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_jobs_total",
			Help:      "Finished import jobs by entity and status.",
		}, []string{"entity", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Rows handled by finished import jobs, by outcome.",
		}, []string{"entity", "outcome"}),
		failedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failed_pages_total",
			Help:      "Pages that failed to fetch, decode or commit.",
		}, []string{"entity"}),
		runningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_jobs_running",
			Help:      "Import jobs currently running.",
		}),
		lastFinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_last_finished_timestamp_seconds",
			Help:      "Unix time of the last finished job by entity.",
		}, []string{"entity"}),
	}

	registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.rateLimitWait,
		m.commitDuration,
		m.commitErrors,
		m.jobs,
		m.rows,
		m.failedPages,
		m.runningJobs,
		m.lastFinished,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest implements api.Observer.
func (m *Metrics) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(endpoint, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveRateLimit implements api.Observer.
func (m *Metrics) ObserveRateLimit(wait time.Duration) {
	m.rateLimitWait.Observe(wait.Seconds())
}

// ObserveCommit implements writer.CommitObserver.
func (m *Metrics) ObserveCommit(entity string, elapsed time.Duration, err error) {
	m.commitDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
	if err != nil {
		m.commitErrors.WithLabelValues(entity).Inc()
	}
}

// Publish implements importer.Sink. Counts are taken from terminal
// events so each job is counted once.
func (m *Metrics) Publish(ev model.JobEvent) {
	job := ev.Job
	if ev.From == job.Status {
		return
	}

	if job.Status == model.StatusRunning {
		m.runningJobs.Inc()
	}
	if ev.From == model.StatusRunning {
		m.runningJobs.Dec()
	}
	if !job.Status.Terminal() {
		return
	}

	m.jobs.WithLabelValues(job.Entity, string(job.Status)).Inc()
	m.rows.WithLabelValues(job.Entity, "fetched").Add(float64(job.Fetched))
	m.rows.WithLabelValues(job.Entity, "written").Add(float64(job.Written))
	m.rows.WithLabelValues(job.Entity, "skipped").Add(float64(job.Skipped))
	m.rows.WithLabelValues(job.Entity, "rejected").Add(float64(job.Rejected))
	m.failedPages.WithLabelValues(job.Entity).Add(float64(job.FailedPages))
	m.lastFinished.WithLabelValues(job.Entity).Set(float64(ev.At.Unix()))
}
