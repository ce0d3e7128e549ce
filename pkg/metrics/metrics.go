// Package metrics provides Prometheus instrumentation for the shell.
//
// It pre-defines the bridge HTTP metrics plus counters for the things a
// point-of-sale terminal cares about: print jobs, commands, migrations and
// backups.
//
// Wire it up once in the bridge router:
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", "metrics", metrics.Handler())
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simplepos"

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ─────────────────────────────────────────────
// Bridge HTTP metrics
// ─────────────────────────────────────────────

var (
	// RequestDuration tracks how long each bridge request takes,
	// broken down by method, route pattern, and status code.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Duration of bridge requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts all bridge requests.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Total number of bridge requests.",
		},
		[]string{"method", "path", "status"},
	)

	// RequestInFlight tracks how many requests are currently being served.
	RequestInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "requests_in_flight",
		Help:      "Number of bridge requests currently being served.",
	})

	// EventClients is the number of connected event subscribers by
	// transport (websocket, sse).
	EventClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "event_clients",
		Help:      "Connected event stream clients.",
	}, []string{"transport"})
)

// ─────────────────────────────────────────────
// Domain metrics
// ─────────────────────────────────────────────

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command invocations by command and result.",
		},
		[]string{"command", "result"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command invocations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	PrintJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_jobs_total",
			Help:      "Raw print jobs by result.",
		},
		[]string{"result"},
	)

	PrintDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "print_duration_seconds",
		Help:      "Connect, write and flush time of raw print jobs.",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	PrintBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "print_bytes_total",
		Help:      "Bytes handed to printer sockets.",
	})

	MigrationsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "Schema migrations applied, by database.",
		},
		[]string{"database"},
	)

	// SQLDuration tracks queries issued by the sql plugin.
	SQLDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "query_duration_seconds",
			Help:      "Duration of sql plugin queries in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .5, 1},
		},
		[]string{"operation"}, // "execute" | "select"
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Database backups by result.",
		},
		[]string{"result"},
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry served on /metrics.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	// Go runtime metrics (GC, goroutines, memory)
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	// OS process metrics (CPU, open FDs)
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		RequestDuration,
		RequestTotal,
		RequestInFlight,
		EventClients,
		CommandsTotal,
		CommandDuration,
		PrintJobs,
		PrintDuration,
		PrintBytes,
		MigrationsApplied,
		SQLDuration,
		BackupsTotal,
	)
}

// Register adds a collector to the shell registry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// ─────────────────────────────────────────────
// HTTP middleware
// ─────────────────────────────────────────────

// responseRecorder wraps http.ResponseWriter to capture the status code.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through to the underlying writer; the websocket upgrade on
// /events needs it.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records duration, total and in-flight metrics for every
// request. Paths are labelled by chi route pattern so /invoke/{command}
// stays a single series.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			RequestInFlight.Inc()
			defer RequestInFlight.Dec()

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := strconv.Itoa(rr.status)

			RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// Handler exposes the registry in the Prometheus text and OpenMetrics
// formats. Mount it on GET /metrics.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Helpers for app code
// ─────────────────────────────────────────────

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveCommand records one command invocation:
//
//	defer func(start time.Time) { metrics.ObserveCommand(name, err, start) }(time.Now())
func ObserveCommand(command string, err error, start time.Time) {
	CommandsTotal.WithLabelValues(command, Result(err)).Inc()
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// RecordPrintJob records one raw print job.
func RecordPrintJob(err error, bytes int, start time.Time) {
	PrintJobs.WithLabelValues(Result(err)).Inc()
	PrintDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		PrintBytes.Add(float64(bytes))
	}
}

// ObserveSQL records a sql plugin query duration:
//
//	defer metrics.ObserveSQL("select", time.Now())
func ObserveSQL(operation string, start time.Time) {
	SQLDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
