package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the auth flow and scoped data access.
// Each instance owns its registry so several servers can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	LoginsStarted     prometheus.Counter
	LoginsCompleted   prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	CSRFRejections    prometheus.Counter
	ScopeViolations   prometheus.Counter
	InstallationSyncs *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New creates a new Metrics instance with all docfront metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfront_logins_started_total",
			Help: "Total number of OAuth logins initiated",
		}),
		LoginsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfront_logins_completed_total",
			Help: "Total number of OAuth callbacks that established a session",
		}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docfront_auth_failures_total",
			Help: "Total number of requests rejected by the auth layer, by error kind",
		}, []string{"kind"}),
		CSRFRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfront_csrf_rejections_total",
			Help: "Total number of mutating requests rejected for a missing or mismatched CSRF token",
		}),
		ScopeViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfront_scope_violations_total",
			Help: "Total number of storage results discarded for containing rows of another owner",
		}),
		InstallationSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docfront_installation_syncs_total",
			Help: "Total number of post-login installation syncs, by result",
		}, []string{"result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docfront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status code",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IncrementLoginStarted records a redirect to the identity provider.
func (m *Metrics) IncrementLoginStarted() {
	m.LoginsStarted.Inc()
}

// IncrementLoginCompleted records a successful callback.
func (m *Metrics) IncrementLoginCompleted() {
	m.LoginsCompleted.Inc()
}

// IncrementAuthFailure records a rejected request by error kind.
func (m *Metrics) IncrementAuthFailure(kind string) {
	m.AuthFailures.WithLabelValues(kind).Inc()
}

// IncrementCSRFRejection records a failed double-submit check.
func (m *Metrics) IncrementCSRFRejection() {
	m.CSRFRejections.Inc()
}

// IncrementScopeViolation records a backend result that leaked a foreign row.
func (m *Metrics) IncrementScopeViolation() {
	m.ScopeViolations.Inc()
}

// IncrementInstallationSync records the outcome of a post-login sync.
func (m *Metrics) IncrementInstallationSync(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.InstallationSyncs.WithLabelValues(result).Inc()
}

// ObserveRequest records the duration of an HTTP request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(route string, code int, start time.Time) {
	m.RequestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
}
