package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Domain metrics
	OrgsProvisionedTotal      prometheus.Counter
	OrgsCreatedTotal          prometheus.Counter
	InvitationsCreatedTotal   prometheus.Counter
	InvitationsAcceptedTotal  prometheus.Counter
	InvitationsExpiredTotal   prometheus.Counter
	MembershipChangesTotal    *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenancy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OrgsProvisionedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenancy_orgs_provisioned_total",
			Help: "Default organizations auto-created for first-login users",
		}),
		OrgsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenancy_orgs_created_total",
			Help: "Organizations created explicitly",
		}),
		InvitationsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenancy_invitations_created_total",
			Help: "Invitations created",
		}),
		InvitationsAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenancy_invitations_accepted_total",
			Help: "Invitations accepted",
		}),
		InvitationsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenancy_invitations_expired_total",
			Help: "Invitations cancelled or expired",
		}),
		MembershipChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenancy_membership_changes_total",
				Help: "Membership mutations by kind",
			},
			[]string{"kind"}, // added, role_changed, removed
		),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenancy_db_connections_active",
			Help: "Active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenancy_db_connections_idle",
			Help: "Idle database connections",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrgsProvisionedTotal,
		m.OrgsCreatedTotal,
		m.InvitationsCreatedTotal,
		m.InvitationsAcceptedTotal,
		m.InvitationsExpiredTotal,
		m.MembershipChangesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDBStats copies sql.DBStats into the database gauges.
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// HTTPMiddleware records request count and duration per route.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the mux route template for the request, keeping
// metric label cardinality bounded. Falls back to the raw path for
// unmatched requests.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
