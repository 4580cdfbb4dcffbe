package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	LoginStartedTotal   prometheus.Counter
	LoginCompletedTotal *prometheus.CounterVec
	LogoutTotal         prometheus.Counter

	// Token lifecycle metrics
	TokenExchangesTotal   *prometheus.CounterVec
	TokenRefreshesTotal   *prometheus.CounterVec
	TokenRevocationsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive         prometheus.Gauge
	SessionsCreatedTotal   prometheus.Counter
	SessionsDestroyedTotal *prometheus.CounterVec

	// Permission metrics
	PermissionLookupsTotal *prometheus.CounterVec

	// Guard metrics
	OrgScopeRejectionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authd_login_started_total",
				Help: "Total number of login flows started",
			},
		),
		LoginCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_login_completed_total",
				Help: "Total number of login callbacks by outcome",
			},
			[]string{"outcome"},
		),
		LogoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authd_logout_total",
				Help: "Total number of logouts",
			},
		),

		TokenExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_token_exchanges_total",
				Help: "Total number of authorization code exchanges",
			},
			[]string{"status"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_token_refreshes_total",
				Help: "Total number of refresh grant attempts",
			},
			[]string{"status"},
		),
		TokenRevocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_token_revocations_total",
				Help: "Total number of refresh token revocation attempts",
			},
			[]string{"status"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "authd_sessions_active",
				Help: "Number of currently live sessions",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authd_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsDestroyedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_sessions_destroyed_total",
				Help: "Total number of sessions destroyed by reason",
			},
			[]string{"reason"},
		),

		PermissionLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_permission_lookups_total",
				Help: "Total number of permission backend lookups",
			},
			[]string{"status"},
		),

		OrgScopeRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_org_scope_rejections_total",
				Help: "Total number of requests rejected by the org scope guard",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginStartedTotal,
		m.LoginCompletedTotal,
		m.LogoutTotal,
		m.TokenExchangesTotal,
		m.TokenRefreshesTotal,
		m.TokenRevocationsTotal,
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsDestroyedTotal,
		m.PermissionLookupsTotal,
		m.OrgScopeRejectionsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The path label uses the route template, not the raw URL, so tenant and
// session identifiers never become label values.
func HTTPMetricsMiddleware(metrics *Metrics, routePath func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if routePath != nil {
				if p := routePath(r); p != "" {
					path = p
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
