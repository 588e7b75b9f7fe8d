package prometheus

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AstarWorks/AstarManagement-sub017/pkg/config"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "practice_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "practice_register_total",
			Help: "Total number of user registrations",
		},
	)

	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // "setup", "switch", "set_default", "add_user", "remove_user", etc.
	)

	// Authorization decision counter
	AuthzDecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_authz_decisions_total",
			Help: "Total number of permission evaluator decisions",
		},
		[]string{"resource", "action", "outcome"}, // outcome is "allowed" or "denied"
	)

	// Cross-tenant violation counter. This should stay at zero; any
	// increment indicates a bug or an attack and pages on-call.
	CrossTenantViolationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_cross_tenant_violations_total",
			Help: "Total number of writes rejected for targeting a foreign tenant",
		},
		[]string{"table"},
	)

	// Audit write failure counter
	AuditWriteFailureCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "practice_audit_write_failures_total",
			Help: "Total number of audit entries that could not be persisted",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "login_failure", "invalid_token", "setup_required", "db_error", etc.
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "practice_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "practice_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active tokens
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "practice_active_tokens",
			Help: "Number of JWT tokens issued and not yet expired",
		},
	)
)

// InitMetrics registers all metrics with the Prometheus registry
func InitMetrics(cfg *config.Config) {
	prometheus.MustRegister(
		LoginCounter,
		RegisterCounter,
		TenantOperationCounter,
		AuthzDecisionCounter,
		CrossTenantViolationCounter,
		AuditWriteFailureCounter,
		HTTPRequestCounter,
		AuthErrorCounter,
		RequestDuration,
		DBOperationDuration,
		ActiveTokensGauge,
	)
}

// MetricsHandler returns the Prometheus metrics endpoint handler
func MetricsHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// MetricsMiddleware adds prometheus metrics to track HTTP requests
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			HTTPRequestCounter.WithLabelValues(path, method, status).Inc()
			RequestDuration.WithLabelValues(path, method, status).Observe(duration)

			return err
		}
	}
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

// RecordTenantOperation increments the tenant operation counter
func RecordTenantOperation(operation string) {
	TenantOperationCounter.WithLabelValues(operation).Inc()
}

// RecordAuthzDecision increments the authorization decision counter
func RecordAuthzDecision(resource, action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	AuthzDecisionCounter.WithLabelValues(resource, action, outcome).Inc()
}

// RecordCrossTenantViolation increments the violation counter for a table
func RecordCrossTenantViolation(table string) {
	CrossTenantViolationCounter.WithLabelValues(table).Inc()
}

// TrackDBOperation returns a function that records the duration of a
// database operation when called
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// IncreaseActiveTokens increments the active tokens gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}
