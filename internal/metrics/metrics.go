package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PowerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opencraft_power_operations_total",
			Help: "Total power operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	PowerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opencraft_power_operation_duration_seconds",
			Help:    "Time to complete a power operation, including provider polling",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"action"},
	)

	InconsistentStatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opencraft_inconsistent_states_total",
			Help: "Times the server was observed down while the VM reported Running",
		},
	)

	ServerOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "opencraft_server_online",
			Help: "1 if the last status check saw the game server online",
		},
	)

	ServerPlayers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "opencraft_server_players",
			Help: "Players online at the last status check",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opencraft_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opencraft_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		PowerOperationsTotal,
		PowerOperationDuration,
		InconsistentStatesTotal,
		ServerOnline,
		ServerPlayers,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePower records the outcome of a power operation.
func ObservePower(action, outcome string, elapsed time.Duration) {
	PowerOperationsTotal.WithLabelValues(action, outcome).Inc()
	PowerOperationDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(duration.Seconds())
			return err
		}
	}
}
