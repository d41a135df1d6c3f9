package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// Proxy probe metrics
	ProxyProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_probes_total",
			Help: "Total number of proxy probes by result and discovered protocol",
		},
		[]string{"result", "protocol"},
	)
	ProxyProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxy_probe_duration_seconds",
			Help:    "Duration of proxy probes in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// Provisioning metrics
	LoginOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_outcomes_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)
	SessionReuseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_reuse_total",
			Help: "Stored session restore attempts by result",
		},
		[]string{"result"},
	)
	ProvisionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_runs_total",
			Help: "Total number of provisioning batches by result",
		},
		[]string{"result"},
	)
	LoginsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logins_in_flight",
			Help: "Current number of login attempts in progress",
		},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)

		prometheus.MustRegister(ProxyProbesTotal)
		prometheus.MustRegister(ProxyProbeDuration)

		prometheus.MustRegister(LoginOutcomesTotal)
		prometheus.MustRegister(SessionReuseTotal)
		prometheus.MustRegister(ProvisionRunsTotal)
		prometheus.MustRegister(LoginsInFlight)
	})
}
