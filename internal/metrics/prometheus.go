package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// breaker state values exported on gateway_breaker_state
var breakerStateValues = map[string]float64{
	"CLOSED":    0,
	"HALF-OPEN": 1,
	"OPEN":      2,
}

// Recorder exports gateway events as Prometheus metrics on its own registry.
type Recorder struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	replicaUp   *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Proxied calls by dependency, outcome and status code",
		}, []string{"dependency", "outcome", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_proxy_duration_seconds",
			Help:    "Latency of proxied calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"dependency"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"dependency"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_breaker_transitions_total",
			Help: "Circuit breaker transitions by target state",
		}, []string{"dependency", "state"}),
		replicaUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_replica_up",
			Help: "Replica reachability as seen by the health prober",
		}, []string{"dependency", "replica"}),
	}

	r.registry.MustRegister(r.requests, r.duration, r.state, r.transitions, r.replicaUp)
	return r
}

// Observe applies one event. Observe on a nil recorder is a no-op.
func (r *Recorder) Observe(event MetricEvent) {
	if r == nil {
		return
	}

	switch event.Type {
	case EventResponseCompleted:
		r.requests.WithLabelValues(event.Dependency, event.Outcome, strconv.Itoa(event.StatusCode)).Inc()
		r.duration.WithLabelValues(event.Dependency).Observe(event.Duration.Seconds())

	case EventBreakerStateChange:
		r.state.WithLabelValues(event.Dependency).Set(breakerStateValues[event.State])
		r.transitions.WithLabelValues(event.Dependency, event.State).Inc()

	case EventHealthChanged:
		up := 0.0
		if event.Healthy {
			up = 1
		}
		r.replicaUp.WithLabelValues(event.Dependency, event.Replica).Set(up)
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
