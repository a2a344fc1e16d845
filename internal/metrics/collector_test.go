package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angeloszaimis/api-gateway/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		recorder  *metrics.Recorder
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		recorder = metrics.NewRecorder()
		collector = metrics.NewCollector(100, recorder, log)
	})

	AfterEach(func() {
		cancel()
	})

	It("should count forwarded requests per dependency", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "users"})
		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "users"})
		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "orders"})

		Eventually(func() int64 {
			return collector.Snapshot().TotalRequests
		}).Should(Equal(int64(3)))
		Expect(collector.Snapshot().Dependencies["users"].Requests).To(Equal(int64(2)))
	})

	It("should record outcomes and status codes of completed calls", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Dependency: "orders",
			Duration:   20 * time.Millisecond,
			StatusCode: 503,
			Outcome:    metrics.OutcomeUnavailable,
		})

		Eventually(func() int64 {
			return collector.Snapshot().Dependencies["orders"].Outcomes[metrics.OutcomeUnavailable]
		}).Should(Equal(int64(1)))
		Expect(collector.Snapshot().Dependencies["orders"].StatusCodes[503]).To(Equal(int64(1)))
	})

	It("should track breaker state and replica reachability", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{Type: metrics.EventBreakerStateChange, Dependency: "users", State: "OPEN"})
		collector.Emit(metrics.MetricEvent{Type: metrics.EventHealthChanged, Dependency: "users", Replica: "http://a", Healthy: false})

		Eventually(func() string {
			return collector.Snapshot().Dependencies["users"].BreakerState
		}).Should(Equal("OPEN"))
		Eventually(func() map[string]bool {
			return collector.Snapshot().Dependencies["users"].Replicas
		}).Should(HaveKeyWithValue("http://a", false))
	})

	It("should drain queued events on shutdown", func() {
		for i := 0; i < 5; i++ {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "users"})
		}
		cancel()
		collector.Start(ctx)

		Eventually(func() int64 {
			return collector.Snapshot().TotalRequests
		}).Should(Equal(int64(5)))
	})

	It("should drop events instead of blocking when the buffer is full", func() {
		small := metrics.NewCollector(1, nil, log)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10; i++ {
				small.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "users"})
			}
		}()

		Eventually(done).Should(BeClosed())
	})

	It("should ignore Emit on a nil collector", func() {
		var c *metrics.Collector
		Expect(func() {
			c.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded})
		}).NotTo(Panic())
	})

	It("should serve the snapshot as JSON", func() {
		collector.Start(ctx)
		collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestForwarded, Dependency: "users"})
		Eventually(func() int64 {
			return collector.Snapshot().TotalRequests
		}).Should(Equal(int64(1)))

		rec := httptest.NewRecorder()
		collector.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

		Expect(rec.Code).To(Equal(200))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(rec.Body.String()).To(ContainSubstring(`"total_requests":1`))
	})
})

var _ = Describe("Recorder", func() {
	var recorder *metrics.Recorder

	BeforeEach(func() {
		recorder = metrics.NewRecorder()
	})

	It("should export proxied calls and latency", func() {
		recorder.Observe(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Dependency: "users",
			Duration:   10 * time.Millisecond,
			StatusCode: 200,
			Outcome:    metrics.OutcomeDependency,
		})

		expected := `
# HELP gateway_proxy_requests_total Proxied calls by dependency, outcome and status code
# TYPE gateway_proxy_requests_total counter
gateway_proxy_requests_total{code="200",dependency="users",outcome="dependency"} 1
`
		Expect(testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected),
			"gateway_proxy_requests_total")).To(Succeed())
		count, err := testutil.GatherAndCount(recorder.Registry(), "gateway_proxy_duration_seconds")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("should export breaker state as a gauge", func() {
		recorder.Observe(metrics.MetricEvent{Type: metrics.EventBreakerStateChange, Dependency: "orders", State: "OPEN"})

		expected := `
# HELP gateway_breaker_state Circuit breaker state (0 closed, 1 half-open, 2 open)
# TYPE gateway_breaker_state gauge
gateway_breaker_state{dependency="orders"} 2
`
		Expect(testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected),
			"gateway_breaker_state")).To(Succeed())
	})

	It("should serve the exposition format", func() {
		recorder.Observe(metrics.MetricEvent{Type: metrics.EventHealthChanged, Dependency: "users", Replica: "http://a", Healthy: true})

		rec := httptest.NewRecorder()
		recorder.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/prometheus", nil))

		Expect(rec.Code).To(Equal(200))
		Expect(rec.Body.String()).To(ContainSubstring(`gateway_replica_up{dependency="users",replica="http://a"} 1`))
	})

	It("should ignore Observe on a nil recorder", func() {
		var r *metrics.Recorder
		Expect(func() {
			r.Observe(metrics.MetricEvent{Type: metrics.EventResponseCompleted})
		}).NotTo(Panic())
	})
})
