// Package metrics collects gateway metrics from a channel-based event
// pipeline:
//   - Proxied calls per dependency
//   - Call outcomes (dependency response, unavailable, fault)
//   - Response times with percentile calculations (P50, P95, P99)
//   - Status code distribution
//   - Circuit breaker state and replica reachability
//
// The collector runs in a dedicated goroutine. Emit never blocks the request
// path; events are dropped when the buffer is full. Every event is applied to
// the in-memory Metrics served as JSON and, when configured, to a Prometheus
// Recorder.
//
// Example usage:
//
//	recorder := metrics.NewRecorder()
//	collector := metrics.NewCollector(1000, recorder, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Dependency: "users",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//		Outcome:    metrics.OutcomeDependency,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
