// Package circuitbreaker implements the circuit breaker pattern for calls to
// independently failing dependencies.
//
// A Breaker wraps one kind of call and has three states:
//
//   - CLOSED: calls pass through, outcomes are counted in a rolling window
//   - OPEN: calls are rejected and served from the fallback
//   - HALF-OPEN: exactly one probe call is let through to test recovery
//
// The breaker trips from CLOSED to OPEN once the window holds at least
// VolumeThreshold outcomes and the failure percentage reaches ErrorThreshold.
// OPEN becomes HALF-OPEN once ResetTimeout has elapsed, checked lazily on the
// next call. The probe's outcome closes or re-opens the breaker.
//
// Every call runs under Timeout. A call that misses its deadline counts as a
// failure and its late result is discarded.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(func(name string) circuitbreaker.Settings[Response] {
//	    return circuitbreaker.Settings[Response]{Name: name, ErrorThreshold: 50, Window: 10}
//	})
//	cb := registry.GetBreaker("users")
//	resp, err := cb.Execute(ctx, func(ctx context.Context) (Response, error) {
//	    return call(ctx)
//	})
//	if err != nil {
//	    // resp is the fallback value
//	}
package circuitbreaker
