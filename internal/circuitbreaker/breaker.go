package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Testing with one probe
)

var (
	// ErrOpenState is returned when the breaker rejects a call because it is open.
	ErrOpenState = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when a half-open breaker already has its probe in flight.
	ErrTooManyRequests = errors.New("circuit breaker probe already in flight")
	// ErrTimeout is returned when the wrapped call misses its deadline.
	ErrTimeout = errors.New("circuit breaker call timed out")
	// ErrPanic wraps a panic recovered from the wrapped call.
	ErrPanic = errors.New("circuit breaker call panicked")
)

const (
	defaultWindow         = 10
	defaultErrorThreshold = 50
	defaultResetTimeout   = 30 * time.Second
)

// Settings configures a Breaker. Zero values fall back to sane defaults.
type Settings[T any] struct {
	Name string

	// Timeout bounds every call. Zero disables the deadline.
	Timeout time.Duration

	// ErrorThreshold is the failure percentage (1-100) that trips the breaker.
	ErrorThreshold int

	// VolumeThreshold is the minimum number of outcomes in the window before
	// the breaker may trip.
	VolumeThreshold int

	// Window is how many recent outcomes are kept.
	Window int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// Fallback produces the value returned for rejected or failed calls.
	Fallback func(cause error) T

	// IsFailure classifies a completed call. Defaults to err != nil.
	IsFailure func(result T, err error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	State          State     `json:"state"`
	WindowSize     int       `json:"window_size"`
	WindowTotal    int       `json:"window_total"`
	WindowFailures int       `json:"window_failures"`
	FailureRatio   float64   `json:"failure_ratio"`
	Fires          uint64    `json:"fires"`
	Successes      uint64    `json:"successes"`
	Failures       uint64    `json:"failures"`
	Timeouts       uint64    `json:"timeouts"`
	Rejects        uint64    `json:"rejects"`
	Fallbacks      uint64    `json:"fallbacks"`
	LastTransition time.Time `json:"last_transition"`
}

type transition struct {
	from State
	to   State
}

// Breaker guards calls returning T. One Breaker coordinates every concurrent
// call to a dependency.
type Breaker[T any] struct {
	mutex          sync.Mutex
	settings       Settings[T]
	state          State
	window         *outcomeWindow
	generation     uint64
	probing        bool
	transitionedAt time.Time
	stats          Stats
}

// New creates a breaker in the closed state.
func New[T any](settings Settings[T]) *Breaker[T] {
	if settings.Window < 1 {
		settings.Window = defaultWindow
	}
	if settings.ErrorThreshold < 1 || settings.ErrorThreshold > 100 {
		settings.ErrorThreshold = defaultErrorThreshold
	}
	if settings.VolumeThreshold < 1 {
		settings.VolumeThreshold = 1
	}
	if settings.VolumeThreshold > settings.Window {
		settings.VolumeThreshold = settings.Window
	}
	if settings.ResetTimeout <= 0 {
		settings.ResetTimeout = defaultResetTimeout
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(_ T, err error) bool { return err != nil }
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}

	return &Breaker[T]{
		settings:       settings,
		state:          StateClosed,
		window:         newOutcomeWindow(settings.Window),
		transitionedAt: settings.Clock(),
	}
}

// Name returns the dependency name the breaker was created for.
func (cb *Breaker[T]) Name() string {
	return cb.settings.Name
}

// Execute runs fn unless the breaker rejects it. When the call is rejected,
// times out or returns an error, the fallback value is returned together with
// the cause. A call that completes without error returns its own result even
// when IsFailure counts it against the breaker.
func (cb *Breaker[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	generation, err := cb.beforeCall()
	if err != nil {
		return cb.fallback(err), err
	}

	callCtx := ctx
	if cb.settings.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.settings.Timeout)
		defer cancel()
	}

	result, err := invoke(callCtx, fn)
	if err != nil && ctx.Err() != nil {
		// the caller went away; that says nothing about the dependency
		cb.abandon(generation)
		cause := fmt.Errorf("call abandoned: %w", ctx.Err())
		return cb.fallback(cause), cause
	}

	cb.afterCall(generation, cb.settings.IsFailure(result, err), errors.Is(err, ErrTimeout))

	if err != nil {
		return cb.fallback(err), err
	}

	return result, nil
}

type outcome[T any] struct {
	result T
	err    error
}

func invoke[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	// buffered so a late completion never blocks and is simply dropped
	done := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()

		result, err := fn(ctx)
		done <- outcome[T]{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.result, fmt.Errorf("%w: %w", ErrTimeout, o.err)
		}
		return o.result, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func (cb *Breaker[T]) beforeCall() (uint64, error) {
	cb.mutex.Lock()

	now := cb.settings.Clock()
	changed := cb.refreshLocked(now)

	cb.stats.Fires++

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrOpenState
	case StateHalfOpen:
		if cb.probing {
			err = ErrTooManyRequests
		} else {
			cb.probing = true
		}
	}

	if err != nil {
		cb.stats.Rejects++
	}
	generation := cb.generation
	cb.mutex.Unlock()

	cb.notify(changed)
	return generation, err
}

func (cb *Breaker[T]) afterCall(generation uint64, failed, timedOut bool) {
	cb.mutex.Lock()

	now := cb.settings.Clock()
	changed := cb.refreshLocked(now)

	if timedOut {
		cb.stats.Timeouts++
	}
	if failed {
		cb.stats.Failures++
	} else {
		cb.stats.Successes++
	}

	// outcomes of calls started before the last transition are ignored
	if generation == cb.generation {
		if failed {
			changed = append(changed, cb.onFailureLocked(now)...)
		} else {
			changed = append(changed, cb.onSuccessLocked(now)...)
		}
	}

	cb.mutex.Unlock()
	cb.notify(changed)
}

func (cb *Breaker[T]) abandon(generation uint64) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen && generation == cb.generation {
		cb.probing = false
	}
}

func (cb *Breaker[T]) onSuccessLocked(now time.Time) []transition {
	switch cb.state {
	case StateClosed:
		// a success can still leave the ratio at the threshold once the
		// window fills up
		cb.window.record(false)
		if cb.shouldTripLocked() {
			return cb.setStateLocked(StateOpen, now)
		}
	case StateHalfOpen:
		return cb.setStateLocked(StateClosed, now)
	}

	return nil
}

func (cb *Breaker[T]) onFailureLocked(now time.Time) []transition {
	switch cb.state {
	case StateClosed:
		cb.window.record(true)
		if cb.shouldTripLocked() {
			return cb.setStateLocked(StateOpen, now)
		}
	case StateHalfOpen:
		return cb.setStateLocked(StateOpen, now)
	}

	return nil
}

func (cb *Breaker[T]) shouldTripLocked() bool {
	total := cb.window.total()
	if total < cb.settings.VolumeThreshold {
		return false
	}

	return cb.window.failures*100 >= cb.settings.ErrorThreshold*total
}

// refreshLocked moves an open breaker to half-open once the reset timeout has
// elapsed.
func (cb *Breaker[T]) refreshLocked(now time.Time) []transition {
	if cb.state == StateOpen && now.Sub(cb.transitionedAt) >= cb.settings.ResetTimeout {
		return cb.setStateLocked(StateHalfOpen, now)
	}

	return nil
}

func (cb *Breaker[T]) setStateLocked(state State, now time.Time) []transition {
	if cb.state == state {
		return nil
	}

	prev := cb.state
	cb.state = state
	cb.transitionedAt = now
	cb.generation++
	cb.probing = false
	cb.window.reset()

	return []transition{{from: prev, to: state}}
}

func (cb *Breaker[T]) notify(changes []transition) {
	if cb.settings.OnStateChange == nil {
		return
	}

	for _, t := range changes {
		cb.settings.OnStateChange(cb.settings.Name, t.from, t.to)
	}
}

func (cb *Breaker[T]) fallback(cause error) T {
	cb.mutex.Lock()
	cb.stats.Fallbacks++
	cb.mutex.Unlock()

	if cb.settings.Fallback == nil {
		var zero T
		return zero
	}

	return cb.settings.Fallback(cause)
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports HALF-OPEN; the transition itself happens on the next call.
func (cb *Breaker[T]) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.effectiveStateLocked(cb.settings.Clock())
}

// Stats returns a snapshot of the breaker's state and counters. It has no
// side effects.
func (cb *Breaker[T]) Stats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	stats := cb.stats
	stats.State = cb.effectiveStateLocked(cb.settings.Clock())
	stats.WindowSize = len(cb.window.outcomes)
	stats.WindowTotal = cb.window.total()
	stats.WindowFailures = cb.window.failures
	stats.FailureRatio = cb.window.failureRatio()
	stats.LastTransition = cb.transitionedAt

	return stats
}

func (cb *Breaker[T]) effectiveStateLocked(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.transitionedAt) >= cb.settings.ResetTimeout {
		return StateHalfOpen
	}

	return cb.state
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
