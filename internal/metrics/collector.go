package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestForwarded   EventType = "request_forwarded"
	EventResponseCompleted  EventType = "response_completed"
	EventBreakerStateChange EventType = "breaker_state_changed"
	EventHealthChanged      EventType = "health_changed"
)

// Outcome labels how a proxied call resolved.
const (
	OutcomeDependency  = "dependency"
	OutcomeUnavailable = "unavailable"
	OutcomeFault       = "fault"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Dependency string
	Replica    string
	Duration   time.Duration
	StatusCode int
	Outcome    string
	State      string
	Healthy    bool
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	recorder *Recorder
	logger   *slog.Logger
}

// NewCollector creates a collector. recorder may be nil when Prometheus
// exposition is not wanted.
func NewCollector(bufferSize int, recorder *Recorder, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(),
		recorder: recorder,
		logger:   logger,
	}
}

// Emit queues an event without blocking; events are dropped when the buffer
// is full. Emit on a nil collector is a no-op.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestForwarded:
		c.metrics.IncrementRequests(event.Dependency)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Dependency, event.Duration, event.StatusCode, event.Outcome)

	case EventBreakerStateChange:
		c.metrics.UpdateBreakerState(event.Dependency, event.State)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Dependency, event.Replica, event.Healthy)
	}

	c.recorder.Observe(event)
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
