package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventOperationCompleted EventType = "operation_completed"
	EventRemoteHit          EventType = "remote_hit"
	EventFallbackServed     EventType = "fallback_served"
	EventRetryExhausted     EventType = "retry_exhausted"
	EventCircuitChanged     EventType = "circuit_changed"
)

type Event struct {
	Type        EventType
	Timestamp   time.Time
	Endpoint    string
	Operation   string
	Duration    time.Duration
	CircuitOpen bool
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
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

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventOperationCompleted:
		c.metrics.recordOperation(event.Endpoint, event.Duration)

	case EventRemoteHit:
		c.metrics.incrementRemoteHits(event.Endpoint)

	case EventFallbackServed:
		c.metrics.incrementFallbacks(event.Endpoint)

	case EventRetryExhausted:
		c.metrics.incrementExhausted(event.Endpoint)

	case EventCircuitChanged:
		c.metrics.updateCircuit(event.Endpoint, event.CircuitOpen)
	}
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

// Emit sends an event without blocking. Events are dropped when the
// channel is full or nil; metrics never stall the operation path.
func Emit(ch chan<- Event, event Event) {
	if ch == nil {
		return
	}

	select {
	case ch <- event:
	default:
	}
}
