package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Notifier receives published events. Implementations must tolerate
// at-most-once delivery and out-of-order arrival across entities.
type Notifier interface {
	// Name identifies the notifier in logs and metrics
	Name() string

	// Notify delivers one event. Errors are logged and not retried.
	Notify(ctx context.Context, event *Event) error
}

// Dispatcher fans events out to registered notifiers on a background
// goroutine. Publish never blocks the caller: when the buffer is full
// the event is dropped and counted, because transitions must not stall
// on slow notification sinks.
type Dispatcher struct {
	notifiers []Notifier
	buffer    chan *Event
	logger    *zap.Logger
	metrics   DispatcherMetrics

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// DispatcherMetrics counts dispatcher outcomes. A nil-safe no-op
// implementation is used when metrics are disabled.
type DispatcherMetrics interface {
	EventPublished(eventType string)
	EventDropped(eventType string)
	NotifyFailed(notifier string, eventType string)
}

type noopMetrics struct{}

func (noopMetrics) EventPublished(string) {}

func (noopMetrics) EventDropped(string) {}

func (noopMetrics) NotifyFailed(string, string) {}

// NewDispatcher creates a dispatcher with the given buffer size
func NewDispatcher(bufferSize int, logger *zap.Logger, metrics DispatcherMetrics) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		buffer:  make(chan *Event, bufferSize),
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Register adds a notifier. Must be called before Start.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		d.logger.Warn("notifier registered after dispatcher start, ignoring",
			zap.String("notifier", n.Name()))
		return
	}
	d.notifiers = append(d.notifiers, n)
}

// Start launches the dispatch goroutine
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	go d.run()
}

// Stop drains the buffer and waits for the dispatch goroutine to exit
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	close(d.buffer)
	<-d.done
}

// Publish enqueues an event for delivery. Never blocks; drops when the
// buffer is full.
func (d *Dispatcher) Publish(event *Event) {
	select {
	case d.buffer <- event:
		d.metrics.EventPublished(string(event.Type))
	default:
		d.metrics.EventDropped(string(event.Type))
		d.logger.Warn("event buffer full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("entity_id", event.EntityID.String()))
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.buffer {
		for _, n := range d.notifiers {
			if err := n.Notify(context.Background(), event); err != nil {
				d.metrics.NotifyFailed(n.Name(), string(event.Type))
				d.logger.Error("notifier failed",
					zap.String("notifier", n.Name()),
					zap.String("type", string(event.Type)),
					zap.Error(err))
			}
		}
	}
}

// LoggingNotifier writes every event to the structured log. It is the
// default sink when no external notifier is configured.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier creates a LoggingNotifier
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{logger: logger}
}

// Name implements Notifier
func (n *LoggingNotifier) Name() string {
	return "logging"
}

// Notify implements Notifier
func (n *LoggingNotifier) Notify(ctx context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID.String()),
		zap.String("actor", event.ActorName),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.TeamID != nil {
		fields = append(fields, zap.String("team_id", event.TeamID.String()))
	}
	n.logger.Info("event", fields...)
	return nil
}
