package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/owl/pkg/core"
)

var (
	// ErrNoHandler is returned when no handler is registered for an event.
	ErrNoHandler = errors.New("no handler")
	// ErrQueueFull is returned when a non-blocking buffered handler drops an event.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// HandlerFunc processes one event.
type HandlerFunc func(*core.Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Route returns the key an event is dispatched under: its resolved name
// when the server named it, otherwise its type name.
func Route(e *core.Event) string {
	if e.Name != "" {
		return e.Name
	}
	if e.TypeName != "" {
		return e.TypeName
	}
	return e.Type.String()
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	mu      sync.RWMutex
	buffers map[string]chan *core.Event
	closed  bool
	wg      sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan *core.Event),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"owl.dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for route, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("route", route)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"owl.dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"owl.dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"owl.dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given route with optional configuration.
// Registering the same route twice replaces the earlier handler.
func (d *Dispatcher) Register(route string, h HandlerFunc, opts ...Option) {
	d.handlers[route] = d.wrap(route, h, opts)
}

// Fallback sets the handler for events whose route has no handler.
func (d *Dispatcher) Fallback(h HandlerFunc, opts ...Option) {
	d.fallback = d.wrap("*", h, opts)
}

func (d *Dispatcher) wrap(route string, h HandlerFunc, opts []Option) HandlerFunc {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(route, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(route, cfg.bufferSize, cfg.blocking, handler)
	}

	return handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e *core.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	route := Route(e)
	h, ok := d.handlers[route]
	if !ok {
		if d.fallback == nil {
			return fmt.Errorf("%w: %s", ErrNoHandler, route)
		}
		h = d.fallback
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the route.
func (d *Dispatcher) HasHandler(route string) bool {
	_, ok := d.handlers[route]
	return ok
}

// Close stops accepting events and waits until every buffered handler has
// drained its queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(route string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan *core.Event, size)

	d.mu.Lock()
	d.buffers[route] = buffer
	d.mu.Unlock()

	routeAttr := metric.WithAttributes(attribute.String("route", route))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, routeAttr)
			}
			d.processed.Add(context.Background(), 1, routeAttr)
		}
	}()

	if blocking {
		return func(e *core.Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e *core.Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, routeAttr)
			return fmt.Errorf("%w: %s", ErrQueueFull, route)
		}
	}
}

func (d *Dispatcher) withLogging(route string, h HandlerFunc) HandlerFunc {
	return func(e *core.Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "route", route, "id", e.ID, "time", e.Time, "len", e.Len())

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "route", route, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "route", route, "duration", time.Since(start))
		}

		return err
	}
}
