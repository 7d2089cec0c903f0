package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/owl/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func named(name string) *core.Event {
	return &core.Event{Type: core.TypeFrame, TypeName: "frame", Name: name}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		e    *core.Event
		want string
	}{
		{&core.Event{Type: core.TypeMarker, TypeName: "marker", Name: "markers"}, "markers"},
		{&core.Event{Type: core.TypeMarker, TypeName: "marker"}, "marker"},
		{&core.Event{Type: core.TypeRigid}, "rigid"},
	}
	for _, tt := range tests {
		if got := Route(tt.e); got != tt.want {
			t.Errorf("Route() = %q, want %q", got, tt.want)
		}
	}
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got *core.Event
	d.Register("markers", func(e *core.Event) error {
		got = e
		return nil
	})

	e := &core.Event{Type: core.TypeMarker, Name: "markers"}
	if err := d.Dispatch(e); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got != e {
		t.Error("handler was not called with the event")
	}
}

func TestDispatcher_UnknownRoute(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(named("unknown"))

	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestDispatcher_Fallback(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var routes []string
	d.Fallback(func(e *core.Event) error {
		routes = append(routes, Route(e))
		return nil
	})
	d.Register("frame", func(*core.Event) error { return nil })

	_ = d.Dispatch(named("frame"))
	_ = d.Dispatch(named("info"))

	if len(routes) != 1 || routes[0] != "info" {
		t.Errorf("fallback saw %v, want [info]", routes)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("frame", func(e *core.Event) error {
		processed.Add(1)
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(named("frame")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	d.Close()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("full", func(e *core.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	_ = d.Dispatch(named("full"))
	<-started
	_ = d.Dispatch(named("full"))
	_ = d.Dispatch(named("full"))

	err := d.Dispatch(named("full"))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	d.Close()
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("blocking", func(e *core.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	_ = d.Dispatch(named("blocking"))
	<-started
	_ = d.Dispatch(named("blocking"))

	done := make(chan struct{})
	go func() {
		_ = d.Dispatch(named("blocking"))
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	d.Close()
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("frame", func(e *core.Event) error {
		return nil
	}, Logged())

	_ = d.Dispatch(named("frame"))

	if n := len(logger.snapshot()); n < 2 {
		t.Errorf("expected at least 2 log messages, got %d", n)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("frame", func(e *core.Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	if err := d.Dispatch(named("frame")); err == nil {
		t.Error("expected handler error to propagate")
	}

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("markers", func(e *core.Event) error { return nil })

	if !d.HasHandler("markers") {
		t.Error("expected handler to exist")
	}

	if d.HasHandler("rigids") {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("frame", func(e *core.Event) error {
		processed.Add(1)
		return nil
	}, Buffered(100), Logged())

	if err := d.Dispatch(named("frame")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	d.Close()

	if processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", processed.Load())
	}
	if n := len(logger.snapshot()); n < 2 {
		t.Errorf("expected log messages, got %d", n)
	}
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("frame", func(e *core.Event) error { return nil }, Buffered(1))

	d.Close()
	d.Close()

	if err := d.Dispatch(named("frame")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
