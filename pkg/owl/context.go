// Package owl is a client for OWL motion capture tracking servers. A
// Context keeps one session: it connects, negotiates streaming, decodes
// tracking data into events and mirrors server state into properties.
package owl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/OCAP2/owl/internal/cache"
	"github.com/OCAP2/owl/internal/frame"
	"github.com/OCAP2/owl/internal/property"
	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/internal/queue"
	"github.com/OCAP2/owl/internal/transport"
	"github.com/OCAP2/owl/pkg/core"
)

// Stats counts decoded frames per channel.
type Stats struct {
	TCP            int
	UDP            int
	Broadcast      int
	ChecksumErrors int
}

type dialResult struct {
	conn net.Conn
	err  error
}

// Context is one client session. All methods run on the caller's
// goroutine; a Context is not safe for concurrent use.
type Context struct {
	logger  *slog.Logger
	version string

	mux    *transport.Mux
	phase  Phase
	dialCh chan dialResult

	host   string
	offset int
	slave  bool

	props   *property.Store
	initial *property.Store
	tables  *cache.Tables
	events  *queue.Queue[*core.Event]
	frames  *frame.Assembler

	stats   Stats
	lastErr error
}

// Option configures a Context.
type Option func(*Context)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithVersion overrides the client version sent in the handshake.
func WithVersion(v string) Option {
	return func(c *Context) {
		c.version = v
	}
}

func New(opts ...Option) *Context {
	c := &Context{
		logger:  slog.Default(),
		version: Version,
		tables:  cache.NewTables(),
		events:  queue.New[*core.Event](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.props = property.New(c.logger)
	c.initial = property.New(c.logger)
	c.frames = frame.New(c.logger, c.resolve)
	return c
}

// Phase returns the connection state.
func (c *Context) Phase() Phase {
	return c.phase
}

// IsOpen reports whether the session completed its handshake.
func (c *Context) IsOpen() bool {
	return c.phase >= PhaseOpen
}

// LastError returns the error of the last failed call.
func (c *Context) LastError() error {
	return c.lastErr
}

// Stats returns frame counts since the Context was created.
func (c *Context) Stats() Stats {
	return c.stats
}

// Open connects to address, "host[:offset]", where the server listens on
// BasePort+offset. Options: timeout in microseconds, reset=1 to drop the
// properties kept from the previous session, slave=1 to observe a session
// another client controls. With timeout=0 each call makes progress without
// blocking and returns Pending until the server has opened the session.
func (c *Context) Open(address, opts string) (Status, error) {
	if c.IsOpen() {
		return Ready, nil
	}
	o, err := parseOptions(opts)
	if err != nil {
		return c.failed(err)
	}

	if c.phase == PhaseClosed {
		if err := c.connect(address, o); err != nil {
			return c.fail(err)
		}
	}

	status, err := c.wait(o.timeout, c.IsOpen)
	if status == Failed {
		return c.fail(err)
	}
	return status, err
}

func (c *Context) connect(address string, o options) error {
	host, offset, err := splitAddress(address)
	if err != nil {
		return err
	}
	addrs, err := net.DefaultResolver.LookupHost(context.Background(), host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s: no addresses", ErrResolve, host)
	}

	mux, err := transport.New(c.logger)
	if err != nil {
		return err
	}
	c.mux = mux
	c.host = host
	c.offset = offset
	c.slave = o.enabled("slave")

	if o.enabled("reset") {
		c.initial.Clear()
	}
	c.props = c.initial.Clone()
	c.seedProperties()

	target := net.JoinHostPort(addrs[0], strconv.Itoa(BasePort+offset))
	ch := make(chan dialResult, 1)
	c.dialCh = ch
	go func() {
		conn, err := net.Dial("tcp", target)
		ch <- dialResult{conn: conn, err: err}
	}()
	c.phase = PhaseConnecting
	c.logger.Debug("Connecting", "address", target)
	return nil
}

// seedProperties gives the mirrored server state its variants so text
// updates coerce to them. Session flags always start cleared.
func (c *Context) seedProperties() {
	_ = c.props.Set("opened", int32(0))
	_ = c.props.Set("initialized", int32(0))
	seeds := []struct {
		key   string
		value any
	}{
		{"streaming", int32(0)},
		{"frequency", float32(0)},
		{"scale", float32(1)},
		{"timebase", []int32{0, 0}},
		{"pose", []float32{0, 0, 0, 1, 0, 0, 0}},
		{"cameras", []core.Camera{}},
	}
	for _, s := range seeds {
		if !c.props.Has(s.key) {
			_ = c.props.Set(s.key, s.value)
		}
	}
}

// Initialize asks the server to start streaming and waits until it
// reports initialized=1. Options other than timeout are passed through.
func (c *Context) Initialize(opts string) (Status, error) {
	if !c.IsOpen() {
		return c.failed(ErrNotOpen)
	}
	switch c.phase {
	case PhaseInitialized:
		return Ready, nil
	case PhaseFlushing:
		return c.failed(ErrBusy)
	}
	o, err := parseOptions(opts)
	if err != nil {
		return c.failed(err)
	}

	if c.phase == PhaseOpen {
		if !c.slave {
			if err := c.send(protocol.Initialize(o.rest())); err != nil {
				return c.fail(err)
			}
		}
		c.phase = PhaseInitializing
	}

	status, err := c.wait(o.timeout, func() bool { return c.phase == PhaseInitialized })
	if status != Failed {
		return status, err
	}
	if isFatal(err) {
		return c.fail(err)
	}
	c.phase = PhaseOpen
	_ = c.props.Set("initialized", int32(0))
	return c.failed(err)
}

// Done stops streaming and waits until the server reports initialized=0.
// It is a no-op when the session is not initialized, including while an
// Initialize is still pending. When a previous Done is still flushing, it
// only polls once without blocking.
func (c *Context) Done(opts string) (Status, error) {
	if !c.IsOpen() {
		return c.failed(ErrNotOpen)
	}
	switch c.phase {
	case PhaseOpen:
		return Ready, nil
	case PhaseInitializing:
		// The server never reported initialized=1, so there is nothing to flush.
		c.phase = PhaseOpen
		return Ready, nil
	}
	o, err := parseOptions(opts)
	if err != nil {
		return c.failed(err)
	}

	isDone := func() bool { return c.phase == PhaseOpen }
	if c.phase == PhaseFlushing {
		status, err := c.wait(0, isDone)
		if status == Failed {
			return c.fail(err)
		}
		return status, err
	}

	if !c.slave {
		if err := c.send(protocol.Done(o.rest())); err != nil {
			return c.fail(err)
		}
	}
	c.phase = PhaseFlushing

	status, err := c.wait(o.timeout, isDone)
	if status == Failed {
		return c.fail(err)
	}
	return status, err
}

// Close shuts the session down. Properties, tables, queued events and the
// frame in assembly are always cleared; only socket shutdown errors are
// returned.
func (c *Context) Close() error {
	defer c.clear()
	if c.phase == PhaseClosed {
		return nil
	}
	c.phase = PhaseClosed

	if ch := c.dialCh; ch != nil {
		c.dialCh = nil
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
	}
	if c.mux == nil {
		return nil
	}
	err := c.mux.Close()
	c.mux = nil
	return err
}

func (c *Context) clear() {
	c.props.Clear()
	c.tables.Reset()
	c.events.Clear()
	c.frames.Reset()
	c.slave = false
}

// fail closes the session after a fatal error.
func (c *Context) fail(err error) (Status, error) {
	if cerr := c.Close(); cerr != nil {
		c.logger.Warn("Close after failure", "error", cerr)
	}
	return c.failed(err)
}

func (c *Context) failed(err error) (Status, error) {
	c.lastErr = err
	return Failed, err
}

func isFatal(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return false
	}
	return !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrNotOpen) &&
		!errors.Is(err, ErrSlave) && !errors.Is(err, ErrNotSupported)
}

// wait steps the session until cond holds. A zero timeout steps once.
func (c *Context) wait(timeout time.Duration, cond func() bool) (Status, error) {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return Ready, nil
		}
		remaining := time.Until(deadline)
		if timeout > 0 && remaining <= 0 {
			return Pending, ErrTimeout
		}
		if remaining < 0 {
			remaining = 0
		}
		if err := c.step(remaining); err != nil {
			return Failed, err
		}
		if cond() {
			return Ready, nil
		}
		if timeout <= 0 {
			return Pending, nil
		}
	}
}

// step advances the session by one unit of work: completing the dial while
// connecting, otherwise one poll.
func (c *Context) step(timeout time.Duration) error {
	switch c.phase {
	case PhaseClosed:
		return ErrNotOpen
	case PhaseConnecting:
		var r dialResult
		if timeout <= 0 {
			select {
			case r = <-c.dialCh:
			default:
				return nil
			}
		} else {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case r = <-c.dialCh:
			case <-timer.C:
				return nil
			}
		}
		c.dialCh = nil
		if r.err != nil {
			return fmt.Errorf("%w: %v", ErrConnect, r.err)
		}
		c.mux.AttachTCP(r.conn)
		c.phase = PhaseHandshake
		c.logger.Debug("Connected, waiting for server", "local_port", c.mux.LocalPort())
		return nil
	default:
		_, err := c.poll(timeout)
		return err
	}
}

func (c *Context) poll(timeout time.Duration) (Stats, error) {
	st, err := c.mux.Poll(timeout, c.processEvent)
	s := Stats{TCP: st.TCP, UDP: st.UDP, Broadcast: st.Broadcast, ChecksumErrors: st.ChecksumErrors}
	c.stats.TCP += s.TCP
	c.stats.UDP += s.UDP
	c.stats.Broadcast += s.Broadcast
	c.stats.ChecksumErrors += s.ChecksumErrors
	return s, err
}

// Poll reads and processes whatever the server sent, waiting up to timeout
// for data. It returns the frames decoded by this call.
func (c *Context) Poll(timeout time.Duration) (Stats, error) {
	if c.phase < PhaseHandshake {
		if c.phase == PhaseConnecting {
			return Stats{}, c.step(timeout)
		}
		return Stats{}, ErrNotOpen
	}
	s, err := c.poll(timeout)
	if err != nil && isFatal(err) {
		c.fail(err)
	}
	return s, err
}

// NextEvent removes and returns the next event, polling up to timeout when
// the queue is empty. It returns nil when nothing is available.
func (c *Context) NextEvent(timeout time.Duration) (*core.Event, error) {
	if err := c.fill(timeout); err != nil {
		return nil, err
	}
	e, _ := c.events.TryPop()
	return e, nil
}

// PeekEvent is NextEvent without removing the event.
func (c *Context) PeekEvent(timeout time.Duration) (*core.Event, error) {
	if err := c.fill(timeout); err != nil {
		return nil, err
	}
	e, _ := c.events.Peek()
	return e, nil
}

func (c *Context) fill(timeout time.Duration) error {
	if c.phase < PhaseHandshake {
		return nil
	}
	if !c.events.Empty() {
		timeout = 0
	}
	_, err := c.Poll(timeout)
	var se *ServerError
	if errors.As(err, &se) {
		c.lastErr = err
		return nil
	}
	return err
}

func (c *Context) send(text string) error {
	if c.mux == nil || c.phase < PhaseHandshake {
		return ErrNotOpen
	}
	return c.mux.Send(text)
}

// Property returns the raw value of a mirrored server property.
func (c *Context) Property(name string) (any, bool) {
	return c.props.Get(name)
}

// Properties lists property names in the order they were first set.
func (c *Context) Properties() []string {
	return c.props.Keys()
}

// PropertyText returns a property formatted as text.
func (c *Context) PropertyText(name string) string {
	return c.props.Text(name)
}

// Get returns a property as T, or the zero T when it is missing or has
// another type.
func Get[T any](c *Context, name string) T {
	return property.Get[T](c.props, name)
}
