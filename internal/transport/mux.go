// Package transport multiplexes the sockets of one tracking session into a
// single, ordered stream of decoded events.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MaxDrain is the number of chunks taken from each channel per poll.
const MaxDrain = 6

// ErrClosed is returned when polling a multiplexer with no open channel.
var ErrClosed = errors.New("transport: closed")

// Handler receives each decoded event in arrival order.
type Handler func(core.Event) error

// Stats counts decoded frames per channel.
type Stats struct {
	TCP            int
	UDP            int
	Broadcast      int
	ChecksumErrors int
}

func (s *Stats) add(ch Channel, n int) {
	switch ch {
	case TCP:
		s.TCP += n
	case UDP:
		s.UDP += n
	case Broadcast:
		s.Broadcast += n
	}
}

// Total returns the number of frames over all channels.
func (s Stats) Total() int {
	return s.TCP + s.UDP + s.Broadcast
}

// Mux owns the session sockets. Reader goroutines only move bytes; Poll
// decodes and calls the handler on the caller's goroutine. A Mux is not
// safe for concurrent use.
type Mux struct {
	logger  *slog.Logger
	readers [numChannels]*reader
	tcp     net.Conn
	stream  []byte
	held    [numChannels][]core.Event
	notify  chan struct{}
	totals  Stats

	frames         metric.Int64Counter
	checksumErrors metric.Int64Counter
}

// New creates an empty multiplexer. Uses the global OTel meter.
func New(logger *slog.Logger) (*Mux, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mux{
		logger: logger,
		notify: make(chan struct{}, 1),
	}

	var err error
	mt := meter()
	m.frames, err = mt.Int64Counter(
		"owl.transport.frames",
		metric.WithDescription("Total frames decoded"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	m.checksumErrors, err = mt.Int64Counter(
		"owl.transport.checksum_errors",
		metric.WithDescription("Total buffers dropped on a header checksum mismatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating checksum counter: %w", err)
	}
	return m, nil
}

// AttachTCP takes ownership of an established stream connection and starts
// reading from it.
func (m *Mux) AttachTCP(conn net.Conn) {
	if r := m.readers[TCP]; r != nil {
		_ = r.close()
	}
	m.tcp = conn
	m.stream = nil
	m.start(TCP, conn)
}

// LocalPort returns the local port of the stream connection, or 0.
func (m *Mux) LocalPort() int {
	if m.tcp == nil {
		return 0
	}
	if addr, ok := m.tcp.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// OpenUDP binds the unicast datagram channel on port.
func (m *Mux) OpenUDP(port int) error {
	if m.readers[UDP] != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("bind udp :%d: %w", port, err)
	}
	m.start(UDP, conn)
	return nil
}

// OpenBroadcast binds the broadcast channel on port with address reuse.
func (m *Mux) OpenBroadcast(port int) error {
	if m.readers[Broadcast] != nil {
		return nil
	}
	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bind broadcast :%d: %w", port, err)
	}
	m.start(Broadcast, conn.(*net.UDPConn))
	m.logger.Debug("Broadcast channel opened", "port", port)
	return nil
}

// CloseBroadcast closes the broadcast channel if it is open.
func (m *Mux) CloseBroadcast() error {
	return m.closeChannel(Broadcast)
}

// IsOpen reports whether ch has a socket.
func (m *Mux) IsOpen(ch Channel) bool {
	return m.readers[ch] != nil
}

func (m *Mux) start(ch Channel, conn net.Conn) {
	r := newReader(ch, conn)
	m.readers[ch] = r
	r.start(m.notify)
}

func (m *Mux) closeChannel(ch Channel) error {
	r := m.readers[ch]
	if r == nil {
		return nil
	}
	m.readers[ch] = nil
	m.held[ch] = nil
	if ch == TCP {
		m.tcp = nil
		m.stream = nil
	}
	if err := r.close(); err != nil {
		return fmt.Errorf("close %s: %w", ch, err)
	}
	return nil
}

// Send writes a control text message on the stream channel.
func (m *Mux) Send(text string) error {
	if m.tcp == nil {
		return ErrClosed
	}
	if err := protocol.WriteText(m.tcp, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close shuts every channel down and returns the first close error.
func (m *Mux) Close() error {
	var errs []error
	for ch := Channel(0); ch < numChannels; ch++ {
		if err := m.closeChannel(ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Totals returns the frame counts since the multiplexer was created.
func (m *Mux) Totals() Stats {
	return m.totals
}

func (m *Mux) pending() bool {
	for ch, r := range m.readers {
		if r != nil && (len(r.dataCh) > 0 || len(r.errCh) > 0 || len(m.held[ch]) > 0) {
			return true
		}
	}
	return m.streamReady()
}

// streamReady reports whether the stream buffer holds a whole frame, or a
// bad header to drop, left over from an earlier poll.
func (m *Mux) streamReady() bool {
	if m.readers[TCP] == nil || len(m.stream) == 0 {
		return false
	}
	n, ok, err := protocol.FrameLen(m.stream)
	return err != nil || (ok && len(m.stream) >= n)
}

// Poll waits up to timeout for any channel to become readable, then drains
// up to MaxDrain chunks from each channel and hands every decoded event to
// handle. A zero timeout never blocks. Socket errors close all channels
// and are returned; checksum errors only drop the affected buffer.
func (m *Mux) Poll(timeout time.Duration, handle Handler) (Stats, error) {
	var stats Stats
	open := false
	for _, r := range m.readers {
		if r != nil {
			open = true
			break
		}
	}
	if !open {
		return stats, ErrClosed
	}

	if timeout > 0 && !m.pending() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		for !m.pending() {
			select {
			case <-m.notify:
			case <-timer.C:
				return stats, nil
			}
		}
	}

	for ch := Channel(0); ch < numChannels; ch++ {
		// Events and frames a handler error left behind go first.
		if err := m.drainHeld(ch, handle); err != nil {
			return stats, err
		}
		if ch == TCP && m.streamReady() {
			if err := m.drainStream(handle, &stats); err != nil {
				return stats, err
			}
		}
		for i := 0; i < MaxDrain; i++ {
			r := m.readers[ch]
			if r == nil {
				break
			}
			var data []byte
			select {
			case data = <-r.dataCh:
			default:
			}
			if data == nil {
				break
			}
			if err := m.process(ch, data, handle, &stats); err != nil {
				return stats, err
			}
		}

		r := m.readers[ch]
		if r == nil || len(r.dataCh) > 0 {
			continue
		}
		select {
		case err := <-r.errCh:
			m.logger.Warn("Socket error, closing session sockets", "channel", ch.String(), "error", err)
			_ = m.Close()
			return stats, fmt.Errorf("%s: %w", ch, err)
		default:
		}
	}
	return stats, nil
}

func (m *Mux) process(ch Channel, data []byte, handle Handler, stats *Stats) error {
	if ch != TCP {
		events, err := protocol.Decode(data)
		if err != nil {
			m.dropped(ch, err, stats)
		}
		return m.dispatch(ch, events, handle, stats)
	}

	m.stream = append(m.stream, data...)
	return m.drainStream(handle, stats)
}

func (m *Mux) drainStream(handle Handler, stats *Stats) error {
	const ch = TCP
	for {
		n, ok, err := protocol.FrameLen(m.stream)
		if err != nil {
			m.dropped(ch, err, stats)
			m.stream = nil
			return nil
		}
		if !ok || len(m.stream) < n {
			break
		}
		buf := m.stream[:n]
		m.stream = m.stream[n:]
		events, err := protocol.Decode(buf)
		if err != nil {
			m.dropped(ch, err, stats)
		}
		if err := m.dispatch(ch, events, handle, stats); err != nil {
			return err
		}
		if m.readers[TCP] == nil {
			return nil
		}
	}
	if len(m.stream) == 0 {
		m.stream = nil
	}
	return nil
}

func (m *Mux) dropped(ch Channel, err error, stats *Stats) {
	m.logger.Warn("Dropping undecodable data", "channel", ch.String(), "error", err)
	if errors.Is(err, protocol.ErrChecksum) {
		stats.ChecksumErrors++
		m.totals.ChecksumErrors++
		m.checksumErrors.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("channel", ch.String())))
	}
}

func (m *Mux) dispatch(ch Channel, events []core.Event, handle Handler, stats *Stats) error {
	if len(events) == 0 {
		return nil
	}
	stats.add(ch, len(events))
	m.totals.add(ch, len(events))
	m.frames.Add(context.Background(), int64(len(events)),
		metric.WithAttributes(attribute.String("channel", ch.String())))
	m.held[ch] = append(m.held[ch], events...)
	return m.drainHeld(ch, handle)
}

// drainHeld hands queued events to handle. On a handler error the events
// not yet handled stay queued for the next poll.
func (m *Mux) drainHeld(ch Channel, handle Handler) error {
	for len(m.held[ch]) > 0 {
		e := m.held[ch][0]
		m.held[ch] = m.held[ch][1:]
		if err := handle(e); err != nil {
			return err
		}
	}
	m.held[ch] = nil
	return nil
}
