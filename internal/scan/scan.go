// Package scan discovers tracking servers on the local network with a
// UDP broadcast probe.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// Port is the UDP port servers listen on for probes.
	Port = 8998
	// Message is the default probe text.
	Message = "owl_scan"
	// FlushWindow is how long Listen keeps collecting after the first reply.
	FlushWindow = 50 * time.Millisecond

	replyChSize = 64
	maxDatagram = 2048
)

var ErrClosed = errors.New("scan: closed")

// Reply is the latest answer from one server.
type Reply struct {
	IP     string
	Fields map[string]string
	Seen   time.Time
}

// Scanner owns a UDP socket used to probe for servers and collect their
// replies. Send and Listen must not be called while the worker runs.
type Scanner struct {
	logger  *slog.Logger
	targets []*net.UDPAddr
	conn    *net.UDPConn

	mu      sync.Mutex
	servers map[string]Reply
	replies chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scanner.
type Option func(*Scanner) error

// WithTargets replaces the default broadcast target with explicit
// host:port addresses.
func WithTargets(addrs ...string) Option {
	return func(s *Scanner) error {
		s.targets = s.targets[:0]
		for _, a := range addrs {
			ua, err := net.ResolveUDPAddr("udp4", a)
			if err != nil {
				return fmt.Errorf("resolve target %q: %w", a, err)
			}
			s.targets = append(s.targets, ua)
		}
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) error {
		s.logger = logger
		return nil
	}
}

// New binds an ephemeral UDP socket for probing.
func New(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		logger:  slog.Default(),
		targets: []*net.UDPAddr{{IP: net.IPv4bcast, Port: Port}},
		servers: make(map[string]Reply),
		replies: make(chan string, replyChSize),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("bind scan socket: %w", err)
	}
	s.conn = conn
	return s, nil
}

// Send writes message followed by a NUL byte to every target.
func (s *Scanner) Send(message string) error {
	if s.conn == nil {
		return ErrClosed
	}
	payload := append([]byte(message), 0)
	for _, t := range s.targets {
		if _, err := s.conn.WriteToUDP(payload, t); err != nil {
			return fmt.Errorf("send probe to %s: %w", t, err)
		}
	}
	return nil
}

// Listen collects replies for up to timeout. Once the first reply arrives
// the remaining window shrinks to FlushWindow. Each reply is returned as
// "<ip> <payload>".
func (s *Scanner) Listen(timeout time.Duration) ([]string, error) {
	if s.conn == nil {
		return nil, ErrClosed
	}
	var out []string
	deadline := time.Now().Add(timeout)
	buf := make([]byte, maxDatagram)
	for {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return out, fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return out, nil
			}
			return out, fmt.Errorf("read reply: %w", err)
		}
		payload := strings.TrimRight(string(buf[:n]), "\x00")
		out = append(out, from.IP.String()+" "+payload)
		if len(out) == 1 {
			if flush := time.Now().Add(FlushWindow); flush.Before(deadline) {
				deadline = flush
			}
		}
	}
}

// ParseReply splits a "<ip> <payload>" reply into its key=value fields.
// The sender address is stored under "ip". Tokens without '=' are ignored.
func ParseReply(reply string) map[string]string {
	fields := make(map[string]string)
	ip, payload, _ := strings.Cut(strings.TrimSpace(reply), " ")
	fields["ip"] = ip
	for _, tok := range strings.Fields(payload) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		fields[k] = v
	}
	return fields
}

// Start probes every interval in a background goroutine until ctx is
// cancelled or Stop is called.
func (s *Scanner) Start(ctx context.Context, interval time.Duration) {
	s.Stop()
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, interval)
}

func (s *Scanner) run(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	for {
		if err := s.Send(Message); err != nil {
			s.logger.Warn("Scan probe failed", "error", err)
		}
		replies, err := s.Listen(interval)
		if err != nil {
			s.logger.Warn("Scan listen failed", "error", err)
		}
		now := time.Now()
		for _, r := range replies {
			fields := ParseReply(r)
			s.mu.Lock()
			s.servers[fields["ip"]] = Reply{IP: fields["ip"], Fields: fields, Seen: now}
			s.mu.Unlock()
			select {
			case s.replies <- r:
			default:
				s.logger.Debug("Reply channel full, dropping", "reply", r)
			}
		}

		// Listen returns early after the flush window; wait out the rest.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(now.Add(interval))):
		}
	}
}

// Stop ends the background worker and waits for it to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Now())
	}
	s.wg.Wait()
}

// Replies delivers raw replies collected by the worker.
func (s *Scanner) Replies() <-chan string {
	return s.replies
}

// Servers returns the known servers ordered by address.
func (s *Scanner) Servers() []Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reply, 0, len(s.servers))
	for _, r := range s.servers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Close stops the worker and releases the socket.
func (s *Scanner) Close() error {
	s.Stop()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
