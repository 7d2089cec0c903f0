package owl

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/pkg/core"
	"github.com/stretchr/testify/require"
)

// mockServer is a minimal tracking server on loopback. It sends preamble
// on connect and answers initialize and done when autoReply is set.
type mockServer struct {
	t         *testing.T
	ln        net.Listener
	preamble  []string
	autoReply bool

	mu       sync.Mutex
	conn     net.Conn
	received []string
	accepted chan struct{}
}

func newMockServer(t *testing.T, preamble ...string) *mockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	if port <= BasePort {
		ln.Close()
		t.Skipf("ephemeral port %d below base port", port)
	}
	s := &mockServer{
		t:         t,
		ln:        ln,
		preamble:  preamble,
		autoReply: true,
		accepted:  make(chan struct{}),
	}
	t.Cleanup(s.close)
	go s.serve()
	return s
}

// address returns the "host:offset" form that maps onto the listener.
func (s *mockServer) address() string {
	return fmt.Sprintf("127.0.0.1:%d", s.ln.Addr().(*net.TCPAddr).Port-BasePort)
}

func (s *mockServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.accepted)

	for _, text := range s.preamble {
		s.text(text)
	}

	hdr := make([]byte, protocol.HeaderLen)
	for {
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		h, err := protocol.DecodeHeader(hdr)
		if err != nil || !h.Valid() {
			return
		}
		payload := make([]byte, h.Size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		msg := string(payload)
		s.mu.Lock()
		s.received = append(s.received, msg)
		reply := s.autoReply
		s.mu.Unlock()

		if !reply {
			continue
		}
		switch {
		case strings.HasPrefix(msg, "initialize"):
			s.text("initialized=1")
		case strings.HasPrefix(msg, "done"):
			s.text("initialized=0")
		}
	}
}

func (s *mockServer) write(b []byte) {
	<-s.accepted
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	_, _ = s.conn.Write(b)
}

func (s *mockServer) text(text string) {
	var buf bytes.Buffer
	_ = protocol.WriteText(&buf, text)
	s.write(buf.Bytes())
}

func (s *mockServer) errorText(text string) {
	var buf bytes.Buffer
	_ = protocol.Write(&buf, protocol.Header{Type: core.TypeError}, []byte(text))
	s.write(buf.Bytes())
}

func (s *mockServer) events(events ...core.Event) {
	var buf bytes.Buffer
	for _, e := range events {
		_ = protocol.WriteEvent(&buf, e)
	}
	s.write(buf.Bytes())
}

func (s *mockServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// waitFor blocks until the server received a message starting with prefix
// and returns how many such messages it saw.
func (s *mockServer) waitFor(prefix string) int {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n := 0
		for _, m := range s.messages() {
			if strings.HasPrefix(m, prefix) {
				n++
			}
		}
		if n > 0 {
			return n
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("server never received %q; got %q", prefix, s.messages())
	return 0
}

func (s *mockServer) dropConnection() {
	<-s.accepted
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *mockServer) close() {
	s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// loop repeats a zero-timeout lifecycle call until it is no longer
// pending.
func loop(t *testing.T, call func() (Status, error)) Status {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := call()
		if st != Pending {
			if st == Ready {
				require.NoError(t, err)
			}
			return st
		}
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("call stayed pending")
	return Pending
}
