package scan

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responder answers every probe it receives with reply.
func responder(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	probes := make(chan string, 16)
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			select {
			case probes <- string(buf[:n]):
			default:
			}
			_, _ = conn.WriteToUDP([]byte(reply+"\x00"), from)
		}
	}()
	return conn.LocalAddr().String(), probes
}

func TestScan_TwoResponders(t *testing.T) {
	addrA, probesA := responder(t, "name=alpha version=5.1")
	addrB, probesB := responder(t, "name=beta version=5.2")

	s, err := New(WithTargets(addrA, addrB))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(Message))

	start := time.Now()
	replies, err := s.Listen(2 * time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "window should shrink after the first reply")
	require.Len(t, replies, 2)

	select {
	case p := <-probesA:
		assert.Equal(t, "owl_scan\x00", p)
	case <-time.After(time.Second):
		t.Fatal("responder A got no probe")
	}
	select {
	case p := <-probesB:
		assert.Equal(t, "owl_scan\x00", p)
	case <-time.After(time.Second):
		t.Fatal("responder B got no probe")
	}

	names := map[string]bool{}
	for _, r := range replies {
		assert.True(t, strings.HasPrefix(r, "127.0.0.1 "), r)
		fields := ParseReply(r)
		assert.Equal(t, "127.0.0.1", fields["ip"])
		names[fields["name"]] = true
	}
	assert.Equal(t, map[string]bool{"alpha": true, "beta": true}, names)
}

func TestScan_ListenTimeoutWithoutReplies(t *testing.T) {
	s, err := New(WithTargets("127.0.0.1:9"))
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	replies, err := s.Listen(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestParseReply(t *testing.T) {
	fields := ParseReply("10.0.0.2 name=server version=5.0.1 junk api=1.2")
	assert.Equal(t, map[string]string{
		"ip":      "10.0.0.2",
		"name":    "server",
		"version": "5.0.1",
		"api":     "1.2",
	}, fields)

	assert.Equal(t, map[string]string{"ip": "10.0.0.3"}, ParseReply("10.0.0.3"))
}

func TestScan_Worker(t *testing.T) {
	addrA, _ := responder(t, "name=alpha")
	addrB, _ := responder(t, "name=beta")

	s, err := New(WithTargets(addrA, addrB))
	require.NoError(t, err)
	defer s.Close()

	s.Start(context.Background(), 100*time.Millisecond)

	select {
	case r := <-s.Replies():
		assert.True(t, strings.HasPrefix(r, "127.0.0.1 "))
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from worker")
	}

	require.Eventually(t, func() bool {
		return len(s.Servers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	srv := s.Servers()[0]
	assert.Equal(t, "127.0.0.1", srv.IP)

	s.Stop()
	s.Stop()
}

func TestScan_Closed(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(Message), ErrClosed)
	_, err = s.Listen(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}
