package logging

import (
	"bytes"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_InjectsAttrs(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		calls++
		return []slog.Attr{slog.String("address", "localhost")}
	})

	logger := slog.New(h).With("component", "recorder").WithGroup("g")
	logger.Info("connected", "port", 8001)

	out := buf.String()
	assert.Contains(t, out, "component=recorder")
	assert.Contains(t, out, "g.port=8001")
	assert.Contains(t, out, "address=localhost")
	assert.Equal(t, 1, calls)
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil))
	logger.Info("plain")
	assert.Contains(t, buf.String(), "plain")
}

func TestSessionProvider(t *testing.T) {
	var buf bytes.Buffer
	info := SessionInfo{Server: "10.0.0.5:1", Phase: "open"}
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil),
		SessionProvider(func() SessionInfo { return info })))

	logger.Info("connected")
	assert.Contains(t, buf.String(), "server=10.0.0.5:1")
	assert.Contains(t, buf.String(), "phase=open")
	assert.NotContains(t, buf.String(), "recording=")

	buf.Reset()
	info.Phase = "initialized"
	info.Recording = "owl_20260401_080000"
	logger.Info("recording")
	assert.Contains(t, buf.String(), "phase=initialized")
	assert.Contains(t, buf.String(), "recording=owl_20260401_080000")
}

func TestNewGELFHandler(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	h, closer, err := NewGELFHandler(pc.LocalAddr().String(), "info")
	require.NoError(t, err)
	defer closer.Close()

	slog.New(h).Info("graylog record", "marker", 3)

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8192)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Positive(t, n)
}
