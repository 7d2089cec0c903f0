package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/owl/pkg/core"
	"github.com/OCAP2/owl/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
	// BatchSize is the number of frames per markers or rigids message.
	// Values below 1 send every frame on its own.
	BatchSize int
}

// Backend streams recordings over WebSocket to a live consumer.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config

	mu      sync.Mutex
	markers []streaming.MarkerFrame
	rigids  []streaming.RigidFrame
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Backend{
		conn: newConnection(logger.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close sends buffered frames and disconnects from the WebSocket server.
func (b *Backend) Close() error {
	err := b.flush()
	if cerr := b.conn.close(); err == nil {
		err = cerr
	}
	return err
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartRecording sends the recording metadata and waits for server ack.
func (b *Backend) StartRecording(rec *core.Recording) error {
	data, err := marshalEnvelope(streaming.TypeStartRecording, streaming.StartRecordingPayload{Recording: rec})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartRecording, ackTimeout)
}

// EndRecording sends buffered frames, then end_recording, and waits for
// server ack.
func (b *Backend) EndRecording() error {
	if err := b.flush(); err != nil {
		return err
	}
	err := b.sendEnvelopeAndWait(streaming.TypeEndRecording, nil)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

// flush sends whatever frames are buffered.
func (b *Backend) flush() error {
	b.mu.Lock()
	markers, rigids := b.markers, b.rigids
	b.markers, b.rigids = nil, nil
	b.mu.Unlock()

	if len(markers) > 0 {
		if err := b.sendEnvelope(streaming.TypeMarkers, streaming.MarkersPayload{Frames: markers}); err != nil {
			return err
		}
	}
	if len(rigids) > 0 {
		if err := b.sendEnvelope(streaming.TypeRigids, streaming.RigidsPayload{Frames: rigids}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) RecordMarkers(f *core.MarkerFrame) error {
	b.mu.Lock()
	b.markers = append(b.markers, streaming.NewMarkerFrame(f))
	if len(b.markers) < b.cfg.BatchSize {
		b.mu.Unlock()
		return nil
	}
	batch := b.markers
	b.markers = nil
	b.mu.Unlock()
	return b.sendEnvelope(streaming.TypeMarkers, streaming.MarkersPayload{Frames: batch})
}

func (b *Backend) RecordRigids(f *core.RigidFrame) error {
	b.mu.Lock()
	b.rigids = append(b.rigids, streaming.NewRigidFrame(f))
	if len(b.rigids) < b.cfg.BatchSize {
		b.mu.Unlock()
		return nil
	}
	batch := b.rigids
	b.rigids = nil
	b.mu.Unlock()
	return b.sendEnvelope(streaming.TypeRigids, streaming.RigidsPayload{Frames: batch})
}

func (b *Backend) RecordTrackers(trackers []core.TrackerInfo) error {
	return b.sendEnvelope(streaming.TypeTrackers, streaming.NewTrackers(trackers))
}

func (b *Backend) RecordDevices(devices []core.DeviceInfo) error {
	return b.sendEnvelope(streaming.TypeDevices, streaming.NewDevices(devices))
}

func (b *Backend) RecordError(e *core.ErrorRecord) error {
	return b.sendEnvelope(streaming.TypeError, streaming.ErrorPayload{Time: e.Time, Message: e.Message})
}
