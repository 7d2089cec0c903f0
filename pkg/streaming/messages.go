// Package streaming defines the JSON messages the recorder streams to a
// live consumer over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/owl/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRecording = "start_recording"
	TypeEndRecording   = "end_recording"
	TypeMarkers        = "markers"
	TypeRigids         = "rigids"
	TypeTrackers       = "trackers"
	TypeDevices        = "devices"
	TypeError          = "error"
	TypeAck            = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response. A non-empty Error
// rejects the acknowledged message.
type AckMessage struct {
	Type  string `json:"type"` // always "ack"
	For   string `json:"for"`  // the message type being acknowledged
	Error string `json:"error,omitempty"`
}

// StartRecordingPayload carries the recording metadata.
type StartRecordingPayload struct {
	Recording *core.Recording `json:"recording"`
}

// Marker is one marker sample: position and quality.
type Marker struct {
	ID    uint32     `json:"id"`
	Flags uint32     `json:"flags,omitempty"`
	Pos   [3]float32 `json:"pos"`
	Cond  float32    `json:"cond"`
}

// Rigid is one rigid body pose: position then wxyz quaternion.
type Rigid struct {
	ID    uint32     `json:"id"`
	Flags uint32     `json:"flags,omitempty"`
	Pos   [3]float32 `json:"pos"`
	Rot   [4]float32 `json:"rot"`
	Cond  float32    `json:"cond"`
}

// MarkerFrame is one frame of markers.
type MarkerFrame struct {
	Time    int64    `json:"time"`
	Markers []Marker `json:"markers"`
}

// RigidFrame is one frame of rigid poses.
type RigidFrame struct {
	Time   int64   `json:"time"`
	Rigids []Rigid `json:"rigids"`
}

// MarkersPayload batches consecutive marker frames.
type MarkersPayload struct {
	Frames []MarkerFrame `json:"frames"`
}

// RigidsPayload batches consecutive rigid frames.
type RigidsPayload struct {
	Frames []RigidFrame `json:"frames"`
}

// Tracker is a tracker definition.
type Tracker struct {
	ID        uint32   `json:"id"`
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Options   string   `json:"options,omitempty"`
	MarkerIDs []uint32 `json:"markerIds"`
}

// Device is a hardware device description and status.
type Device struct {
	HWID    uint64 `json:"hwid"`
	Time    int64  `json:"time"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Options string `json:"options,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ErrorPayload is a server error text.
type ErrorPayload struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

// NewMarkerFrame converts a core marker frame.
func NewMarkerFrame(f *core.MarkerFrame) MarkerFrame {
	out := MarkerFrame{Time: f.Time, Markers: make([]Marker, len(f.Markers))}
	for i, m := range f.Markers {
		out.Markers[i] = Marker{ID: m.ID, Flags: m.Flags, Pos: [3]float32{m.X, m.Y, m.Z}, Cond: m.Cond}
	}
	return out
}

// NewRigidFrame converts a core rigid frame.
func NewRigidFrame(f *core.RigidFrame) RigidFrame {
	out := RigidFrame{Time: f.Time, Rigids: make([]Rigid, len(f.Rigids))}
	for i, r := range f.Rigids {
		p := r.Pose
		out.Rigids[i] = Rigid{
			ID:    r.ID,
			Flags: r.Flags,
			Pos:   [3]float32{p[0], p[1], p[2]},
			Rot:   [4]float32{p[3], p[4], p[5], p[6]},
			Cond:  r.Cond,
		}
	}
	return out
}

// NewTrackers converts core tracker infos.
func NewTrackers(ts []core.TrackerInfo) []Tracker {
	out := make([]Tracker, len(ts))
	for i, t := range ts {
		ids := t.MarkerIDs
		if ids == nil {
			ids = []uint32{}
		}
		out[i] = Tracker{ID: t.ID, Type: t.Type, Name: t.Name, Options: t.Options, MarkerIDs: ids}
	}
	return out
}

// NewDevices converts core device infos.
func NewDevices(ds []core.DeviceInfo) []Device {
	out := make([]Device, len(ds))
	for i, d := range ds {
		out[i] = Device{HWID: d.HWID, Time: d.Time, Type: d.Type, Name: d.Name, Options: d.Options, Status: d.Status}
	}
	return out
}
