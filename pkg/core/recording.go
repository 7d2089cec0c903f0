package core

import "time"

// Server identifies the tracking server a recording was taken from.
type Server struct {
	Address  string `json:"address"`
	Version  string `json:"version,omitempty"`
	API      string `json:"api,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Protocol int    `json:"protocol"`
}

// Recording is the metadata of one recorded session.
type Recording struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Tag           string            `json:"tag"`
	StartTime     time.Time         `json:"startTime"`
	Frequency     float32           `json:"frequency"`
	Server        Server            `json:"server"`
	ClientVersion string            `json:"clientVersion"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// MarkerFrame is the set of markers reported in one frame.
type MarkerFrame struct {
	Time    int64    `json:"time"`
	Markers []Marker `json:"markers"`
}

// RigidFrame is the set of rigid poses reported in one frame.
type RigidFrame struct {
	Time   int64   `json:"time"`
	Rigids []Rigid `json:"rigids"`
}

// ErrorRecord is a server error text seen while recording.
type ErrorRecord struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

// UploadMetadata contains metadata sent with an exported recording.
type UploadMetadata struct {
	RecordingName string
	ServerAddress string
	Duration      float64
	Tag           string
}
