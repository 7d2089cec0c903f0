// Package v1 contains the v1 export format for OWL recordings.
package v1

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version       int               `json:"version"`
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Tag           string            `json:"tag"`
	ClientVersion string            `json:"clientVersion"`
	Server        Server            `json:"server"`
	StartTime     string            `json:"startTime"`
	EndTime       string            `json:"endTime"`
	Duration      float64           `json:"duration"` // seconds
	Frequency     float32           `json:"frequency"`
	FrameCount    int               `json:"frameCount"`
	Properties    map[string]string `json:"properties"`
	Trackers      []Tracker         `json:"trackers"`
	Devices       []Device          `json:"devices"`
	Markers       []Track           `json:"markers"`
	Rigids        []Track           `json:"rigids"`
	Errors        [][]any           `json:"errors"`
}

// Server identifies the tracking server
type Server struct {
	Address  string `json:"address"`
	Version  string `json:"version,omitempty"`
	API      string `json:"api,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Protocol int    `json:"protocol"`
}

// Tracker is the last definition of a tracker seen during the recording
type Tracker struct {
	ID        uint32   `json:"id"`
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Options   string   `json:"options,omitempty"`
	MarkerIDs []uint32 `json:"markerIds"`
}

// Device is the last state of a hardware device seen during the recording
type Device struct {
	HWID    string `json:"hwid"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Options string `json:"options,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Track is the sample history of one marker or rigid body.
// Marker positions are [time, [x, y, z], cond]; rigid positions are
// [time, [x, y, z], [w, x, y, z], cond].
type Track struct {
	ID         uint32  `json:"id"`
	Name       string  `json:"name,omitempty"`
	StartFrame int64   `json:"startFrame"`
	Positions  [][]any `json:"positions"`
}
