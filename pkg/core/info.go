// pkg/core/info.go
package core

// TrackerInfo describes a tracker and the markers it owns.
type TrackerInfo struct {
	ID        uint32
	Type      string
	Name      string
	Options   string
	MarkerIDs []uint32
}

// MarkerInfo describes a marker assignment.
type MarkerInfo struct {
	ID        uint32
	TrackerID uint32
	Name      string
	Options   string
}

// DeviceInfo describes a hardware device. Descriptive fields and Status
// are updated through separate table messages and never clear each other.
type DeviceInfo struct {
	HWID    uint64
	Time    int64
	Type    string
	Name    string
	Options string
	Status  string
}

// FilterInfo describes a server-side filter. A zero Period disables it.
type FilterInfo struct {
	Period  uint32
	Name    string
	Options string
}

// PackInfo describes one packed payload: which entities of a given type
// are serialized together under a single event id.
type PackInfo struct {
	Type    Type
	ID      uint16
	Name    string
	Options string
	IDs     []uint64
}
