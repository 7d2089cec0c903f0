package storage

import "github.com/OCAP2/owl/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Recording management. StartRecording may assign rec.ID.
	StartRecording(rec *core.Recording) error
	EndRecording() error

	// Sample recording
	RecordMarkers(f *core.MarkerFrame) error
	RecordRigids(f *core.RigidFrame) error

	// Metadata snapshots, sent whenever the server republishes a table
	RecordTrackers(trackers []core.TrackerInfo) error
	RecordDevices(devices []core.DeviceInfo) error

	RecordError(e *core.ErrorRecord) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a recording archive.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
