// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/OCAP2/owl/internal/config"
	v1 "github.com/OCAP2/owl/internal/storage/memory/export/v1"
	"github.com/OCAP2/owl/pkg/core"
)

// ErrNoRecording is returned when samples arrive outside a recording.
var ErrNoRecording = errors.New("no active recording")

// Backend stores a recording in memory and exports it to JSON when the
// recording ends.
type Backend struct {
	cfg  config.MemoryConfig
	data *v1.RecordingData
	now  func() time.Time

	lastExportPath     string
	lastExportMetadata core.UploadMetadata

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
		now: time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports a recording that was never ended.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil
	}
	return b.finish()
}

// StartRecording begins recording a new session, discarding any data
// from a previous one.
func (b *Backend) StartRecording(rec *core.Recording) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = v1.NewRecordingData(rec)
	return nil
}

// EndRecording finalizes and exports the recording data
func (b *Backend) EndRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data == nil {
		return ErrNoRecording
	}
	return b.finish()
}

func (b *Backend) finish() error {
	b.data.EndTime = b.now()
	err := b.exportJSON()
	b.data = nil
	return err
}

// RecordMarkers appends one frame of marker samples.
func (b *Backend) RecordMarkers(f *core.MarkerFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrNoRecording
	}

	b.data.FrameTimes[f.Time] = struct{}{}
	for _, m := range f.Markers {
		record, ok := b.data.Markers[m.ID]
		if !ok {
			record = &v1.MarkerRecord{ID: m.ID}
			b.data.Markers[m.ID] = record
		}
		m.Time = f.Time
		record.Samples = append(record.Samples, m)
	}
	return nil
}

// RecordRigids appends one frame of rigid poses.
func (b *Backend) RecordRigids(f *core.RigidFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrNoRecording
	}

	b.data.FrameTimes[f.Time] = struct{}{}
	for _, r := range f.Rigids {
		record, ok := b.data.Rigids[r.ID]
		if !ok {
			record = &v1.RigidRecord{ID: r.ID}
			b.data.Rigids[r.ID] = record
		}
		r.Time = f.Time
		record.Samples = append(record.Samples, r)
	}
	return nil
}

// RecordTrackers keeps the latest definition of each tracker.
func (b *Backend) RecordTrackers(trackers []core.TrackerInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrNoRecording
	}
	for _, t := range trackers {
		b.data.Trackers[t.ID] = t
	}
	return nil
}

// RecordDevices keeps the latest state of each device.
func (b *Backend) RecordDevices(devices []core.DeviceInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrNoRecording
	}
	for _, d := range devices {
		b.data.Devices[d.HWID] = d
	}
	return nil
}

// RecordError records a server error message
func (b *Backend) RecordError(e *core.ErrorRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrNoRecording
	}
	b.data.Errors = append(b.data.Errors, *e)
	return nil
}

// MarkerCount returns the number of distinct markers seen so far.
func (b *Backend) MarkerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return 0
	}
	return len(b.data.Markers)
}

// GetExportedFilePath returns the path of the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata about the last exported recording
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMetadata
}
