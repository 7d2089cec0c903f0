package v1

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/OCAP2/owl/pkg/core"
)

// RecordingData contains all the data needed to build an export
type RecordingData struct {
	Recording *core.Recording
	EndTime   time.Time

	Markers map[uint32]*MarkerRecord
	Rigids  map[uint32]*RigidRecord

	Trackers map[uint32]core.TrackerInfo
	Devices  map[uint64]core.DeviceInfo
	Errors   []core.ErrorRecord

	// FrameTimes holds every distinct frame time seen
	FrameTimes map[int64]struct{}
}

// MarkerRecord groups a marker with its samples
type MarkerRecord struct {
	ID      uint32
	Samples []core.Marker
}

// RigidRecord groups a rigid body with its samples
type RigidRecord struct {
	ID      uint32
	Samples []core.Rigid
}

// NewRecordingData returns empty data for rec.
func NewRecordingData(rec *core.Recording) *RecordingData {
	return &RecordingData{
		Recording:  rec,
		Markers:    make(map[uint32]*MarkerRecord),
		Rigids:     make(map[uint32]*RigidRecord),
		Trackers:   make(map[uint32]core.TrackerInfo),
		Devices:    make(map[uint64]core.DeviceInfo),
		FrameTimes: make(map[int64]struct{}),
	}
}

// Build creates an Export from the recording data. Tracks, trackers and
// devices are sorted by id so equal input gives byte-identical output.
func Build(data *RecordingData) Export {
	rec := data.Recording
	export := Export{
		Version:       FormatVersion,
		ID:            rec.ID,
		Name:          rec.Name,
		Tag:           rec.Tag,
		ClientVersion: rec.ClientVersion,
		Server: Server{
			Address:  rec.Server.Address,
			Version:  rec.Server.Version,
			API:      rec.Server.API,
			Profile:  rec.Server.Profile,
			Protocol: rec.Server.Protocol,
		},
		StartTime:  formatTime(rec.StartTime),
		EndTime:    formatTime(data.EndTime),
		Frequency:  rec.Frequency,
		FrameCount: len(data.FrameTimes),
		Properties: rec.Properties,
		Trackers:   make([]Tracker, 0, len(data.Trackers)),
		Devices:    make([]Device, 0, len(data.Devices)),
		Markers:    make([]Track, 0, len(data.Markers)),
		Rigids:     make([]Track, 0, len(data.Rigids)),
		Errors:     make([][]any, 0, len(data.Errors)),
	}
	if export.Properties == nil {
		export.Properties = map[string]string{}
	}
	if !rec.StartTime.IsZero() && data.EndTime.After(rec.StartTime) {
		export.Duration = data.EndTime.Sub(rec.StartTime).Seconds()
	}

	names := make(map[uint32]string)
	for _, id := range slices.Sorted(maps.Keys(data.Trackers)) {
		t := data.Trackers[id]
		ids := t.MarkerIDs
		if ids == nil {
			ids = []uint32{}
		}
		export.Trackers = append(export.Trackers, Tracker{
			ID:        t.ID,
			Type:      t.Type,
			Name:      t.Name,
			Options:   t.Options,
			MarkerIDs: ids,
		})
		names[t.ID] = t.Name
	}

	for _, hwid := range slices.Sorted(maps.Keys(data.Devices)) {
		d := data.Devices[hwid]
		export.Devices = append(export.Devices, Device{
			HWID:    fmt.Sprintf("0x%x", d.HWID),
			Type:    d.Type,
			Name:    d.Name,
			Options: d.Options,
			Status:  d.Status,
		})
	}

	for _, id := range slices.Sorted(maps.Keys(data.Markers)) {
		record := data.Markers[id]
		track := Track{
			ID:        id,
			Positions: make([][]any, 0, len(record.Samples)),
		}
		for i, m := range record.Samples {
			if i == 0 {
				track.StartFrame = m.Time
			}
			track.Positions = append(track.Positions, []any{
				m.Time,
				[]float32{m.X, m.Y, m.Z},
				m.Cond,
			})
		}
		export.Markers = append(export.Markers, track)
	}

	// Rigid ids are tracker ids, so rigid tracks carry the tracker name.
	for _, id := range slices.Sorted(maps.Keys(data.Rigids)) {
		record := data.Rigids[id]
		track := Track{
			ID:        id,
			Name:      names[id],
			Positions: make([][]any, 0, len(record.Samples)),
		}
		for i, r := range record.Samples {
			if i == 0 {
				track.StartFrame = r.Time
			}
			p := r.Pose
			track.Positions = append(track.Positions, []any{
				r.Time,
				[]float32{p[0], p[1], p[2]},
				[]float32{p[3], p[4], p[5], p[6]},
				r.Cond,
			})
		}
		export.Rigids = append(export.Rigids, track)
	}

	// Format: [frameTime, message]
	for _, e := range data.Errors {
		export.Errors = append(export.Errors, []any{e.Time, e.Message})
	}

	return export
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
