// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/OCAP2/owl/internal/model"
	"github.com/OCAP2/owl/pkg/core"
)

// xyzToPoint builds an XYZ point from a float32 triple.
func xyzToPoint(x, y, z float32) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: float64(x), Y: float64(y)},
		Z:    float64(z),
		Type: geom.DimXYZ,
	})
}

// idsToJSON converts an id list to datatypes.JSON for DB storage.
func idsToJSON(ids []uint32) datatypes.JSON {
	if len(ids) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(ids)
	return datatypes.JSON(data)
}

// CoreToRecording converts a core.Recording to a GORM Recording. The core
// id must be empty or a valid UUID.
func CoreToRecording(r core.Recording) (model.Recording, error) {
	var id uuid.UUID
	if r.ID != "" {
		parsed, err := uuid.Parse(r.ID)
		if err != nil {
			return model.Recording{}, fmt.Errorf("recording id %q: %w", r.ID, err)
		}
		id = parsed
	}

	props := datatypes.JSON("{}")
	if len(r.Properties) > 0 {
		data, err := json.Marshal(r.Properties)
		if err != nil {
			return model.Recording{}, fmt.Errorf("marshal properties: %w", err)
		}
		props = data
	}

	return model.Recording{
		ID:            id,
		Name:          r.Name,
		Tag:           r.Tag,
		StartTime:     r.StartTime,
		Frequency:     r.Frequency,
		ServerAddress: r.Server.Address,
		ServerVersion: r.Server.Version,
		ServerAPI:     r.Server.API,
		Profile:       r.Server.Profile,
		Protocol:      r.Server.Protocol,
		ClientVersion: r.ClientVersion,
		Properties:    props,
	}, nil
}

// CoreToMarkerSamples flattens a marker frame into one row per marker.
func CoreToMarkerSamples(recordingID uuid.UUID, f core.MarkerFrame) []model.MarkerSample {
	out := make([]model.MarkerSample, 0, len(f.Markers))
	for _, m := range f.Markers {
		out = append(out, model.MarkerSample{
			RecordingID: recordingID,
			FrameTime:   f.Time,
			MarkerID:    m.ID,
			Flags:       m.Flags,
			Position:    xyzToPoint(m.X, m.Y, m.Z),
			Cond:        m.Cond,
		})
	}
	return out
}

// CoreToRigidSamples flattens a rigid frame into one row per body.
func CoreToRigidSamples(recordingID uuid.UUID, f core.RigidFrame) []model.RigidSample {
	out := make([]model.RigidSample, 0, len(f.Rigids))
	for _, r := range f.Rigids {
		p := r.Pose
		out = append(out, model.RigidSample{
			RecordingID: recordingID,
			FrameTime:   f.Time,
			RigidID:     r.ID,
			Flags:       r.Flags,
			Position:    xyzToPoint(p[0], p[1], p[2]),
			Rotation:    model.Quaternion{W: p[3], X: p[4], Y: p[5], Z: p[6]},
			Cond:        r.Cond,
		})
	}
	return out
}

// CoreToTracker converts a core.TrackerInfo to a GORM Tracker.
func CoreToTracker(recordingID uuid.UUID, at time.Time, t core.TrackerInfo) model.Tracker {
	return model.Tracker{
		RecordingID: recordingID,
		Time:        at,
		TrackerID:   t.ID,
		Type:        t.Type,
		Name:        t.Name,
		Options:     t.Options,
		MarkerIDs:   idsToJSON(t.MarkerIDs),
	}
}

// CoreToDevice converts a core.DeviceInfo to a GORM Device.
func CoreToDevice(recordingID uuid.UUID, at time.Time, d core.DeviceInfo) model.Device {
	return model.Device{
		RecordingID: recordingID,
		Time:        at,
		HWID:        fmt.Sprintf("0x%x", d.HWID),
		DeviceTime:  d.Time,
		Type:        d.Type,
		Name:        d.Name,
		Options:     d.Options,
		Status:      d.Status,
	}
}

// CoreToServerError converts a core.ErrorRecord to a GORM ServerError.
func CoreToServerError(recordingID uuid.UUID, at time.Time, e core.ErrorRecord) model.ServerError {
	return model.ServerError{
		RecordingID: recordingID,
		Time:        at,
		FrameTime:   e.Time,
		Message:     e.Message,
	}
}
