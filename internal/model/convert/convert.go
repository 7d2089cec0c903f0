package convert

import (
	"encoding/json"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/owl/internal/model"
	"github.com/OCAP2/owl/pkg/core"
)

// pointToXYZ converts a geom.Point back to a float32 triple.
func pointToXYZ(p geom.Point) (x, y, z float32) {
	c, ok := p.Coordinates()
	if !ok {
		return 0, 0, 0
	}
	return float32(c.XY.X), float32(c.XY.Y), float32(c.Z)
}

// RecordingToCore converts a GORM Recording to a core.Recording.
func RecordingToCore(r model.Recording) core.Recording {
	var props map[string]string
	if len(r.Properties) > 0 {
		_ = json.Unmarshal(r.Properties, &props)
	}
	return core.Recording{
		ID:        r.ID.String(),
		Name:      r.Name,
		Tag:       r.Tag,
		StartTime: r.StartTime,
		Frequency: r.Frequency,
		Server: core.Server{
			Address:  r.ServerAddress,
			Version:  r.ServerVersion,
			API:      r.ServerAPI,
			Profile:  r.Profile,
			Protocol: r.Protocol,
		},
		ClientVersion: r.ClientVersion,
		Properties:    props,
	}
}

// MarkerSampleToCore converts a GORM MarkerSample to a core.Marker.
func MarkerSampleToCore(s model.MarkerSample) core.Marker {
	x, y, z := pointToXYZ(s.Position)
	return core.Marker{
		ID:    s.MarkerID,
		Flags: s.Flags,
		Time:  s.FrameTime,
		X:     x,
		Y:     y,
		Z:     z,
		Cond:  s.Cond,
	}
}

// RigidSampleToCore converts a GORM RigidSample to a core.Rigid.
func RigidSampleToCore(s model.RigidSample) core.Rigid {
	x, y, z := pointToXYZ(s.Position)
	q := s.Rotation
	return core.Rigid{
		ID:    s.RigidID,
		Flags: s.Flags,
		Time:  s.FrameTime,
		Pose:  [7]float32{x, y, z, q.W, q.X, q.Y, q.Z},
		Cond:  s.Cond,
	}
}

// TrackerToCore converts a GORM Tracker to a core.TrackerInfo.
func TrackerToCore(t model.Tracker) core.TrackerInfo {
	var ids []uint32
	if len(t.MarkerIDs) > 0 {
		_ = json.Unmarshal(t.MarkerIDs, &ids)
	}
	return core.TrackerInfo{
		ID:        t.TrackerID,
		Type:      t.Type,
		Name:      t.Name,
		Options:   t.Options,
		MarkerIDs: ids,
	}
}

// DeviceToCore converts a GORM Device to a core.DeviceInfo.
func DeviceToCore(d model.Device) core.DeviceInfo {
	hwid, _ := strconv.ParseUint(strings.TrimPrefix(d.HWID, "0x"), 16, 64)
	return core.DeviceInfo{
		HWID:    hwid,
		Time:    d.DeviceTime,
		Type:    d.Type,
		Name:    d.Name,
		Options: d.Options,
		Status:  d.Status,
	}
}
