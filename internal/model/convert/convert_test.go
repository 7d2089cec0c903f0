package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/owl/pkg/core"
)

func TestXYZToPoint(t *testing.T) {
	pt := xyzToPoint(100.5, -200.25, 50)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.5, coord.XY.X)
	assert.Equal(t, -200.25, coord.XY.Y)
	assert.Equal(t, 50.0, coord.Z)

	x, y, z := pointToXYZ(pt)
	assert.Equal(t, [3]float32{100.5, -200.25, 50}, [3]float32{x, y, z})
}

func TestIDsToJSON(t *testing.T) {
	assert.JSONEq(t, `[]`, string(idsToJSON(nil)))
	assert.JSONEq(t, `[1,2,3]`, string(idsToJSON([]uint32{1, 2, 3})))
}

func TestCoreToRecording(t *testing.T) {
	id := uuid.New()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec, err := CoreToRecording(core.Recording{
		ID:         id.String(),
		Name:       "calib",
		Tag:        "Session",
		StartTime:  start,
		Frequency:  480,
		Server:     core.Server{Address: "10.0.0.5", Version: "5.0", Protocol: 2},
		Properties: map[string]string{"profile": "default"},
	})
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "10.0.0.5", rec.ServerAddress)
	assert.Equal(t, 2, rec.Protocol)
	assert.JSONEq(t, `{"profile":"default"}`, string(rec.Properties))

	back := RecordingToCore(rec)
	assert.Equal(t, id.String(), back.ID)
	assert.Equal(t, "default", back.Properties["profile"])
	assert.Equal(t, start, back.StartTime)
}

func TestCoreToRecording_BadID(t *testing.T) {
	_, err := CoreToRecording(core.Recording{ID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestCoreToRecording_EmptyID(t *testing.T) {
	rec, err := CoreToRecording(core.Recording{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, rec.ID)
	assert.JSONEq(t, `{}`, string(rec.Properties))
}

func TestMarkerSamples(t *testing.T) {
	id := uuid.New()
	rows := CoreToMarkerSamples(id, core.MarkerFrame{
		Time: 99,
		Markers: []core.Marker{
			{ID: 1, X: 1, Y: 2, Z: 3, Cond: 0.5},
			{ID: 2, Flags: 4, X: -1, Y: -2, Z: -3, Cond: -1},
		},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, id, rows[0].RecordingID)
	assert.Equal(t, int64(99), rows[1].FrameTime)

	m := MarkerSampleToCore(rows[1])
	assert.Equal(t, core.Marker{ID: 2, Flags: 4, Time: 99, X: -1, Y: -2, Z: -3, Cond: -1}, m)
}

func TestRigidSamples(t *testing.T) {
	rows := CoreToRigidSamples(uuid.New(), core.RigidFrame{
		Time:   7,
		Rigids: []core.Rigid{{ID: 3, Pose: [7]float32{1, 2, 3, 1, 0, 0, 0}, Cond: 2}},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, float32(1), rows[0].Rotation.W)

	r := RigidSampleToCore(rows[0])
	assert.Equal(t, [7]float32{1, 2, 3, 1, 0, 0, 0}, r.Pose)
	assert.Equal(t, int64(7), r.Time)
}

func TestTrackerRoundTrip(t *testing.T) {
	in := core.TrackerInfo{ID: 5, Type: "rigid", Name: "wand", Options: "rigid_type=wand", MarkerIDs: []uint32{1, 2}}
	row := CoreToTracker(uuid.New(), time.Now(), in)

	var ids []uint32
	require.NoError(t, json.Unmarshal(row.MarkerIDs, &ids))
	assert.Equal(t, []uint32{1, 2}, ids)
	assert.Equal(t, in, TrackerToCore(row))
}

func TestDeviceRoundTrip(t *testing.T) {
	in := core.DeviceInfo{HWID: 0xfedcba9876543210, Time: 12, Type: "camera", Name: "c0", Status: "alive=1"}
	row := CoreToDevice(uuid.New(), time.Now(), in)

	assert.Equal(t, "0xfedcba9876543210", row.HWID)
	assert.Equal(t, in, DeviceToCore(row))
}

func TestCoreToServerError(t *testing.T) {
	at := time.Now()
	row := CoreToServerError(uuid.Nil, at, core.ErrorRecord{Time: 3, Message: "bad tracker"})
	assert.Equal(t, "bad tracker", row.Message)
	assert.Equal(t, int64(3), row.FrameTime)
	assert.Equal(t, at, row.Time)
}
