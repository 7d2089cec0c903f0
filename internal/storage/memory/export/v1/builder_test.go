package v1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/owl/pkg/core"
)

func testData() *RecordingData {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	data := NewRecordingData(&core.Recording{
		ID:        "rec-1",
		Name:      "walk",
		Tag:       "Session",
		StartTime: start,
		Frequency: 240,
		Server:    core.Server{Address: "owl.local", API: "2", Protocol: 2},
	})
	data.EndTime = start.Add(90 * time.Second)
	return data
}

func TestBuild_Metadata(t *testing.T) {
	data := testData()
	data.FrameTimes[1] = struct{}{}
	data.FrameTimes[2] = struct{}{}

	export := Build(data)

	assert.Equal(t, FormatVersion, export.Version)
	assert.Equal(t, "rec-1", export.ID)
	assert.Equal(t, "walk", export.Name)
	assert.Equal(t, "2026-01-15T10:30:00Z", export.StartTime)
	assert.Equal(t, "2026-01-15T10:32:00Z", export.EndTime)
	assert.InDelta(t, 90.0, export.Duration, 1e-9)
	assert.Equal(t, 2, export.FrameCount)
	assert.Equal(t, "owl.local", export.Server.Address)
	assert.NotNil(t, export.Properties)
}

func TestBuild_EmptyCollectionsMarshalAsArrays(t *testing.T) {
	data := testData()
	data.EndTime = time.Time{}

	out, err := json.Marshal(Build(data))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(out, &raw))
	for _, key := range []string{"trackers", "devices", "markers", "rigids", "errors"} {
		assert.Equal(t, []any{}, raw[key], key)
	}
	assert.Equal(t, "", raw["endTime"])
	assert.Equal(t, 0.0, raw["duration"])
}

func TestBuild_MarkerTracksSortedByID(t *testing.T) {
	data := testData()
	data.Markers[5] = &MarkerRecord{ID: 5, Samples: []core.Marker{
		{ID: 5, Time: 10, X: 1, Y: 2, Z: 3, Cond: 1},
		{ID: 5, Time: 11, X: 1.5, Y: 2, Z: 3, Cond: -1},
	}}
	data.Markers[2] = &MarkerRecord{ID: 2, Samples: []core.Marker{{ID: 2, Time: 11}}}

	export := Build(data)

	require.Len(t, export.Markers, 2)
	assert.Equal(t, uint32(2), export.Markers[0].ID)
	assert.Equal(t, uint32(5), export.Markers[1].ID)
	assert.Equal(t, int64(10), export.Markers[1].StartFrame)
	require.Len(t, export.Markers[1].Positions, 2)
	assert.Equal(t, []any{int64(11), []float32{1.5, 2, 3}, float32(-1)}, export.Markers[1].Positions[1])
}

func TestBuild_RigidTracksNamedByTracker(t *testing.T) {
	data := testData()
	data.Trackers[1] = core.TrackerInfo{ID: 1, Type: "rigid", Name: "head", MarkerIDs: []uint32{0, 1}}
	data.Trackers[3] = core.TrackerInfo{ID: 3, Type: "point", Name: "loose"}
	data.Rigids[1] = &RigidRecord{ID: 1, Samples: []core.Rigid{
		{ID: 1, Time: 7, Pose: [7]float32{1, 2, 3, 1, 0, 0, 0}, Cond: 4},
	}}

	export := Build(data)

	require.Len(t, export.Rigids, 1)
	assert.Equal(t, "head", export.Rigids[0].Name)
	assert.Equal(t, []any{
		int64(7), []float32{1, 2, 3}, []float32{1, 0, 0, 0}, float32(4),
	}, export.Rigids[0].Positions[0])

	require.Len(t, export.Trackers, 2)
	assert.Equal(t, []uint32{0, 1}, export.Trackers[0].MarkerIDs)
	assert.Equal(t, []uint32{}, export.Trackers[1].MarkerIDs)
}

func TestBuild_DevicesAndErrors(t *testing.T) {
	data := testData()
	data.Devices[0xBEEF] = core.DeviceInfo{HWID: 0xBEEF, Type: "led", Name: "driver", Status: "ok"}
	data.Errors = append(data.Errors, core.ErrorRecord{Time: 99, Message: "camera lost"})

	export := Build(data)

	require.Len(t, export.Devices, 1)
	assert.Equal(t, "0xbeef", export.Devices[0].HWID)
	assert.Equal(t, "ok", export.Devices[0].Status)
	assert.Equal(t, [][]any{{int64(99), "camera lost"}}, export.Errors)
}

func TestBuild_Deterministic(t *testing.T) {
	data := testData()
	for i := uint32(0); i < 20; i++ {
		data.Markers[i] = &MarkerRecord{ID: i, Samples: []core.Marker{{ID: i, Time: int64(i)}}}
	}

	a, err := json.Marshal(Build(data))
	require.NoError(t, err)
	b, err := json.Marshal(Build(data))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
