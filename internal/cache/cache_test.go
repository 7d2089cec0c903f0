package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/owl/internal/parser"
	"github.com/OCAP2/owl/pkg/core"
)

func TestTables_UpsertTrackers(t *testing.T) {
	tables := NewTables()
	tables.UpsertTrackers([]core.TrackerInfo{
		{ID: 1, Type: "rigid", Name: "wand", MarkerIDs: []uint32{0, 1}},
		{ID: 2, Type: "point", Name: "feet"},
	})

	got, ok := tables.Tracker(1)
	require.True(t, ok)
	assert.Equal(t, "wand", got.Name)
	assert.Equal(t, []uint32{0, 1}, got.MarkerIDs)

	// Partial update keeps the other fields.
	tables.UpsertTrackers([]core.TrackerInfo{{ID: 1, Name: "wand2"}})
	got, _ = tables.Tracker(1)
	assert.Equal(t, "rigid", got.Type)
	assert.Equal(t, "wand2", got.Name)
	assert.Equal(t, []uint32{0, 1}, got.MarkerIDs)

	// Returned copies do not alias the table.
	got.MarkerIDs[0] = 99
	again, _ := tables.Tracker(1)
	assert.Equal(t, uint32(0), again.MarkerIDs[0])

	tables.UpsertTrackers([]core.TrackerInfo{{ID: 2}})
	_, ok = tables.Tracker(2)
	assert.False(t, ok)
}

func TestTables_MarkersMergeIntoTrackers(t *testing.T) {
	tables := NewTables()
	tables.UpsertTrackers([]core.TrackerInfo{
		{ID: 1, Type: "rigid", MarkerIDs: []uint32{0}},
		{ID: 2, Type: "rigid"},
	})

	tables.UpsertMarkers([]core.MarkerInfo{
		{ID: 0, TrackerID: 1, Name: "a"},
		{ID: 5, TrackerID: 1, Name: "b"},
	})
	tr, _ := tables.Tracker(1)
	assert.Equal(t, []uint32{0, 5}, tr.MarkerIDs)

	// Reassigning moves the marker.
	tables.UpsertMarkers([]core.MarkerInfo{{ID: 5, TrackerID: 2}})
	tr1, _ := tables.Tracker(1)
	tr2, _ := tables.Tracker(2)
	assert.Equal(t, []uint32{0}, tr1.MarkerIDs)
	assert.Equal(t, []uint32{5}, tr2.MarkerIDs)

	m, ok := tables.Marker(5)
	require.True(t, ok)
	assert.Equal(t, "b", m.Name)
	assert.Equal(t, uint32(2), m.TrackerID)
}

func TestTables_DeviceStatusIndependence(t *testing.T) {
	tables := NewTables()
	tables.UpdateDevices([]core.DeviceInfo{{HWID: 0xab, Time: 1, Type: "glove", Name: "left", Options: "fw=2"}})
	tables.UpdateDeviceStatus([]parser.DeviceStatus{{HWID: 0xab, Time: 2, Status: "battery=80"}})

	d, ok := tables.Device(0xab)
	require.True(t, ok)
	assert.Equal(t, core.DeviceInfo{HWID: 0xab, Time: 2, Type: "glove", Name: "left", Options: "fw=2", Status: "battery=80"}, d)

	tables.UpdateDevices([]core.DeviceInfo{{HWID: 0xab, Time: 3, Type: "glove", Name: "right"}})
	d, _ = tables.Device(0xab)
	assert.Equal(t, "battery=80", d.Status)
	assert.Equal(t, "right", d.Name)

	// Status for an unknown device creates a bare record.
	tables.UpdateDeviceStatus([]parser.DeviceStatus{{HWID: 0xcd, Status: "online"}})
	d, ok = tables.Device(0xcd)
	require.True(t, ok)
	assert.Empty(t, d.Name)
	assert.Equal(t, "online", d.Status)

	found, ok := tables.FindDevice("right")
	require.True(t, ok)
	assert.Equal(t, uint64(0xab), found.HWID)
}

func TestTables_FiltersAndPacks(t *testing.T) {
	tables := NewTables()
	tables.UpsertFilters([]core.FilterInfo{{Name: "lerp", Period: 10}, {Name: "avg", Period: 2}})
	tables.UpsertFilters([]core.FilterInfo{{Name: "lerp"}})

	f, ok := tables.Filter("lerp")
	require.True(t, ok)
	assert.Zero(t, f.Period)
	assert.Equal(t, []string{"avg", "lerp"}, []string{tables.Filters()[0].Name, tables.Filters()[1].Name})

	tables.SetPacks([]core.PackInfo{{Type: core.TypeMarker, ID: 2, IDs: []uint64{1}}})
	p, ok := tables.Pack(2)
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, p.IDs)

	tables.SetPacks(nil)
	_, ok = tables.Pack(2)
	assert.False(t, ok)
}

func TestTables_ListsAreOrdered(t *testing.T) {
	tables := NewTables()
	tables.UpsertTrackers([]core.TrackerInfo{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "a"}})
	trackers := tables.Trackers()
	require.Len(t, trackers, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{trackers[0].ID, trackers[1].ID, trackers[2].ID})

	found, ok := tables.FindTracker("a")
	require.True(t, ok)
	assert.Equal(t, uint32(1), found.ID)

	_, ok = tables.FindTracker("missing")
	assert.False(t, ok)
}

func TestTables_Reset(t *testing.T) {
	tables := NewTables()
	tables.Names.Replace(map[string]uint16{"info": 3})
	tables.UpsertTrackers([]core.TrackerInfo{{ID: 1, Name: "a"}})
	tables.Reset()

	assert.Empty(t, tables.Trackers())
	assert.Zero(t, tables.Names.Len())
}

func TestNameCache(t *testing.T) {
	c := NewNameCache()
	c.Replace(map[string]uint16{"markers": 1, "rigids": 2})

	id, ok := c.ID("rigids")
	require.True(t, ok)
	assert.Equal(t, uint16(2), id)

	name, ok := c.Name(1)
	require.True(t, ok)
	assert.Equal(t, "markers", name)

	c.Replace(map[string]uint16{"info": 3})
	_, ok = c.ID("markers")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}
