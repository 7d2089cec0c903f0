// Package cache holds the metadata tables a session builds from server
// table messages.
package cache

import (
	"slices"
	"sort"
	"sync"

	"github.com/OCAP2/owl/internal/parser"
	"github.com/OCAP2/owl/pkg/core"
)

// Tables caches trackers, markers, devices, filters and packs so lookups
// never go back to the server. All getters return copies.
type Tables struct {
	m        sync.Mutex
	Types    *NameCache
	Names    *NameCache
	trackers map[uint32]core.TrackerInfo
	markers  map[uint32]core.MarkerInfo
	devices  map[uint64]core.DeviceInfo
	filters  map[string]core.FilterInfo
	packs    []core.PackInfo
}

func NewTables() *Tables {
	t := &Tables{
		Types: NewNameCache(),
		Names: NewNameCache(),
	}
	t.reset()
	return t
}

func (t *Tables) reset() {
	t.trackers = make(map[uint32]core.TrackerInfo)
	t.markers = make(map[uint32]core.MarkerInfo)
	t.devices = make(map[uint64]core.DeviceInfo)
	t.filters = make(map[string]core.FilterInfo)
	t.packs = nil
}

func (t *Tables) Reset() {
	t.m.Lock()
	defer t.m.Unlock()
	t.reset()
	t.Types.Reset()
	t.Names.Reset()
}

// UpsertTrackers merges tracker records. Empty fields keep their previous
// value; a record carrying nothing but its id removes the tracker. The
// merged records are returned.
func (t *Tables) UpsertTrackers(list []core.TrackerInfo) []core.TrackerInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.TrackerInfo, 0, len(list))
	for _, in := range list {
		if in.Type == "" && in.Name == "" && in.Options == "" && in.MarkerIDs == nil {
			delete(t.trackers, in.ID)
			out = append(out, in)
			continue
		}
		cur, ok := t.trackers[in.ID]
		if !ok {
			cur = core.TrackerInfo{ID: in.ID}
		}
		if in.Type != "" {
			cur.Type = in.Type
		}
		if in.Name != "" {
			cur.Name = in.Name
		}
		if in.Options != "" {
			cur.Options = in.Options
		}
		if in.MarkerIDs != nil {
			cur.MarkerIDs = slices.Clone(in.MarkerIDs)
		}
		t.trackers[in.ID] = cur
		out = append(out, cloneTracker(cur))
	}
	return out
}

// UpsertMarkers merges marker records and moves each marker id into the
// marker list of its owning tracker.
func (t *Tables) UpsertMarkers(list []core.MarkerInfo) []core.MarkerInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.MarkerInfo, 0, len(list))
	for _, in := range list {
		cur, ok := t.markers[in.ID]
		if !ok {
			cur = core.MarkerInfo{ID: in.ID}
		}
		cur.TrackerID = in.TrackerID
		if in.Name != "" {
			cur.Name = in.Name
		}
		if in.Options != "" {
			cur.Options = in.Options
		}
		t.markers[in.ID] = cur
		t.assignMarker(cur.ID, cur.TrackerID)
		out = append(out, cur)
	}
	return out
}

func (t *Tables) assignMarker(mid, tid uint32) {
	for id, tr := range t.trackers {
		i := slices.Index(tr.MarkerIDs, mid)
		switch {
		case id == tid && i < 0:
			tr.MarkerIDs = append(slices.Clone(tr.MarkerIDs), mid)
		case id != tid && i >= 0:
			tr.MarkerIDs = slices.Delete(slices.Clone(tr.MarkerIDs), i, i+1)
		default:
			continue
		}
		t.trackers[id] = tr
	}
}

// UpdateDevices applies descriptive device fields. Status is untouched.
func (t *Tables) UpdateDevices(list []core.DeviceInfo) []core.DeviceInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.DeviceInfo, 0, len(list))
	for _, in := range list {
		cur, ok := t.devices[in.HWID]
		if !ok {
			cur = core.DeviceInfo{HWID: in.HWID}
		}
		cur.Time = in.Time
		cur.Type = in.Type
		cur.Name = in.Name
		cur.Options = in.Options
		t.devices[in.HWID] = cur
		out = append(out, cur)
	}
	return out
}

// UpdateDeviceStatus applies status updates. Descriptive fields are
// untouched.
func (t *Tables) UpdateDeviceStatus(list []parser.DeviceStatus) []core.DeviceInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.DeviceInfo, 0, len(list))
	for _, in := range list {
		cur, ok := t.devices[in.HWID]
		if !ok {
			cur = core.DeviceInfo{HWID: in.HWID}
		}
		if in.Time != 0 {
			cur.Time = in.Time
		}
		cur.Status = in.Status
		t.devices[in.HWID] = cur
		out = append(out, cur)
	}
	return out
}

func (t *Tables) UpsertFilters(list []core.FilterInfo) []core.FilterInfo {
	t.m.Lock()
	defer t.m.Unlock()
	for _, f := range list {
		t.filters[f.Name] = f
	}
	return slices.Clone(list)
}

// SetPacks replaces every pack descriptor.
func (t *Tables) SetPacks(list []core.PackInfo) {
	t.m.Lock()
	defer t.m.Unlock()
	t.packs = make([]core.PackInfo, len(list))
	for i, p := range list {
		p.IDs = slices.Clone(p.IDs)
		t.packs[i] = p
	}
}

func (t *Tables) Tracker(id uint32) (core.TrackerInfo, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	tr, ok := t.trackers[id]
	return cloneTracker(tr), ok
}

func (t *Tables) Marker(id uint32) (core.MarkerInfo, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	m, ok := t.markers[id]
	return m, ok
}

func (t *Tables) Device(hwid uint64) (core.DeviceInfo, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	d, ok := t.devices[hwid]
	return d, ok
}

func (t *Tables) Filter(name string) (core.FilterInfo, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	f, ok := t.filters[name]
	return f, ok
}

func (t *Tables) Pack(id uint16) (core.PackInfo, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	for _, p := range t.packs {
		if p.ID == id {
			p.IDs = slices.Clone(p.IDs)
			return p, true
		}
	}
	return core.PackInfo{}, false
}

// FindTracker returns the lowest-id tracker named name.
func (t *Tables) FindTracker(name string) (core.TrackerInfo, bool) {
	for _, tr := range t.Trackers() {
		if tr.Name == name {
			return tr, true
		}
	}
	return core.TrackerInfo{}, false
}

// FindDevice returns the lowest-hwid device named name.
func (t *Tables) FindDevice(name string) (core.DeviceInfo, bool) {
	for _, d := range t.Devices() {
		if d.Name == name {
			return d, true
		}
	}
	return core.DeviceInfo{}, false
}

// Trackers lists trackers ordered by id.
func (t *Tables) Trackers() []core.TrackerInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.TrackerInfo, 0, len(t.trackers))
	for _, tr := range t.trackers {
		out = append(out, cloneTracker(tr))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Markers lists markers ordered by id.
func (t *Tables) Markers() []core.MarkerInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.MarkerInfo, 0, len(t.markers))
	for _, m := range t.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Devices lists devices ordered by hwid.
func (t *Tables) Devices() []core.DeviceInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.DeviceInfo, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HWID < out[j].HWID })
	return out
}

// Filters lists filters ordered by name.
func (t *Tables) Filters() []core.FilterInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.FilterInfo, 0, len(t.filters))
	for _, f := range t.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Packs lists pack descriptors in the order the server sent them.
func (t *Tables) Packs() []core.PackInfo {
	t.m.Lock()
	defer t.m.Unlock()
	out := make([]core.PackInfo, len(t.packs))
	for i, p := range t.packs {
		p.IDs = slices.Clone(p.IDs)
		out[i] = p
	}
	return out
}

func cloneTracker(tr core.TrackerInfo) core.TrackerInfo {
	tr.MarkerIDs = slices.Clone(tr.MarkerIDs)
	return tr
}
