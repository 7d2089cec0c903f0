package owl

import (
	"fmt"

	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/pkg/core"
)

// command sends a state-changing command. Slave sessions may only observe.
func (c *Context) command(text string) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}
	if c.slave {
		return ErrSlave
	}
	if err := c.send(text); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Streaming returns the streaming mode: 0 off, 1 TCP, 2 UDP, 3 broadcast.
func (c *Context) Streaming() int32 { return Get[int32](c, "streaming") }

func (c *Context) SetStreaming(mode int32) error {
	return c.SetOption("streaming", fmt.Sprint(mode))
}

// Frequency returns the server frame rate in Hz.
func (c *Context) Frequency() float32 { return Get[float32](c, "frequency") }

func (c *Context) SetFrequency(hz float32) error {
	return c.SetOption("frequency", fmt.Sprint(hz))
}

// TimeBase returns the timestamp unit as numerator and denominator of a
// second.
func (c *Context) TimeBase() (num, den int32) {
	tb := Get[[]int32](c, "timebase")
	if len(tb) < 2 {
		return 0, 0
	}
	return tb[0], tb[1]
}

func (c *Context) SetTimeBase(num, den int32) error {
	return c.SetOption("timebase", fmt.Sprintf("%d,%d", num, den))
}

func (c *Context) Scale() float32 { return Get[float32](c, "scale") }

func (c *Context) SetScale(scale float32) error {
	return c.SetOption("scale", fmt.Sprint(scale))
}

// Option returns a property as text.
func (c *Context) Option(name string) string {
	return c.props.Text(name)
}

// SetOption sends a single option to the server. The local value changes
// when the server echoes it.
func (c *Context) SetOption(name, value string) error {
	return c.command(protocol.Options(protocol.KV(name, value)))
}

// Options returns the last options string the server reported.
func (c *Context) Options() string {
	return Get[string](c, "options")
}

// SetOptions sends a space separated key=value option string.
func (c *Context) SetOptions(opts string) error {
	return c.command(protocol.Options(opts))
}

func (c *Context) CreateTracker(t core.TrackerInfo) error {
	return c.command(protocol.CreateTracker(t))
}

func (c *Context) CreateTrackers(ts ...core.TrackerInfo) error {
	for _, t := range ts {
		if err := c.CreateTracker(t); err != nil {
			return fmt.Errorf("create tracker %d: %w", t.ID, err)
		}
	}
	return nil
}

func (c *Context) DestroyTracker(id uint32) error {
	return c.command(protocol.DestroyTracker(id))
}

func (c *Context) DestroyTrackers(ids ...uint32) error {
	for _, id := range ids {
		if err := c.DestroyTracker(id); err != nil {
			return fmt.Errorf("destroy tracker %d: %w", id, err)
		}
	}
	return nil
}

// AssignMarker adds a marker to a tracker.
func (c *Context) AssignMarker(m core.MarkerInfo) error {
	return c.command(protocol.AssignMarker(m))
}

func (c *Context) AssignMarkers(ms ...core.MarkerInfo) error {
	for _, m := range ms {
		if err := c.AssignMarker(m); err != nil {
			return fmt.Errorf("assign marker %d: %w", m.ID, err)
		}
	}
	return nil
}

func (c *Context) TrackerName(id uint32, name string) error {
	return c.command(protocol.TrackerName(id, name))
}

func (c *Context) TrackerOptions(id uint32, opts string) error {
	return c.command(protocol.TrackerOptions(id, opts))
}

func (c *Context) MarkerName(id uint32, name string) error {
	return c.command(protocol.MarkerName(id, name))
}

func (c *Context) MarkerOptions(id uint32, opts string) error {
	return c.command(protocol.MarkerOptions(id, opts))
}

func (c *Context) DeviceOptions(hwid uint64, opts string) error {
	return c.command(protocol.DeviceOptions(hwid, opts))
}

// Filter configures a server-side filter. A zero period disables it.
func (c *Context) Filter(f core.FilterInfo) error {
	return c.command(protocol.Filter(f))
}

func (c *Context) Filters(fs ...core.FilterInfo) error {
	for _, f := range fs {
		if err := c.Filter(f); err != nil {
			return fmt.Errorf("filter %s: %w", f.Name, err)
		}
	}
	return nil
}

// Pack uploads pack descriptors as one batch. Servers that do not report
// an api version do not support packing.
func (c *Context) Pack(descs []core.PackInfo) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}
	if !c.props.Has("api") {
		return ErrNotSupported
	}
	return c.command(protocol.Pack(descs))
}

func (c *Context) TrackerInfo(id uint32) *core.TrackerInfo {
	t, ok := c.tables.Tracker(id)
	if !ok {
		return nil
	}
	return &t
}

func (c *Context) MarkerInfo(id uint32) *core.MarkerInfo {
	m, ok := c.tables.Marker(id)
	if !ok {
		return nil
	}
	return &m
}

func (c *Context) FilterInfo(name string) *core.FilterInfo {
	f, ok := c.tables.Filter(name)
	if !ok {
		return nil
	}
	return &f
}

func (c *Context) DeviceInfo(hwid uint64) *core.DeviceInfo {
	d, ok := c.tables.Device(hwid)
	if !ok {
		return nil
	}
	return &d
}

func (c *Context) FindTrackerInfo(name string) *core.TrackerInfo {
	t, ok := c.tables.FindTracker(name)
	if !ok {
		return nil
	}
	return &t
}

func (c *Context) FindDeviceInfo(name string) *core.DeviceInfo {
	d, ok := c.tables.FindDevice(name)
	if !ok {
		return nil
	}
	return &d
}

func (c *Context) PackInfo(id uint16) *core.PackInfo {
	p, ok := c.tables.Pack(id)
	if !ok {
		return nil
	}
	return &p
}

// TrackerInfos lists known trackers ordered by id.
func (c *Context) TrackerInfos() []core.TrackerInfo { return c.tables.Trackers() }

// MarkerInfos lists known markers ordered by id.
func (c *Context) MarkerInfos() []core.MarkerInfo { return c.tables.Markers() }

// DeviceInfos lists known devices ordered by hardware id.
func (c *Context) DeviceInfos() []core.DeviceInfo { return c.tables.Devices() }

// FilterInfos lists known filters ordered by name.
func (c *Context) FilterInfos() []core.FilterInfo { return c.tables.Filters() }

// PackInfos lists pack descriptors in server order.
func (c *Context) PackInfos() []core.PackInfo { return c.tables.Packs() }
