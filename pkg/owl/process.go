package owl

import (
	"strings"

	"github.com/OCAP2/owl/internal/parser"
	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/pkg/core"
)

// verbatimKeys hold values that may contain spaces and are stored as
// received instead of being tokenized.
var verbatimKeys = []string{"defaultprofile=", "profiles.json=", "profiles="}

// processEvent handles one decoded event during a poll.
func (c *Context) processEvent(e core.Event) error {
	switch {
	case e.ID == 0:
		return c.processControl(e)
	case core.IsSubEvent(e.ID):
		c.queue(c.frames.Sub(e)...)
		return nil
	}

	if !c.resolve(&e) {
		c.logger.Warn("Dropping unresolved event", "id", e.ID, "type", e.Type.String())
		return nil
	}
	if err := c.applyEvent(&e); err != nil {
		return err
	}
	if e.Type == core.TypeFrame {
		c.queue(c.frames.End(e)...)
		return nil
	}
	c.queue(&e)
	return nil
}

// resolve names an event from the server's types and names tables. Built-in
// types resolve without a table entry; the event id must be named.
func (c *Context) resolve(e *core.Event) bool {
	if name, ok := c.tables.Types.Name(uint16(e.Type)); ok {
		e.TypeName = name
	} else if e.Type.Known() {
		e.TypeName = e.Type.String()
	} else {
		return false
	}
	name, ok := c.tables.Names.Name(e.ID)
	if !ok {
		return false
	}
	e.Name = name
	return true
}

func (c *Context) queue(events ...*core.Event) {
	c.events.Push(events...)
}

func (c *Context) processControl(e core.Event) error {
	switch e.Type {
	case core.TypeError:
		switch c.phase {
		case PhaseConnecting, PhaseHandshake, PhaseInitializing:
			return &ServerError{Message: e.Text()}
		}
		e.TypeName = e.Type.String()
		e.Name = "error"
		c.logger.Warn("Server error", "message", e.Text())
		c.queue(&e)
		return nil
	case core.TypeByte:
		return c.control(e.Text())
	default:
		c.logger.Debug("Ignoring control event", "type", e.Type.String(), "size", e.Len())
		return nil
	}
}

// control dispatches a control text message by its first token.
func (c *Context) control(text string) error {
	text = strings.TrimRight(text, "\x00")
	for _, prefix := range verbatimKeys {
		if strings.HasPrefix(text, prefix) {
			key := strings.TrimSuffix(prefix, "=")
			if err := c.props.Set(key, strings.TrimPrefix(text, prefix)); err != nil {
				c.logger.Warn("Rejected property", "key", key, "error", err)
			}
			return nil
		}
	}

	hdr := parser.Header(text)
	var err error
	switch {
	case hdr.Key == "table" && hdr.Value == "types":
		var m map[string]uint16
		if m, err = parser.ParseIDMap(text); err == nil {
			c.tables.Types.Replace(m)
		}
	case hdr.Key == "table" && hdr.Value == "names":
		var m map[string]uint16
		if m, err = parser.ParseIDMap(text); err == nil {
			c.tables.Names.Replace(m)
		}
	case hdr.Key == "table" && hdr.Value == "trackers":
		var list []core.TrackerInfo
		if list, err = parser.ParseTrackerInfo(text); err == nil {
			c.info(core.TypeTrackerInfo, core.TrackerInfos(c.tables.UpsertTrackers(list)))
		}
	case hdr.Key == "table" && hdr.Value == "markers":
		var list []core.MarkerInfo
		if list, err = parser.ParseMarkerInfo(text); err == nil {
			c.info(core.TypeMarkerInfo, core.MarkerInfos(c.tables.UpsertMarkers(list)))
		}
	case hdr.Key == "table" && hdr.Value == "devices":
		var list []core.DeviceInfo
		if list, err = parser.ParseDeviceInfo(text); err == nil {
			c.info(core.TypeDeviceInfo, core.DeviceInfos(c.tables.UpdateDevices(list)))
		}
	case hdr.Key == "status" && hdr.Value == "devices":
		var list []parser.DeviceStatus
		if list, err = parser.ParseDeviceStatus(text); err == nil {
			c.info(core.TypeDeviceInfo, core.DeviceInfos(c.tables.UpdateDeviceStatus(list)))
		}
	case hdr.Key == "table" && hdr.Value == "enable":
		var flags map[string]int32
		if flags, err = parser.ParseFlags(text); err == nil {
			for name, v := range flags {
				_ = c.props.Set("enable."+name, v)
			}
		}
	case hdr.Key == "table" && hdr.Value == "pack":
		// A malformed batch clears the list rather than keeping stale packs.
		var packs []core.PackInfo
		packs, err = parser.ParsePackInfo(text)
		c.tables.SetPacks(packs)
	case hdr.Key == "filter":
		var list []core.FilterInfo
		if list, err = parser.ParseFilterInfo(text); err == nil {
			c.info(core.TypeFilterInfo, core.FilterInfos(c.tables.UpsertFilters(list)))
		}
	default:
		return c.applyTokens(parser.Tokenize(text))
	}
	if err != nil {
		c.logger.Warn("Dropping malformed table", "table", hdr.String(), "error", err)
	}
	return nil
}

// info queues a synthesized info event when the server names one.
func (c *Context) info(t core.Type, data core.Payload) {
	if data.Len() == 0 {
		return
	}
	id, ok := c.tables.Names.ID("info")
	if !ok {
		return
	}
	c.queue(&core.Event{Type: t, ID: id, TypeName: t.String(), Name: "info", Data: data})
}

func (c *Context) applyTokens(tokens []parser.Token) error {
	for _, t := range tokens {
		if t.Bare {
			continue
		}
		if err := c.setProperty(t.Key, t.Value); err != nil {
			return err
		}
	}
	return nil
}

// setProperty applies a text property update and its side effects. A
// rejected update is logged by the store and otherwise ignored.
func (c *Context) setProperty(key, value string) error {
	if err := c.props.SetText(key, value); err != nil {
		return nil
	}
	return c.propertyChanged(key)
}

func (c *Context) propertyChanged(key string) error {
	switch key {
	case "opened":
		if c.phase == PhaseHandshake && Get[int32](c, "opened") == 1 {
			return c.opened()
		}
	case "initialized":
		on := Get[int32](c, "initialized") == 1
		switch {
		case on && (c.phase == PhaseOpen || c.phase == PhaseInitializing):
			c.phase = PhaseInitialized
		case !on && (c.phase == PhaseInitialized || c.phase == PhaseFlushing):
			if f := c.frames.Flush(); f != nil {
				c.queue(f)
			}
			c.phase = PhaseOpen
		}
	case "streaming":
		return c.streamingChanged()
	}
	return nil
}

// opened completes the handshake once the server has opened the session.
func (c *Context) opened() error {
	c.phase = PhaseOpen
	if err := c.send(protocol.Handshake(ProtocolVersion, c.version)); err != nil {
		return err
	}
	if err := c.mux.OpenUDP(c.mux.LocalPort()); err != nil {
		return err
	}
	snapshot := c.props.Clone()
	snapshot.Delete("opened")
	snapshot.Delete("initialized")
	c.initial.MergeMissing(snapshot)
	c.logger.Info("Session open", "host", c.host, "offset", c.offset)
	return nil
}

func (c *Context) streamingChanged() error {
	if c.mux == nil {
		return nil
	}
	if Get[int32](c, "streaming") == StreamingBroadcast {
		return c.mux.OpenBroadcast(BroadcastPort + c.offset)
	}
	return c.mux.CloseBroadcast()
}

// applyEvent mirrors well-known named events into properties.
func (c *Context) applyEvent(e *core.Event) error {
	switch e.Type {
	case core.TypeByte:
		switch e.Name {
		case "options":
			_ = c.props.Set("options", e.Text())
			return c.applyTokens(parser.Tokenize(e.Text()))
		case "initialize":
			return c.setProperty("initialized", "1")
		case "done":
			return c.setProperty("initialized", "0")
		}
	case core.TypeFloat:
		v, _ := core.Data[core.Floats](e)
		switch e.Name {
		case "pose":
			_ = c.props.Set("pose", []float32(v))
		case "scale", "frequency":
			if len(v) > 0 {
				_ = c.props.Set(e.Name, v[0])
			}
		}
	case core.TypeInt:
		v, _ := core.Data[core.Ints](e)
		switch e.Name {
		case "streaming":
			if len(v) > 0 {
				_ = c.props.Set("streaming", v[0])
				return c.streamingChanged()
			}
		case "timebase":
			_ = c.props.Set("timebase", []int32(v))
		}
	case core.TypeCamera:
		if e.Name == "cameras" {
			v, _ := core.Data[core.Cameras](e)
			_ = c.props.Set("cameras", []core.Camera(v))
		}
	}
	return nil
}
