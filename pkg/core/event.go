// pkg/core/event.go
package core

// Payload is the data carried by an Event. The set of implementations is
// closed: one per wire type tag, plus the synthesized info tables.
type Payload interface {
	// Type returns the wire type tag matching the payload shape.
	Type() Type
	// Len returns the number of elements (bytes for Bytes).
	Len() int
}

type (
	Bytes        []byte
	Ints         []int32
	Floats       []float32
	Cameras      []Camera
	Peaks        []Peak
	Planes       []Plane
	Markers      []Marker
	Rigids       []Rigid
	Inputs       []Input
	MarkerInfos  []MarkerInfo
	TrackerInfos []TrackerInfo
	FilterInfos  []FilterInfo
	DeviceInfos  []DeviceInfo
)

func (Bytes) Type() Type        { return TypeByte }
func (Ints) Type() Type         { return TypeInt }
func (Floats) Type() Type       { return TypeFloat }
func (Cameras) Type() Type      { return TypeCamera }
func (Peaks) Type() Type        { return TypePeak }
func (Planes) Type() Type       { return TypePlane }
func (Markers) Type() Type      { return TypeMarker }
func (Rigids) Type() Type       { return TypeRigid }
func (Inputs) Type() Type       { return TypeInput }
func (MarkerInfos) Type() Type  { return TypeMarkerInfo }
func (TrackerInfos) Type() Type { return TypeTrackerInfo }
func (FilterInfos) Type() Type  { return TypeFilterInfo }
func (DeviceInfos) Type() Type  { return TypeDeviceInfo }

func (p Bytes) Len() int        { return len(p) }
func (p Ints) Len() int         { return len(p) }
func (p Floats) Len() int       { return len(p) }
func (p Cameras) Len() int      { return len(p) }
func (p Peaks) Len() int        { return len(p) }
func (p Planes) Len() int       { return len(p) }
func (p Markers) Len() int      { return len(p) }
func (p Rigids) Len() int       { return len(p) }
func (p Inputs) Len() int       { return len(p) }
func (p MarkerInfos) Len() int  { return len(p) }
func (p TrackerInfos) Len() int { return len(p) }
func (p FilterInfos) Len() int  { return len(p) }
func (p DeviceInfos) Len() int  { return len(p) }

// Event is one decoded protocol message. Frames carry their sub-events in
// Children; every other event carries Data.
type Event struct {
	Type     Type
	ID       uint16
	Flags    uint16
	Time     int64
	TypeName string
	Name     string
	Data     Payload
	Children []*Event
}

// FrameID returns the frame an id belongs to, or 0 for a top-level id.
func FrameID(id uint16) uint16 {
	return id >> 8
}

// IsSubEvent reports whether id addresses a sub-event of a frame.
func IsSubEvent(id uint16) bool {
	return id&0xFF00 != 0
}

// Find returns the first event named name in the tree rooted at e,
// searching e itself and then its children depth-first.
func (e *Event) Find(name string) *Event {
	if e == nil {
		return nil
	}
	if e.Name == name {
		return e
	}
	for _, child := range e.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Text returns a BYTE or ERROR payload as a string.
func (e *Event) Text() string {
	if e == nil {
		return ""
	}
	if b, ok := e.Data.(Bytes); ok {
		return string(b)
	}
	return ""
}

// Len returns the number of payload elements, or the number of children
// for a frame.
func (e *Event) Len() int {
	if e == nil {
		return 0
	}
	if e.Type == TypeFrame {
		return len(e.Children)
	}
	if e.Data == nil {
		return 0
	}
	return e.Data.Len()
}

// Data returns the payload of e as T. The second result is false when e is
// nil or carries a different payload shape.
func Data[T Payload](e *Event) (T, bool) {
	var zero T
	if e == nil || e.Data == nil {
		return zero, false
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
