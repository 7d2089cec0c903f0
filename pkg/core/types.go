// pkg/core/types.go
package core

import "fmt"

// Type is the wire type tag of an event.
type Type uint8

// Wire type tags. Values at or above TypeFrame carry structured records.
const (
	TypeInvalid     Type = 0x00
	TypeByte        Type = 0x01
	TypeInt         Type = 0x02
	TypeFloat       Type = 0x03
	TypeError       Type = 0x7F
	TypeFrame       Type = 0x80
	TypeCamera      Type = 0x81
	TypePeak        Type = 0x82
	TypePlane       Type = 0x83
	TypeMarker      Type = 0x84
	TypeRigid       Type = 0x85
	TypeInput       Type = 0x86
	TypeMarkerInfo  Type = 0x87
	TypeTrackerInfo Type = 0x88
	TypeFilterInfo  Type = 0x89
	TypeDeviceInfo  Type = 0x8A
)

// TypeString is an alias of TypeByte; text travels as raw bytes.
const TypeString = TypeByte

var typeNames = map[Type]string{
	TypeInvalid:     "invalid",
	TypeByte:        "byte",
	TypeInt:         "int",
	TypeFloat:       "float",
	TypeError:       "error",
	TypeFrame:       "frame",
	TypeCamera:      "camera",
	TypePeak:        "peak",
	TypePlane:       "plane",
	TypeMarker:      "marker",
	TypeRigid:       "rigid",
	TypeInput:       "input",
	TypeMarkerInfo:  "markerinfo",
	TypeTrackerInfo: "trackerinfo",
	TypeFilterInfo:  "filterinfo",
	TypeDeviceInfo:  "deviceinfo",
}

// String returns the canonical lower-case name of the type.
// The server may announce its own names through the types table;
// those take precedence when events are resolved.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%02x)", uint8(t))
}

// IsRecord reports whether t carries fixed-size structured records.
func (t Type) IsRecord() bool {
	return t >= TypeCamera && t <= TypeInput
}

// ParseType returns the type whose canonical name is name.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return TypeInvalid, false
}

// Known reports whether t is one of the defined type tags.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}
