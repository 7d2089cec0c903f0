// pkg/core/tracking.go
package core

// Marker is a single tracked LED position.
type Marker struct {
	ID    uint32
	Flags uint32
	Time  int64
	X     float32
	Y     float32
	Z     float32
	Cond  float32 // quality, negative when not seen
}

// Rigid is a rigid body pose: translation xyz followed by quaternion wxyz.
type Rigid struct {
	ID    uint32
	Flags uint32
	Time  int64
	Pose  [7]float32
	Cond  float32
}

// Camera is a calibrated camera pose.
type Camera struct {
	ID    uint32
	Flags uint32
	Pose  [7]float32
	Cond  float32
}

// Peak is a raw 1-D detection on a linear detector.
type Peak struct {
	ID       uint32
	Flags    uint32
	Time     int64
	Camera   uint16
	Detector uint16
	Width    uint32
	Pos      float32
	Amp      float32
}

// Plane is a plane equation through a detection.
type Plane struct {
	ID       uint32
	Flags    uint32
	Time     int64
	Camera   uint16
	Detector uint16
	Plane    [4]float32
	Offset   float32
}

// Input is an opaque sample from a tracked hardware device.
type Input struct {
	HWID  uint64
	Flags uint64
	Time  int64
	Data  []byte
}
