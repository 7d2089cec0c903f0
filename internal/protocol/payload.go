package protocol

import (
	"encoding/binary"
	"math"

	"github.com/OCAP2/owl/pkg/core"
)

// Fixed record sizes on the wire.
const (
	CameraSize = 40
	PeakSize   = 32
	PlaneSize  = 40
	MarkerSize = 32
	RigidSize  = 48

	inputHeaderSize = 8 + 8 + 8 + 4
)

var le = binary.LittleEndian

func f32(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }

func putF32(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) }

// DecodePayload parses a payload of type t. Records beyond the last whole
// element are ignored; types it does not know are returned as raw bytes.
func DecodePayload(t core.Type, b []byte) (core.Payload, error) {
	switch t {
	case core.TypeByte, core.TypeError:
		out := make(core.Bytes, len(b))
		copy(out, b)
		return out, nil
	case core.TypeInt:
		out := make(core.Ints, len(b)/4)
		for i := range out {
			out[i] = int32(le.Uint32(b[i*4:]))
		}
		return out, nil
	case core.TypeFloat:
		out := make(core.Floats, len(b)/4)
		for i := range out {
			out[i] = f32(b[i*4:])
		}
		return out, nil
	case core.TypeCamera:
		out := make(core.Cameras, len(b)/CameraSize)
		for i := range out {
			r := b[i*CameraSize:]
			c := &out[i]
			c.ID = le.Uint32(r[0:])
			c.Flags = le.Uint32(r[4:])
			for j := range c.Pose {
				c.Pose[j] = f32(r[8+j*4:])
			}
			c.Cond = f32(r[36:])
		}
		return out, nil
	case core.TypePeak:
		out := make(core.Peaks, len(b)/PeakSize)
		for i := range out {
			r := b[i*PeakSize:]
			out[i] = core.Peak{
				ID:       le.Uint32(r[0:]),
				Flags:    le.Uint32(r[4:]),
				Time:     int64(le.Uint64(r[8:])),
				Camera:   le.Uint16(r[16:]),
				Detector: le.Uint16(r[18:]),
				Width:    le.Uint32(r[20:]),
				Pos:      f32(r[24:]),
				Amp:      f32(r[28:]),
			}
		}
		return out, nil
	case core.TypePlane:
		out := make(core.Planes, len(b)/PlaneSize)
		for i := range out {
			r := b[i*PlaneSize:]
			p := &out[i]
			p.ID = le.Uint32(r[0:])
			p.Flags = le.Uint32(r[4:])
			p.Time = int64(le.Uint64(r[8:]))
			p.Camera = le.Uint16(r[16:])
			p.Detector = le.Uint16(r[18:])
			for j := range p.Plane {
				p.Plane[j] = f32(r[20+j*4:])
			}
			p.Offset = f32(r[36:])
		}
		return out, nil
	case core.TypeMarker:
		out := make(core.Markers, len(b)/MarkerSize)
		for i := range out {
			r := b[i*MarkerSize:]
			out[i] = core.Marker{
				ID:    le.Uint32(r[0:]),
				Flags: le.Uint32(r[4:]),
				Time:  int64(le.Uint64(r[8:])),
				X:     f32(r[16:]),
				Y:     f32(r[20:]),
				Z:     f32(r[24:]),
				Cond:  f32(r[28:]),
			}
		}
		return out, nil
	case core.TypeRigid:
		out := make(core.Rigids, len(b)/RigidSize)
		for i := range out {
			r := b[i*RigidSize:]
			rb := &out[i]
			rb.ID = le.Uint32(r[0:])
			rb.Flags = le.Uint32(r[4:])
			rb.Time = int64(le.Uint64(r[8:]))
			for j := range rb.Pose {
				rb.Pose[j] = f32(r[16+j*4:])
			}
			rb.Cond = f32(r[44:])
		}
		return out, nil
	case core.TypeInput:
		return decodeInputs(b)
	default:
		out := make(core.Bytes, len(b))
		copy(out, b)
		return out, nil
	}
}

func decodeInputs(b []byte) (core.Inputs, error) {
	if len(b) < 4 {
		return core.Inputs{}, nil
	}
	count := le.Uint32(b[0:4])
	off := 4
	out := make(core.Inputs, 0, min(int(count), len(b)/inputHeaderSize))
	for i := uint32(0); i < count; i++ {
		if len(b)-off < inputHeaderSize {
			return out, ErrShortPayload
		}
		in := core.Input{
			HWID:  le.Uint64(b[off:]),
			Flags: le.Uint64(b[off+8:]),
			Time:  int64(le.Uint64(b[off+16:])),
		}
		size := int(le.Uint32(b[off+24:]))
		off += inputHeaderSize
		if size > len(b)-off {
			return out, ErrShortPayload
		}
		in.Data = make([]byte, size)
		copy(in.Data, b[off:off+size])
		off += size
		out = append(out, in)
	}
	return out, nil
}

// EncodePayload serializes p in the layout DecodePayload reads.
// Synthesized info payloads have no wire form and encode to nil.
func EncodePayload(p core.Payload) []byte {
	switch v := p.(type) {
	case nil:
		return nil
	case core.Bytes:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case core.Ints:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			le.PutUint32(out[i*4:], uint32(x))
		}
		return out
	case core.Floats:
		out := make([]byte, len(v)*4)
		for i, x := range v {
			putF32(out[i*4:], x)
		}
		return out
	case core.Cameras:
		out := make([]byte, len(v)*CameraSize)
		for i, c := range v {
			r := out[i*CameraSize:]
			le.PutUint32(r[0:], c.ID)
			le.PutUint32(r[4:], c.Flags)
			for j, x := range c.Pose {
				putF32(r[8+j*4:], x)
			}
			putF32(r[36:], c.Cond)
		}
		return out
	case core.Peaks:
		out := make([]byte, len(v)*PeakSize)
		for i, p := range v {
			r := out[i*PeakSize:]
			le.PutUint32(r[0:], p.ID)
			le.PutUint32(r[4:], p.Flags)
			le.PutUint64(r[8:], uint64(p.Time))
			le.PutUint16(r[16:], p.Camera)
			le.PutUint16(r[18:], p.Detector)
			le.PutUint32(r[20:], p.Width)
			putF32(r[24:], p.Pos)
			putF32(r[28:], p.Amp)
		}
		return out
	case core.Planes:
		out := make([]byte, len(v)*PlaneSize)
		for i, p := range v {
			r := out[i*PlaneSize:]
			le.PutUint32(r[0:], p.ID)
			le.PutUint32(r[4:], p.Flags)
			le.PutUint64(r[8:], uint64(p.Time))
			le.PutUint16(r[16:], p.Camera)
			le.PutUint16(r[18:], p.Detector)
			for j, x := range p.Plane {
				putF32(r[20+j*4:], x)
			}
			putF32(r[36:], p.Offset)
		}
		return out
	case core.Markers:
		out := make([]byte, len(v)*MarkerSize)
		for i, m := range v {
			r := out[i*MarkerSize:]
			le.PutUint32(r[0:], m.ID)
			le.PutUint32(r[4:], m.Flags)
			le.PutUint64(r[8:], uint64(m.Time))
			putF32(r[16:], m.X)
			putF32(r[20:], m.Y)
			putF32(r[24:], m.Z)
			putF32(r[28:], m.Cond)
		}
		return out
	case core.Rigids:
		out := make([]byte, len(v)*RigidSize)
		for i, rb := range v {
			r := out[i*RigidSize:]
			le.PutUint32(r[0:], rb.ID)
			le.PutUint32(r[4:], rb.Flags)
			le.PutUint64(r[8:], uint64(rb.Time))
			for j, x := range rb.Pose {
				putF32(r[16+j*4:], x)
			}
			putF32(r[44:], rb.Cond)
		}
		return out
	case core.Inputs:
		size := 4
		for _, in := range v {
			size += inputHeaderSize + len(in.Data)
		}
		out := make([]byte, size)
		le.PutUint32(out[0:], uint32(len(v)))
		off := 4
		for _, in := range v {
			le.PutUint64(out[off:], in.HWID)
			le.PutUint64(out[off+8:], in.Flags)
			le.PutUint64(out[off+16:], uint64(in.Time))
			le.PutUint32(out[off+24:], uint32(len(in.Data)))
			off += inputHeaderSize
			off += copy(out[off:], in.Data)
		}
		return out
	default:
		return nil
	}
}
