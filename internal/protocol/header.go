// Package protocol implements the OWL binary framing: a fixed 16-byte
// checksummed header followed by a typed payload.
package protocol

import (
	"encoding/binary"

	"github.com/OCAP2/owl/pkg/core"
)

// HeaderLen is the fixed wire header size.
const HeaderLen = 16

// MaxPayload bounds the declared payload size accepted from the wire.
const MaxPayload = 16 * 1024 * 1024

// Header is the fixed wire header. All fields are little-endian.
//
//	id:uint16 type:uint8 checksum:uint8 size:uint32 time:int64
type Header struct {
	ID       uint16
	Type     core.Type
	Checksum uint8
	Size     uint32
	Time     int64
}

// Sum returns the checksum that makes the byte sum of the encoded header
// zero modulo 256.
func (h Header) Sum() uint8 {
	h.Checksum = 0
	b := h.encode()
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return -sum
}

// Valid reports whether the header's byte sum is zero.
func (h Header) Valid() bool {
	var sum uint8
	for _, v := range h.encode() {
		sum += v
	}
	return sum == 0
}

// Seal returns h with its checksum set.
func (h Header) Seal() Header {
	h.Checksum = h.Sum()
	return h
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint16(buf[0:2], h.ID)
	buf[2] = uint8(h.Type)
	buf[3] = h.Checksum
	binary.LittleEndian.PutUint32(buf[4:8], h.Size)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Time))
	return buf
}

// EncodeHeader seals h and returns its wire form.
func EncodeHeader(h Header) []byte {
	return h.Seal().encode()
}

// DecodeHeader parses the first HeaderLen bytes of b without validating
// the checksum.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	return Header{
		ID:       binary.LittleEndian.Uint16(b[0:2]),
		Type:     core.Type(b[2]),
		Checksum: b[3],
		Size:     binary.LittleEndian.Uint32(b[4:8]),
		Time:     int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}
