package protocol

import (
	"fmt"
	"io"

	"github.com/OCAP2/owl/pkg/core"
)

// Write seals h for payload and writes the header and payload as two
// separate writes. A write that transfers fewer bytes than requested is
// reported as io.ErrShortWrite.
func Write(w io.Writer, h Header, payload []byte) error {
	h.Size = uint32(len(payload))
	hdr := EncodeHeader(h)
	n, err := w.Write(hdr)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if n != len(hdr) {
		return io.ErrShortWrite
	}
	if len(payload) == 0 {
		return nil
	}
	n, err = w.Write(payload)
	if err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if n != len(payload) {
		return io.ErrShortWrite
	}
	return nil
}

// WriteEvent encodes e's payload and writes it with e's id, type and time.
func WriteEvent(w io.Writer, e core.Event) error {
	return Write(w, Header{ID: e.ID, Type: e.Type, Time: e.Time}, EncodePayload(e.Data))
}

// WriteText writes a control text message on the reserved id 0.
func WriteText(w io.Writer, text string) error {
	return Write(w, Header{Type: core.TypeByte}, []byte(text))
}

// FrameLen peeks at the header in buf and returns the full length of the
// frame it starts. ok is false when buf does not hold a whole header yet.
// The header is validated so a stream reader can give up on garbage.
func FrameLen(buf []byte) (n int, ok bool, err error) {
	if len(buf) < HeaderLen {
		return 0, false, nil
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return 0, false, err
	}
	if !h.Valid() {
		return 0, false, ErrChecksum
	}
	if h.Size > MaxPayload {
		return 0, false, ErrTooLarge
	}
	return HeaderLen + int(h.Size), true, nil
}

// Decode parses every frame in buf. Decoding stops at the first header
// whose checksum does not verify; the events decoded up to that point are
// returned together with ErrChecksum. The cursor always moves past the
// declared payload size, so trailing bytes a newer server appends to a
// record are skipped. A payload that does not decode drops only its own
// event; the first such error is returned after the rest of buf.
func Decode(buf []byte) ([]core.Event, error) {
	var (
		events []core.Event
		perr   error
	)
	for off := 0; off < len(buf); {
		h, err := DecodeHeader(buf[off:])
		if err != nil {
			return events, err
		}
		if !h.Valid() {
			return events, ErrChecksum
		}
		if h.Size > MaxPayload {
			return events, ErrTooLarge
		}
		start := off + HeaderLen
		end := start + int(h.Size)
		if end > len(buf) {
			return events, ErrShortPayload
		}
		e := core.Event{Type: h.Type, ID: h.ID, Time: h.Time}
		if h.Type != core.TypeFrame && h.Type != core.TypeInvalid {
			e.Data, err = DecodePayload(h.Type, buf[start:end])
			if err != nil {
				if perr == nil {
					perr = fmt.Errorf("decode %s payload: %w", h.Type, err)
				}
				off = end
				continue
			}
		}
		events = append(events, e)
		off = end
	}
	return events, perr
}
