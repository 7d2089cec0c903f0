// Package frame reassembles multi-part frames from sub-events that share a
// frame id and timestamp.
package frame

import (
	"log/slog"

	"github.com/OCAP2/owl/pkg/core"
)

// Resolver fills TypeName and Name on an event and reports whether both
// could be resolved.
type Resolver func(e *core.Event) bool

// Assembler accumulates sub-events into the current frame. It owns the
// frame until a terminal frame event closes it or a sub-event with another
// id or time supersedes it.
type Assembler struct {
	logger  *slog.Logger
	resolve Resolver
	current *core.Event
}

func New(logger *slog.Logger, resolve Resolver) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if resolve == nil {
		resolve = func(*core.Event) bool { return true }
	}
	return &Assembler{logger: logger, resolve: resolve}
}

// Current returns the frame being assembled, or nil.
func (a *Assembler) Current() *core.Event {
	return a.current
}

// Sub attaches a sub-event. Its id must carry the frame id in the high
// byte; the attached child keeps only the low byte. A frame that the
// sub-event supersedes is returned.
func (a *Assembler) Sub(e core.Event) []*core.Event {
	fid := core.FrameID(e.ID)
	e.ID &= 0x00FF
	if !a.resolve(&e) {
		a.logger.Warn("Dropping unresolved sub-event",
			"frame", fid, "id", e.ID, "type", e.Type.String())
		return nil
	}

	var done []*core.Event
	if a.current != nil && (a.current.ID != fid || a.current.Time != e.Time) {
		done = append(done, a.current)
		a.current = nil
	}
	if a.current == nil {
		a.current = a.newFrame(fid, e.Time)
	}
	child := e
	a.current.Children = append(a.current.Children, &child)
	return done
}

// End handles a terminal frame event. A matching current frame is closed
// and returned. Otherwise the current frame, if any, is superseded and the
// terminal event becomes a frame of its own.
func (a *Assembler) End(e core.Event) []*core.Event {
	if a.current != nil && a.current.ID == e.ID && a.current.Time == e.Time {
		f := a.current
		a.current = nil
		if e.Name != "" {
			f.Name = e.Name
		}
		if e.TypeName != "" {
			f.TypeName = e.TypeName
		}
		f.Flags = e.Flags
		return []*core.Event{f}
	}

	var done []*core.Event
	if a.current != nil {
		done = append(done, a.current)
		a.current = nil
	}
	f := e
	f.Data = nil
	f.Children = nil
	return append(done, &f)
}

// Flush returns the frame being assembled, if any, and forgets it.
func (a *Assembler) Flush() *core.Event {
	f := a.current
	a.current = nil
	return f
}

// Reset drops the frame being assembled.
func (a *Assembler) Reset() {
	a.current = nil
}

func (a *Assembler) newFrame(id uint16, t int64) *core.Event {
	f := &core.Event{Type: core.TypeFrame, ID: id, Time: t}
	a.resolve(f)
	return f
}
