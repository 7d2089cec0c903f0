package storage

import (
	"errors"

	"github.com/OCAP2/owl/pkg/core"
)

// Multi fans every call out to several backends. All backends see every
// call; the returned error joins the failures.
type Multi struct {
	backends []Backend
}

// NewMulti returns a Backend writing to each of backends in order.
func NewMulti(backends ...Backend) *Multi {
	return &Multi{backends: backends}
}

// Backends returns the wrapped backends.
func (m *Multi) Backends() []Backend {
	return m.backends
}

func (m *Multi) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Init() error  { return m.each(Backend.Init) }
func (m *Multi) Close() error { return m.each(Backend.Close) }

// StartRecording starts the recording on every backend. The first backend
// to assign an id wins, later backends see that id.
func (m *Multi) StartRecording(rec *core.Recording) error {
	return m.each(func(b Backend) error { return b.StartRecording(rec) })
}

func (m *Multi) EndRecording() error { return m.each(Backend.EndRecording) }

func (m *Multi) RecordMarkers(f *core.MarkerFrame) error {
	return m.each(func(b Backend) error { return b.RecordMarkers(f) })
}

func (m *Multi) RecordRigids(f *core.RigidFrame) error {
	return m.each(func(b Backend) error { return b.RecordRigids(f) })
}

func (m *Multi) RecordTrackers(t []core.TrackerInfo) error {
	return m.each(func(b Backend) error { return b.RecordTrackers(t) })
}

func (m *Multi) RecordDevices(d []core.DeviceInfo) error {
	return m.each(func(b Backend) error { return b.RecordDevices(d) })
}

func (m *Multi) RecordError(e *core.ErrorRecord) error {
	return m.each(func(b Backend) error { return b.RecordError(e) })
}

// Uploadable returns the first wrapped backend producing an export file.
func (m *Multi) Uploadable() (Uploadable, bool) {
	for _, b := range m.backends {
		if u, ok := b.(Uploadable); ok {
			return u, true
		}
	}
	return nil, false
}
