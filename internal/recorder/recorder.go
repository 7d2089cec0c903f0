// Package recorder turns the event stream of a tracking session into
// storage backend writes.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/owl/internal/dispatcher"
	"github.com/OCAP2/owl/internal/storage"
	"github.com/OCAP2/owl/pkg/core"
	"github.com/OCAP2/owl/pkg/owl"
)

var (
	// ErrRecording is returned by Start while a recording is active.
	ErrRecording = errors.New("recording already active")
	// ErrNotRecording is returned by Stop without an active recording.
	ErrNotRecording = errors.New("not recording")
)

// Routes the recorder registers besides its fallback.
const (
	RouteInfo  = "info"
	RouteError = "error"
)

// Stats counts what the recorder has forwarded to the backend.
type Stats struct {
	Frames   uint64
	Markers  uint64
	Rigids   uint64
	Trackers uint64
	Devices  uint64
	Errors   uint64
	Skipped  uint64
	Failed   uint64
}

type counters struct {
	frames, markers, rigids   atomic.Uint64
	trackers, devices, errors atomic.Uint64
	skipped, failed           atomic.Uint64
}

// Dependencies holds what the recorder writes to and logs with.
type Dependencies struct {
	Backend storage.Backend
	Logger  *slog.Logger
	// FrameBuffer sizes the queue of the frame handler; 0 handles frames
	// synchronously.
	FrameBuffer int
}

// Recorder forwards frames, table snapshots and server errors to a
// storage backend. One Recorder records at most one session at a time.
type Recorder struct {
	deps  Dependencies
	log   *slog.Logger
	stats counters

	mu  sync.Mutex
	rec *core.Recording
}

// New creates a recorder.
func New(deps Dependencies) *Recorder {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{deps: deps, log: log.With("component", "recorder")}
}

// RegisterHandlers registers the recorder's handlers with d. Frames and
// loose sample events go through the fallback since the server may name
// them anything.
func (r *Recorder) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(RouteInfo, r.handleInfo, dispatcher.Logged())
	d.Register(RouteError, r.handleError, dispatcher.Logged())

	opts := []dispatcher.Option{dispatcher.Logged()}
	if r.deps.FrameBuffer > 0 {
		opts = append(opts, dispatcher.Buffered(r.deps.FrameBuffer), dispatcher.Blocking())
	}
	d.Fallback(r.handleSamples, opts...)
}

// Start begins a recording on the backend.
func (r *Recorder) Start(rec *core.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		return ErrRecording
	}
	if err := r.deps.Backend.StartRecording(rec); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	r.rec = rec
	r.log.Info("Recording started", "name", rec.Name, "id", rec.ID)
	return nil
}

// Snapshot writes the current tracker and device tables, so a recording
// started mid-session still knows what it is looking at.
func (r *Recorder) Snapshot(trackers []core.TrackerInfo, devices []core.DeviceInfo) error {
	var errs []error
	if len(trackers) > 0 {
		if err := r.deps.Backend.RecordTrackers(trackers); err != nil {
			errs = append(errs, err)
		} else {
			r.stats.trackers.Add(uint64(len(trackers)))
		}
	}
	if len(devices) > 0 {
		if err := r.deps.Backend.RecordDevices(devices); err != nil {
			errs = append(errs, err)
		} else {
			r.stats.devices.Add(uint64(len(devices)))
		}
	}
	return errors.Join(errs...)
}

// Stop ends the active recording. Callers with buffered handlers close
// the dispatcher first so every queued frame is written.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return ErrNotRecording
	}
	name := r.rec.Name
	r.rec = nil
	if err := r.deps.Backend.EndRecording(); err != nil {
		return fmt.Errorf("end recording: %w", err)
	}
	s := r.Stats()
	r.log.Info("Recording ended", "name", name, "frames", s.Frames, "markers", s.Markers, "rigids", s.Rigids)
	return nil
}

// Recording returns the active recording, or nil.
func (r *Recorder) Recording() *core.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Frames:   r.stats.frames.Load(),
		Markers:  r.stats.markers.Load(),
		Rigids:   r.stats.rigids.Load(),
		Trackers: r.stats.trackers.Load(),
		Devices:  r.stats.devices.Load(),
		Errors:   r.stats.errors.Load(),
		Skipped:  r.stats.skipped.Load(),
		Failed:   r.stats.failed.Load(),
	}
}

func (r *Recorder) handleSamples(e *core.Event) error {
	if e.Type == core.TypeFrame {
		r.stats.frames.Add(1)
		var errs []error
		for _, child := range e.Children {
			if err := r.record(child, e.Time); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return r.record(e, e.Time)
}

// record writes one sample or info event. Frame children carry the time
// of their frame.
func (r *Recorder) record(e *core.Event, t int64) error {
	var err error
	switch data := e.Data.(type) {
	case core.Markers:
		for i := range data {
			data[i].Time = t
		}
		if err = r.deps.Backend.RecordMarkers(&core.MarkerFrame{Time: t, Markers: data}); err == nil {
			r.stats.markers.Add(uint64(len(data)))
		}
	case core.Rigids:
		for i := range data {
			data[i].Time = t
		}
		if err = r.deps.Backend.RecordRigids(&core.RigidFrame{Time: t, Rigids: data}); err == nil {
			r.stats.rigids.Add(uint64(len(data)))
		}
	case core.TrackerInfos, core.DeviceInfos:
		return r.handleInfo(e)
	default:
		if e.Name == RouteError || e.Type == core.TypeError {
			return r.handleError(e)
		}
		r.stats.skipped.Add(1)
		return nil
	}
	if err != nil {
		r.stats.failed.Add(1)
	}
	return err
}

func (r *Recorder) handleInfo(e *core.Event) error {
	var err error
	switch data := e.Data.(type) {
	case core.TrackerInfos:
		if err = r.deps.Backend.RecordTrackers(data); err == nil {
			r.stats.trackers.Add(uint64(len(data)))
		}
	case core.DeviceInfos:
		if err = r.deps.Backend.RecordDevices(data); err == nil {
			r.stats.devices.Add(uint64(len(data)))
		}
	default:
		// marker and filter tables are only kept in the session
		r.stats.skipped.Add(1)
		return nil
	}
	if err != nil {
		r.stats.failed.Add(1)
	}
	return err
}

func (r *Recorder) handleError(e *core.Event) error {
	msg := e.Text()
	r.log.Warn("Server error", "message", msg, "time", e.Time)
	if err := r.deps.Backend.RecordError(&core.ErrorRecord{Time: e.Time, Message: msg}); err != nil {
		r.stats.failed.Add(1)
		return err
	}
	r.stats.errors.Add(1)
	return nil
}

// Session is the part of an open tracking session a recording is
// described from.
type Session interface {
	Properties() []string
	PropertyText(name string) string
}

// NewRecording describes a recording of the session at address.
func NewRecording(s Session, address, name, tag, clientVersion string, now time.Time) *core.Recording {
	props := make(map[string]string)
	for _, key := range s.Properties() {
		props[key] = s.PropertyText(key)
	}

	var freq float32
	if f, err := strconv.ParseFloat(props["frequency"], 32); err == nil {
		freq = float32(f)
	}
	profile := props["profile"]
	if profile == "" {
		profile = props["defaultprofile"]
	}

	if name == "" {
		name = "owl_" + now.Format("20060102_150405")
	}

	return &core.Recording{
		Name:          name,
		Tag:           tag,
		StartTime:     now,
		Frequency:     freq,
		ClientVersion: clientVersion,
		Server: core.Server{
			Address:  address,
			Version:  props["version"],
			API:      props["api"],
			Profile:  profile,
			Protocol: owl.ProtocolVersion,
		},
		Properties: props,
	}
}
