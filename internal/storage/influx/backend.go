package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/OCAP2/owl/pkg/core"
)

// ErrNoRecording is returned when samples arrive outside a recording.
var ErrNoRecording = errors.New("no active recording")

// Measurement names.
const (
	MeasurementRecording = "recording"
	MeasurementMarker    = "marker"
	MeasurementRigid     = "rigid"
	MeasurementTracker   = "tracker"
	MeasurementDevice    = "device"
	MeasurementError     = "server_error"
)

// Backend implements storage.Backend on top of a Manager. Every sample is
// stamped with the wall clock when it was recorded; the server frame time
// is kept as the frame_time field.
type Backend struct {
	manager *Manager
	bucket  string
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	recording *core.Recording
}

// New creates a backend writing to the manager's first bucket.
func New(manager *Manager, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		manager: manager,
		bucket:  manager.BucketNames[0],
		log:     log.With("backend", "influx"),
		now:     time.Now,
	}
}

// Init connects the manager.
func (b *Backend) Init() error {
	if err := b.manager.Connect(context.Background()); err != nil {
		return fmt.Errorf("failed to connect to influx: %w", err)
	}
	return nil
}

// Close flushes pending points and closes the connection.
func (b *Backend) Close() error {
	return b.manager.Close()
}

// StartRecording writes a start point tagged with the recording.
func (b *Backend) StartRecording(rec *core.Recording) error {
	b.mu.Lock()
	b.recording = rec
	b.mu.Unlock()

	p := influxdb2_write.NewPointWithMeasurement(MeasurementRecording).
		AddTag("recording", rec.Name).
		AddTag("server", rec.Server.Address).
		AddField("event", "start").
		AddField("id", rec.ID).
		AddField("frequency", rec.Frequency).
		SetTime(b.now())
	return b.manager.WritePoint(b.bucket, p)
}

// EndRecording writes an end point and flushes.
func (b *Backend) EndRecording() error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	p := influxdb2_write.NewPointWithMeasurement(MeasurementRecording).
		AddTag("recording", rec.Name).
		AddTag("server", rec.Server.Address).
		AddField("event", "end").
		AddField("id", rec.ID).
		SetTime(b.now())

	err = errors.Join(b.manager.WritePoint(b.bucket, p), b.manager.Flush())

	b.mu.Lock()
	b.recording = nil
	b.mu.Unlock()
	return err
}

func (b *Backend) current() (*core.Recording, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recording == nil {
		return nil, ErrNoRecording
	}
	return b.recording, nil
}

func (b *Backend) point(rec *core.Recording, measurement string, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(measurement).
		AddTag("recording", rec.Name).
		SetTime(at)
}

func (b *Backend) RecordMarkers(f *core.MarkerFrame) error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	at := b.now()
	var errs []error
	for _, m := range f.Markers {
		p := b.point(rec, MeasurementMarker, at).
			AddTag("marker_id", fmt.Sprint(m.ID)).
			AddField("frame_time", f.Time).
			AddField("flags", m.Flags).
			AddField("x", m.X).
			AddField("y", m.Y).
			AddField("z", m.Z).
			AddField("cond", m.Cond)
		if err := b.manager.WritePoint(b.bucket, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) RecordRigids(f *core.RigidFrame) error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	at := b.now()
	var errs []error
	for _, r := range f.Rigids {
		q := r.Pose
		p := b.point(rec, MeasurementRigid, at).
			AddTag("rigid_id", fmt.Sprint(r.ID)).
			AddField("frame_time", f.Time).
			AddField("flags", r.Flags).
			AddField("x", q[0]).
			AddField("y", q[1]).
			AddField("z", q[2]).
			AddField("qw", q[3]).
			AddField("qx", q[4]).
			AddField("qy", q[5]).
			AddField("qz", q[6]).
			AddField("cond", r.Cond)
		if err := b.manager.WritePoint(b.bucket, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) RecordTrackers(trackers []core.TrackerInfo) error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	at := b.now()
	var errs []error
	for _, t := range trackers {
		p := b.point(rec, MeasurementTracker, at).
			AddTag("tracker_id", fmt.Sprint(t.ID)).
			AddField("type", t.Type).
			AddField("name", t.Name).
			AddField("markers", len(t.MarkerIDs))
		if err := b.manager.WritePoint(b.bucket, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) RecordDevices(devices []core.DeviceInfo) error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	at := b.now()
	var errs []error
	for _, d := range devices {
		p := b.point(rec, MeasurementDevice, at).
			AddTag("hwid", fmt.Sprintf("0x%x", d.HWID)).
			AddField("type", d.Type).
			AddField("name", d.Name).
			AddField("status", d.Status).
			AddField("device_time", d.Time)
		if err := b.manager.WritePoint(b.bucket, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) RecordError(e *core.ErrorRecord) error {
	rec, err := b.current()
	if err != nil {
		return err
	}
	p := b.point(rec, MeasurementError, b.now()).
		AddField("frame_time", e.Time).
		AddField("message", e.Message)
	return b.manager.WritePoint(b.bucket, p)
}
