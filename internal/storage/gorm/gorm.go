// Package gormstorage implements storage.Backend on any GORM dialect with
// internal queues and a background writer goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OCAP2/owl/internal/database"
	"github.com/OCAP2/owl/internal/model"
	"github.com/OCAP2/owl/internal/model/convert"
	"github.com/OCAP2/owl/internal/queue"
	"github.com/OCAP2/owl/pkg/core"
)

// ErrNoRecording is returned when samples arrive outside a recording.
var ErrNoRecording = errors.New("no active recording")

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

const batchSize = 1000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	// Now stamps metadata rows; defaults to time.Now.
	Now func() time.Time
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Markers  *queue.Queue[model.MarkerSample]
	Rigids   *queue.Queue[model.RigidSample]
	Trackers *queue.Queue[model.Tracker]
	Devices  *queue.Queue[model.Device]
	Errors   *queue.Queue[model.ServerError]
}

func newQueues() *queues {
	return &queues{
		Markers:  queue.New[model.MarkerSample](),
		Rigids:   queue.New[model.RigidSample](),
		Trackers: queue.New[model.Tracker](),
		Devices:  queue.New[model.Device](),
		Errors:   queue.New[model.ServerError](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues
	log    *slog.Logger

	mu          sync.Mutex
	recordingID uuid.UUID

	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
		log:    log.With("backend", "gorm"),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writer()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// StartRecording inserts the recording row and makes it the target of
// every following sample. An empty rec.ID is filled with a new UUID.
func (b *Backend) StartRecording(rec *core.Recording) error {
	row, err := convert.CoreToRecording(*rec)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	rec.ID = row.ID.String()

	b.mu.Lock()
	b.recordingID = row.ID
	b.mu.Unlock()

	b.log.Info("Recording started", "id", rec.ID, "name", rec.Name)
	return nil
}

// EndRecording writes pending rows and stamps the recording's end time.
func (b *Backend) EndRecording() error {
	id, err := b.current()
	if err != nil {
		return err
	}
	flushErr := b.Flush()

	end := b.deps.Now()
	if err := b.deps.DB.Model(&model.Recording{}).Where("id = ?", id).Update("end_time", end).Error; err != nil {
		return errors.Join(flushErr, fmt.Errorf("failed to close recording: %w", err))
	}

	b.mu.Lock()
	b.recordingID = uuid.Nil
	b.mu.Unlock()

	b.log.Info("Recording ended", "id", id)
	return flushErr
}

// RecordingID returns the id of the active recording, or uuid.Nil.
func (b *Backend) RecordingID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordingID
}

func (b *Backend) current() (uuid.UUID, error) {
	id := b.RecordingID()
	if id == uuid.Nil {
		return id, ErrNoRecording
	}
	return id, nil
}

func (b *Backend) RecordMarkers(f *core.MarkerFrame) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	b.queues.Markers.Push(convert.CoreToMarkerSamples(id, *f)...)
	return nil
}

func (b *Backend) RecordRigids(f *core.RigidFrame) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	b.queues.Rigids.Push(convert.CoreToRigidSamples(id, *f)...)
	return nil
}

func (b *Backend) RecordTrackers(trackers []core.TrackerInfo) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	now := b.deps.Now()
	for _, t := range trackers {
		b.queues.Trackers.Push(convert.CoreToTracker(id, now, t))
	}
	return nil
}

func (b *Backend) RecordDevices(devices []core.DeviceInfo) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	now := b.deps.Now()
	for _, d := range devices {
		b.queues.Devices.Push(convert.CoreToDevice(id, now, d))
	}
	return nil
}

func (b *Backend) RecordError(e *core.ErrorRecord) error {
	id, err := b.current()
	if err != nil {
		return err
	}
	b.queues.Errors.Push(convert.CoreToServerError(id, b.deps.Now(), *e))
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	q := b.queues
	return q.Markers.Len() + q.Rigids.Len() + q.Trackers.Len() + q.Devices.Len() + q.Errors.Len()
}

// Flush writes every queued row. Rows of a failed batch are requeued.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db := b.deps.DB
	return errors.Join(
		writeQueue(db, b.queues.Trackers, "trackers"),
		writeQueue(db, b.queues.Devices, "devices"),
		writeQueue(db, b.queues.Markers, "marker samples"),
		writeQueue(db, b.queues.Rigids, "rigid samples"),
		writeQueue(db, b.queues.Errors, "server errors"),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		q.Push(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}

// writer periodically drains the queues into the DB.
func (b *Backend) writer() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			pending := b.Pending()
			if pending == 0 {
				continue
			}
			if err := b.Flush(); err != nil {
				b.log.Error("DB write failed", "error", err)
				continue
			}
			b.log.Debug("DB write complete", "rows", pending, "duration", time.Since(start))
		}
	}
}
