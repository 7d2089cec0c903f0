// Package postgres implements the storage.Backend interface on PostgreSQL.
// When the server is unreachable it records into an in-memory SQLite
// database and dumps it to the fallback path instead.
package postgres

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/owl/internal/config"
	"github.com/OCAP2/owl/internal/database"
	gormstorage "github.com/OCAP2/owl/internal/storage/gorm"
)

// Config holds configuration for the Postgres storage backend.
type Config struct {
	Postgres     config.PostgresConfig
	FallbackPath string // SQLite dump target used when Postgres is down
}

// Backend embeds the GORM backend on the connection the manager opened.
// The embedded backend exists only after Init.
type Backend struct {
	*gormstorage.Backend
	cfg     Config
	manager *database.Manager
	log     *slog.Logger
}

// New creates a new Postgres storage backend. dbLog receives the
// connection manager's messages.
func New(cfg Config, dbLog zerolog.Logger, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		cfg:     cfg,
		manager: database.NewManager(dbLog, cfg.FallbackPath),
		log:     log,
	}
}

// Init connects, migrates the schema, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if err := b.manager.Connect(b.cfg.Postgres); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     b.manager.DB,
		Logger: b.log,
	})
	return b.Backend.Init()
}

// Fallback reports whether the backend is writing to local SQLite.
func (b *Backend) Fallback() bool {
	return b.manager.ShouldSaveLocal
}

// EndRecording closes the recording, dumping the fallback DB if in use.
func (b *Backend) EndRecording() error {
	return errors.Join(b.Backend.EndRecording(), b.manager.DumpMemoryToDisk())
}

// Close stops the writer, flushes, and releases the connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return errors.Join(
		b.Backend.Close(),
		b.manager.DumpMemoryToDisk(),
		b.manager.Close(),
	)
}
