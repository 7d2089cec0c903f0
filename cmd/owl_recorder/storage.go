package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/owl/internal/config"
	"github.com/OCAP2/owl/internal/storage"
	"github.com/OCAP2/owl/internal/storage/influx"
	"github.com/OCAP2/owl/internal/storage/memory"
	pgstorage "github.com/OCAP2/owl/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/owl/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/owl/internal/storage/websocket"
)

// createStorageBackend builds the backend named by the storage config.
// An enabled influx config mirrors every write to InfluxDB as well.
func createStorageBackend(
	storageCfg config.StorageConfig,
	influxCfg config.InfluxConfig,
	sessionStart time.Time,
	log *slog.Logger,
	zlog zerolog.Logger,
) (storage.Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	backend, err := primaryBackend(storageCfg, sessionStart, log, zlog)
	if err != nil {
		return nil, err
	}
	if !influxCfg.Enabled {
		return backend, nil
	}

	backupPath := filepath.Join(
		storageCfg.Memory.OutputDir,
		fmt.Sprintf("%s_%s.influx.gz", ProgramName, sessionStart.Format("20060102_150405")),
	)
	manager := influx.NewManager(influxCfg, zlog.With().Str("component", "influx").Logger(), backupPath)
	log.Info("InfluxDB mirror enabled", "url", manager.URL())
	return storage.NewMulti(backend, influx.New(manager, log)), nil
}

func primaryBackend(
	storageCfg config.StorageConfig,
	sessionStart time.Time,
	log *slog.Logger,
	zlog zerolog.Logger,
) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		fallback := filepath.Join(
			filepath.Dir(storageCfg.SQLite.Path),
			fmt.Sprintf("%s_%s.db", ProgramName, sessionStart.Format("20060102_150405")),
		)
		log.Info("Postgres storage backend selected", "host", storageCfg.Postgres.Host)
		return pgstorage.New(pgstorage.Config{
			Postgres:     storageCfg.Postgres,
			FallbackPath: fallback,
		}, zlog.With().Str("component", "database").Logger(), log), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.Path,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		log.Info("WebSocket storage backend selected", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:       storageCfg.WebSocket.URL,
			Secret:    storageCfg.WebSocket.Secret,
			BatchSize: storageCfg.WebSocket.BatchSize,
		}, log), nil

	case "memory", "":
		log.Info("Memory storage backend selected", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// uploadable finds the backend whose export can be sent to the archive.
func uploadable(b storage.Backend) (storage.Uploadable, bool) {
	if m, ok := b.(*storage.Multi); ok {
		return m.Uploadable()
	}
	u, ok := b.(storage.Uploadable)
	return u, ok
}
