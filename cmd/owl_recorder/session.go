package main

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/owl/internal/config"
	"github.com/OCAP2/owl/pkg/owl"
)

// openSession connects to the configured server and applies the
// configured frequency and streaming mode.
func openSession(cfg config.ServerConfig, log *slog.Logger) (*owl.Context, error) {
	session := owl.New(owl.WithLogger(log), owl.WithVersion(version))

	status, err := session.Open(cfg.Address, cfg.OpenOptions)
	if status != owl.Ready {
		_ = session.Close()
		if err == nil {
			err = owl.ErrTimeout
		}
		return nil, fmt.Errorf("open %s: %w", cfg.Address, err)
	}
	log.Info("Session open", "address", cfg.Address)

	if cfg.Frequency > 0 {
		if err := session.SetFrequency(cfg.Frequency); err != nil {
			log.Warn("Failed to set frequency", "frequency", cfg.Frequency, "error", err)
		}
	}
	if cfg.Streaming > 0 {
		if err := session.SetStreaming(int32(cfg.Streaming)); err != nil {
			log.Warn("Failed to set streaming", "mode", cfg.Streaming, "error", err)
		}
	}
	return session, nil
}

// initializeSession starts streaming and waits for the server to confirm.
func initializeSession(session *owl.Context, opts string) error {
	status, err := session.Initialize(opts)
	if status == owl.Ready {
		return nil
	}
	if err == nil {
		err = owl.ErrTimeout
	}
	return fmt.Errorf("initialize: %w", err)
}

// closeSession stops streaming when the session is still up and closes it.
func closeSession(session *owl.Context, doneOpts string, log *slog.Logger) {
	if session.IsOpen() {
		if status, err := session.Done(doneOpts); status != owl.Ready {
			log.Warn("Done did not complete", "status", status, "error", err)
		}
	}
	if err := session.Close(); err != nil {
		log.Warn("Close failed", "error", err)
	}
}
