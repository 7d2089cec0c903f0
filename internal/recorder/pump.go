package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/owl/internal/dispatcher"
	"github.com/OCAP2/owl/pkg/core"
)

// Source yields the events of an open session.
type Source interface {
	NextEvent(timeout time.Duration) (*core.Event, error)
	IsOpen() bool
}

// Pump moves events from src into d until ctx is done or the session
// closes. Errors that leave the session open are logged and skipped.
func Pump(ctx context.Context, src Source, d *dispatcher.Dispatcher, timeout time.Duration, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		e, err := src.NextEvent(timeout)
		if err != nil {
			if !src.IsOpen() {
				return fmt.Errorf("session closed: %w", err)
			}
			log.Warn("Poll failed", "error", err)
			continue
		}
		if e == nil {
			continue
		}
		if err := d.Dispatch(e); err != nil {
			if errors.Is(err, dispatcher.ErrClosed) {
				return err
			}
			log.Debug("Dispatch failed", "route", dispatcher.Route(e), "error", err)
		}
	}
}
