package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a JSON handler that ships every record to a
// Graylog input at address. The returned closer releases the UDP socket.
func NewGELFHandler(address, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("gelf writer %s: %w", address, err)
	}
	w.Facility = Name
	return slog.NewJSONHandler(w, HandlerOptions(level)), w, nil
}
