package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/owl/internal/recorder"
	"github.com/OCAP2/owl/internal/storage"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// Pender is implemented by backends that queue rows before writing them.
type Pender interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger   *slog.Logger
	Recorder *recorder.Recorder
	Backend  storage.Backend
	// StatusPath is rewritten on every tick when set.
	StatusPath string
	Interval   time.Duration
}

// Status is one sample of the recorder's progress.
type Status struct {
	Time      time.Time      `json:"time"`
	Recording string         `json:"recording"`
	Stats     recorder.Stats `json:"stats"`
	Pending   int            `json:"pending"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	log       *slog.Logger
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: deps, log: log}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the recorder and backend. The returned lines are what
// the status file holds.
func (s *Service) GetStatus() (output []string, status Status) {
	status.Time = time.Now()
	if s.deps.Recorder != nil {
		status.Stats = s.deps.Recorder.Stats()
		if rec := s.deps.Recorder.Recording(); rec != nil {
			status.Recording = rec.Name
		}
	}
	if p, ok := s.deps.Backend.(Pender); ok {
		status.Pending = p.Pending()
	}

	str, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		str = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(str))
	return output, status
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusPath != "" {
		f, err := os.Create(s.deps.StatusPath)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.log.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lines, status := s.GetStatus()
				s.log.Debug("Recorder status",
					"recording", status.Recording,
					"frames", status.Stats.Frames,
					"markers", status.Stats.Markers,
					"failed", status.Stats.Failed,
					"pending", status.Pending)

				if statusFile == nil {
					continue
				}
				if err := writeStatus(statusFile, lines); err != nil {
					s.log.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

func writeStatus(f *os.File, lines []string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
