package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/owl/internal/config"
	"github.com/OCAP2/owl/internal/logging"
	intOtel "github.com/OCAP2/owl/internal/otel"
)

// app holds the process-wide services every subcommand shares.
type app struct {
	configDir string
	logLevel  string

	start   time.Time
	slog    *logging.SlogManager
	log     *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider
	logFile *os.File
	closers []io.Closer
}

// setup loads the config and builds the logging stack: a console handler,
// the session log file, and the optional GELF and OTel sinks.
func (a *app) setup() error {
	a.start = time.Now()
	a.slog = logging.NewSlogManager()

	cfgErr := config.Load(a.configDir)

	level := viper.GetString("logLevel")
	if a.logLevel != "" {
		level = a.logLevel
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, ProgramName, a.start)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f

	var otelErr error
	a.otel, otelErr = intOtel.New(intOtel.FromConfig(config.GetOTelConfig(), version, f))

	extra := []slog.Handler{slog.NewTextHandler(os.Stderr, logging.HandlerOptions(level))}
	var gelfErr error
	if viper.GetBool("graylog.enabled") {
		h, closer, err := logging.NewGELFHandler(viper.GetString("graylog.address"), level)
		if err != nil {
			gelfErr = err
		} else {
			extra = append(extra, h)
			a.closers = append(a.closers, closer)
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	a.slog.Setup(f, level, provider, extra...)
	a.log = a.slog.Logger()
	slog.SetDefault(a.log)
	a.zlog = newZerolog(level, f)

	if cfgErr != nil {
		a.log.Warn("Failed to load config, using defaults", "error", cfgErr)
	}
	if otelErr != nil {
		a.log.Error("Failed to initialize OTel provider", "error", otelErr)
	}
	if gelfErr != nil {
		a.log.Error("Failed to set up GELF logging", "error", gelfErr)
	}
	a.log.Debug("Logging to file", "path", logPath, "version", version)
	return nil
}

// newZerolog builds the logger used by the database and influx managers,
// writing console format to stderr and plain text to file.
func newZerolog(level string, file io.Writer) zerolog.Logger {
	var lvl zerolog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = zerolog.DebugLevel
	case "WARN":
		lvl = zerolog.WarnLevel
	case "ERROR":
		lvl = zerolog.ErrorLevel
	case "TRACE":
		lvl = zerolog.TraceLevel
	default:
		lvl = zerolog.InfoLevel
	}

	mlw := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
		zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true},
	)
	return zerolog.New(mlw).Level(lvl).With().Timestamp().Logger()
}

func (a *app) shutdown() {
	if a.slog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.slog.Flush(ctx); err != nil {
		a.log.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
