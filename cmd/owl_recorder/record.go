package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/owl/internal/api"
	"github.com/OCAP2/owl/internal/config"
	"github.com/OCAP2/owl/internal/dispatcher"
	"github.com/OCAP2/owl/internal/logging"
	"github.com/OCAP2/owl/internal/monitor"
	"github.com/OCAP2/owl/internal/recorder"
	"github.com/OCAP2/owl/internal/storage"
	"github.com/OCAP2/owl/pkg/owl"
)

type recordOptions struct {
	address     string
	name        string
	tag         string
	storageType string
	duration    time.Duration
	pollTimeout time.Duration
	frameBuffer int
	upload      bool
}

func recordCmd(a *app) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session until interrupted",
		Long: `Connect to the server, start streaming and write every frame to the
configured storage backend. Recording stops on Ctrl+C, after --duration,
or when the server closes the connection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return a.record(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "server address, host[:offset] (default from config)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "recording name (default owl_<timestamp>)")
	cmd.Flags().StringVarP(&opts.tag, "tag", "t", "", "recording tag (default from config)")
	cmd.Flags().StringVar(&opts.storageType, "storage", "", "storage backend: memory, sqlite, postgres, websocket")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long")
	cmd.Flags().DurationVar(&opts.pollTimeout, "poll-timeout", 100*time.Millisecond, "how long each poll waits for data")
	cmd.Flags().IntVar(&opts.frameBuffer, "frame-buffer", 4096, "frames queued between the session and the backend")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "upload the exported recording to the archive")

	return cmd
}

func (a *app) record(ctx context.Context, opts recordOptions) error {
	serverCfg := config.GetServerConfig()
	if opts.address != "" {
		serverCfg.Address = opts.address
	}
	storageCfg := config.GetStorageConfig()
	if opts.storageType != "" {
		storageCfg.Type = opts.storageType
	}
	tag := opts.tag
	if tag == "" {
		tag = viper.GetString("defaultTag")
	}

	var (
		active atomic.Pointer[recorder.Recorder]
		phase  atomic.Value
	)
	phase.Store(owl.PhaseClosed.String())
	log := a.slog.With(logging.SessionProvider(func() logging.SessionInfo {
		info := logging.SessionInfo{Server: serverCfg.Address, Phase: phase.Load().(string)}
		if rec := active.Load(); rec != nil {
			if r := rec.Recording(); r != nil {
				info.Recording = r.Name
			}
		}
		return info
	}))

	backend, err := createStorageBackend(storageCfg, config.GetInfluxConfig(), a.start, log, a.zlog)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			log.Error("Failed to close storage backend", "error", cerr)
		}
	}()

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	rec := recorder.New(recorder.Dependencies{
		Backend:     backend,
		Logger:      log,
		FrameBuffer: opts.frameBuffer,
	})
	rec.RegisterHandlers(d)
	active.Store(rec)

	session, err := openSession(serverCfg, log)
	if err != nil {
		d.Close()
		return err
	}
	defer closeSession(session, serverCfg.DoneOptions, log)
	phase.Store(session.Phase().String())

	if err := initializeSession(session, serverCfg.InitOptions); err != nil {
		d.Close()
		return err
	}
	phase.Store(session.Phase().String())

	recording := recorder.NewRecording(session, serverCfg.Address, opts.name, tag, version, time.Now())
	if err := rec.Start(recording); err != nil {
		d.Close()
		return err
	}
	if err := rec.Snapshot(session.TrackerInfos(), session.DeviceInfos()); err != nil {
		log.Warn("Failed to record table snapshot", "error", err)
	}

	mon := monitor.NewService(monitor.Dependencies{
		Logger:     log,
		Recorder:   rec,
		Backend:    backend,
		StatusPath: filepath.Join(viper.GetString("logsDir"), "status.txt"),
	})
	if err := mon.Start(); err != nil {
		log.Warn("Status monitor not started", "error", err)
	}
	defer mon.Stop()

	fmt.Printf("Recording %q from %s, press Ctrl+C to stop\n", recording.Name, serverCfg.Address)
	pumpErr := recorder.Pump(ctx, session, d, opts.pollTimeout, log)
	phase.Store(session.Phase().String())

	d.Close()
	stopErr := rec.Stop()

	s := rec.Stats()
	fmt.Printf("Recorded %d frames: %d markers, %d rigids, %d server errors, %d failed writes\n",
		s.Frames, s.Markers, s.Rigids, s.Errors, s.Failed)

	if opts.upload && stopErr == nil {
		if err := a.upload(backend, log); err != nil {
			log.Error("Upload failed", "error", err)
			stopErr = err
		}
	}
	return errors.Join(pumpErr, stopErr)
}

// upload sends the exported recording to the archive.
func (a *app) upload(backend storage.Backend, log *slog.Logger) error {
	u, ok := uploadable(backend)
	if !ok || u.GetExportedFilePath() == "" {
		return errors.New("storage backend produced no export to upload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("archive unreachable: %w", err)
	}
	path := u.GetExportedFilePath()
	if err := client.Upload(ctx, path, u.GetExportMetadata()); err != nil {
		return err
	}
	log.Info("Uploaded recording", "path", path)
	return nil
}
