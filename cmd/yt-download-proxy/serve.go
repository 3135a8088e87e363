package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ytget/yt-download-proxy/internal/cleanup"
	"github.com/ytget/yt-download-proxy/internal/clipboard"
	"github.com/ytget/yt-download-proxy/internal/config"
	"github.com/ytget/yt-download-proxy/internal/download"
	"github.com/ytget/yt-download-proxy/internal/events"
	"github.com/ytget/yt-download-proxy/internal/httpapi"
	"github.com/ytget/yt-download-proxy/internal/logging"
	"github.com/ytget/yt-download-proxy/internal/metrics"
	"github.com/ytget/yt-download-proxy/internal/model"
	"github.com/ytget/yt-download-proxy/internal/platform"
	"github.com/ytget/yt-download-proxy/internal/registry"
	"github.com/ytget/yt-download-proxy/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
	playlistTimeout = 30 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := telemetry.Init(ctx, serviceName, version, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown otel")
		}
	}()

	if err := platform.CreateDirectoryIfNotExists(cfg.TempDir); err != nil {
		return err
	}

	if cfg.InstallYTDLP {
		logger.Info().Msg("installing yt-dlp")
		if err := download.Install(ctx); err != nil {
			return err
		}
	}

	m := metrics.New()
	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	reg := registry.New(cfg.JobTTL)

	scheduler := cleanup.NewScheduler(cfg.CleanupDelay, logger)
	scheduler.SetRemoveCallback(func(string) { m.CleanupRemoved.Inc() })
	defer scheduler.Stop()

	extractor := download.NewYTDLPExtractor(cfg.ProgressInterval, logger)
	svc := download.NewService(reg, extractor, scheduler, download.Options{
		TempDir:         cfg.TempDir,
		DefaultQuality:  cfg.DefaultQuality,
		DownloadTimeout: cfg.DownloadTimeout,
	}, logger)
	svc.SetUpdateCallback(func(job model.Job) {
		m.ObserveJob(job)
		if err := publisher.Publish(context.Background(), job); err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("publish job event")
		}
	})

	store, closeStore, err := openClipboard(ctx, cfg.ClipboardBucket)
	if err != nil {
		return err
	}
	defer closeStore()

	periodic, err := startPeriodic(cfg, reg, m, logger)
	if err != nil {
		return err
	}

	playlists := platform.NewPlaylistParserService()
	playlists.SetTimeout(playlistTimeout)

	api, err := httpapi.New(svc, store, playlists, m, logger, httpapi.Options{
		ServiceName:        serviceName,
		GracePeriod:        cfg.GracePeriod,
		ClipboardMaxBytes:  cfg.ClipboardMaxBytes,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("temp_dir", cfg.TempDir).
			Str("version", version).
			Bool("grace_mode", cfg.GraceMode()).
			Dur("grace_period", cfg.GracePeriod).
			Msg("starting " + serviceName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	periodic.Stop(shutdownCtx)
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown downloads")
	}
	return nil
}

func newPublisher(cfg config.Config, logger zerolog.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return events.Nop{}
	}
	pub, err := events.Connect(cfg.NATSURL, cfg.SubjectPrefix, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("job events disabled")
		return events.Nop{}
	}
	return pub
}

func openClipboard(ctx context.Context, bucketURL string) (clipboard.Store, func(), error) {
	if bucketURL == "" {
		return clipboard.NewMemoryStore(), func() {}, nil
	}
	store, err := clipboard.OpenBlobStore(ctx, bucketURL)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// startPeriodic runs the sweep once and schedules it with registry eviction
func startPeriodic(cfg config.Config, reg *registry.Registry, m *metrics.Metrics, logger zerolog.Logger) (*cleanup.Periodic, error) {
	sweeper := cleanup.NewSweeper(cfg.TempDir, cfg.SweepMinAge, reg.IsActive, logger)
	sweeper.SetRemoveCallback(func(n int) { m.SweepRemoved.Add(float64(n)) })

	runSweep := func() {
		if _, err := sweeper.Sweep(); err != nil {
			logger.Warn().Err(err).Msg("sweep incomplete")
		}
	}
	runSweep()

	periodic := cleanup.NewPeriodic(logger)
	if err := periodic.Add("sweep", cfg.SweepSchedule, runSweep); err != nil {
		return nil, err
	}
	if err := periodic.Add("evict", cfg.EvictSchedule, func() {
		if n := reg.Evict(time.Now()); n > 0 {
			logger.Debug().Int("evicted", n).Msg("registry eviction")
		}
	}); err != nil {
		return nil, err
	}
	periodic.Start()
	return periodic, nil
}
