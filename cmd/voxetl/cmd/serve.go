package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/voxetl/voxetl/internal/http"
	"github.com/voxetl/voxetl/internal/http/handlers"
	"github.com/voxetl/voxetl/internal/janitor"
	"github.com/voxetl/voxetl/internal/media"
	"github.com/voxetl/voxetl/internal/pipeline"
	"github.com/voxetl/voxetl/internal/ratelimit"
	"github.com/voxetl/voxetl/internal/storage"
	"github.com/voxetl/voxetl/internal/task"
	"github.com/voxetl/voxetl/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voxetl server",
	Long: `Start the voxetl HTTP server.

The server provides:
- POST /tasks for submitting a URL and streaming progress over SSE
- GET /tasks and GET /tasks/{id} for inspecting tasks
- Health check endpoints and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Transcription.APIKey == "" {
		return fmt.Errorf("transcription.api_key is required (set VOXETL_TRANSCRIPTION_API_KEY)")
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	initLogging(cfg)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewMinIOStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing object store: %w", err)
	}

	tools, err := media.DetectTools(cfg.Media)
	if err != nil {
		return fmt.Errorf("detecting media tools: %w", err)
	}
	logger.Info("media tools detected",
		slog.String("ffmpeg", tools.FFmpegPath),
		slog.String("ffprobe", tools.FFprobePath),
		slog.String("yt_dlp", tools.YTDLPPath),
	)

	extractor := media.NewExtractor(tools.YTDLPPath, media.ExtractorOptions{
		SampleRate: cfg.Transcription.AudioSettings.SampleRate,
		Channels:   cfg.Transcription.AudioSettings.Channels,
		MaxRetries: cfg.Download.MaxRetries,
		RetryDelay: cfg.Download.RetryDelay,
		Timeout:    cfg.Download.Timeout,
	}, logger)
	prober := media.NewProber(tools.FFprobePath).WithTimeout(cfg.Media.ToolTimeout)
	transformer := media.NewTransformer(tools.FFmpegPath, cfg.Media.ToolTimeout)

	registry := task.NewRegistry()
	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)

	downloader := pipeline.NewDownloader(store, extractor, logger).
		WithVerifyTimeout(cfg.Download.VerifyTimeout)
	splitter := pipeline.NewSplitter(store, prober, transformer, cfg.Transcription, logger)
	transcriber := pipeline.NewTranscriber(store, transformer, limiter, cfg.Transcription, cfg.Download.RetryDelay, logger)

	pool := pipeline.NewPool(registry, downloader, splitter, transcriber,
		cfg.Worker.MaxWorkers, cfg.Worker.MaxQueueSize, logger)
	streamer := pipeline.NewStreamer()

	sweeper := janitor.New(cfg.Janitor, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer sweeper.Stop()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	tasksHandler := handlers.NewTasksHandler(pool, registry, streamer, logger)
	tasksHandler.RegisterRoutes(server.Router())
	tasksHandler.Register(server.API())

	handlers.NewStressHandler(cfg.Storage.Endpoint, logger).Register(server.API())

	handlers.NewHealthHandler(version.Version, cfg.Environment, cfg.Debug).
		WithPool(pool).
		WithTaskCount(registry.Len).
		Register(server.API())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting voxetl server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
		slog.Int("workers", cfg.Worker.MaxWorkers),
	)

	serveErr := server.ListenAndServe(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker pool shutdown incomplete", slog.Any("error", err))
	}

	return serveErr
}
