package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/voicecap/internal/capture"
	"github.com/skypro1111/voicecap/internal/config"
	"github.com/skypro1111/voicecap/internal/metrics"
	"github.com/skypro1111/voicecap/internal/microphone"
	"github.com/skypro1111/voicecap/internal/pipeline"
	"github.com/skypro1111/voicecap/internal/server"
	"github.com/skypro1111/voicecap/internal/storage"
	"github.com/skypro1111/voicecap/internal/transcription"
)

const (
	serviceName    = "voicecap"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults and environment only when empty)")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	clipPath := flag.String("clip", "", "Clip path inside the storage root (overrides storage.clip_path)")
	transcriptPath := flag.String("transcript", "", "Transcript path inside the storage root (overrides storage.transcript_path)")
	record := flag.Bool("record", true, "Record a new clip; false transcribes the existing clip")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load env file %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *clipPath != "" {
		cfg.Storage.ClipPath = *clipPath
	}
	if *transcriptPath != "" {
		cfg.Storage.TranscriptPath = *transcriptPath
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Duration("duration", cfg.Capture.GetDuration()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("model", cfg.Transcription.Model),
		slog.Bool("insecure_skip_verify", cfg.Transcription.InsecureSkipVerify),
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	store, err := storage.NewDir(cfg.Storage.Root)
	if err != nil {
		logger.Error("Failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:           cfg.Transcription.Endpoint,
		APIKey:             cfg.Transcription.APIKey,
		Model:              cfg.Transcription.Model,
		FileName:           cfg.Transcription.FileName,
		FileContentType:    cfg.Transcription.FileContentType,
		ChunkSize:          cfg.Transcription.ChunkSize,
		ProgressEvery:      cfg.Transcription.ProgressEvery,
		ConnectTimeout:     cfg.Transcription.GetConnectTimeout(),
		ResponseTimeout:    cfg.Transcription.GetResponseTimeout(),
		StallTimeout:       cfg.Transcription.GetStallTimeout(),
		InsecureSkipVerify: cfg.Transcription.InsecureSkipVerify,
	}, nil, store, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var recorder pipeline.Recorder
	if *record {
		rec, err := capture.NewRecorder(capture.Config{
			SampleRate:   cfg.Capture.SampleRate,
			Duration:     cfg.Capture.GetDuration(),
			BlockSamples: cfg.Capture.BlockSamples,
		}, microphone.NewPortAudio(logger), store, appMetrics, appMetrics, logger)
		if err != nil {
			logger.Error("Failed to create recorder", slog.String("error", err.Error()))
			os.Exit(1)
		}
		recorder = rec
	}

	p, err := pipeline.New(pipeline.Config{SkipRecording: !*record}, recorder, client, store, logger)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Enabled: cfg.HTTP.Enabled,
		}, logger, cfg, client, registry, appMetrics)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	outcome := p.Run(ctx, pipeline.Cycle{
		ClipPath:       cfg.Storage.ClipPath,
		TranscriptPath: cfg.Storage.TranscriptPath,
	})

	if httpServer != nil {
		httpServer.SetLastOutcome(outcome)

		logger.Info("Cycle finished, serving status until interrupted")
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := client.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	if !outcome.OK() {
		logger.Error("Service stopped after failed cycle", slog.String("stage", string(outcome.Stage)))
		os.Exit(1)
	}

	fmt.Println(outcome.Transcript)
	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// The transcript goes to stdout, so logs default to stderr.
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
