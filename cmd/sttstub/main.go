package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/voicecap/internal/sttstub"
)

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	path := flag.String("path", "/v1/audio/transcriptions", "Transcription endpoint path")
	text := flag.String("text", sttstub.DefaultText, "Transcript returned for every upload")
	apiKey := flag.String("api-key", "", "Expected bearer token (empty accepts any)")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := sttstub.NewHandler(sttstub.Config{
		Text:   *text,
		APIKey: *apiKey,
		Delay:  *delay,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle(*path, handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Test transcription server starting",
			slog.String("address", *addr),
			slog.String("endpoint", "http://localhost"+*addr+*path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error stopping server", slog.String("error", err.Error()))
	}
	logger.Info("Server stopped", slog.Int("uploads", len(handler.Uploads())))
}
