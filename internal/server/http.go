package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voicecap/internal/config"
	"github.com/skypro1111/voicecap/internal/metrics"
	"github.com/skypro1111/voicecap/internal/pipeline"
	"github.com/skypro1111/voicecap/internal/transcription"
)

// StatsProvider reports transcription client statistics
type StatsProvider interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides HTTP endpoints for monitoring a capture cycle
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	client   StatsProvider
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics

	// Server state
	startTime   time.Time
	lastOutcome *pipeline.Outcome
	mu          sync.RWMutex
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NewHTTPServer creates a new HTTP status server. gatherer backs /metrics.
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	appConfig *config.Config, client StatsProvider, gatherer prometheus.Gatherer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		client:    client,
		gatherer:  gatherer,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP status server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP status server...")

	return h.server.Shutdown(ctx)
}

// SetLastOutcome records the result of the most recent cycle
func (h *HTTPServer) SetLastOutcome(o pipeline.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastOutcome = &o
}

func (h *HTTPServer) outcomeSummary() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.lastOutcome == nil {
		return nil
	}

	summary := map[string]interface{}{
		"stage":      h.lastOutcome.Stage,
		"ok":         h.lastOutcome.OK(),
		"elapsed":    h.lastOutcome.Elapsed.String(),
		"transcript": h.lastOutcome.Transcript,
	}
	if h.lastOutcome.Err != nil {
		summary["error"] = h.lastOutcome.Err.Error()
		summary["failure_reason"] = transcription.FailureReason(h.lastOutcome.Err)
	}
	if h.lastOutcome.Capture != nil {
		summary["capture"] = h.lastOutcome.Capture
	}
	return summary
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "voicecap",
			"version": "1.0.0",
		},
	}

	if h.client != nil {
		stats := h.client.GetStats()
		health["transcription"] = map[string]interface{}{
			"total_requests": stats.TotalRequests,
			"success_rate":   stats.SuccessRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	}
	if h.client != nil {
		stats["transcription"] = h.client.GetStats()
	}
	if last := h.outcomeSummary(); last != nil {
		stats["last_cycle"] = last
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.config == nil {
		http.Error(w, "Configuration unavailable", http.StatusServiceUnavailable)
		return
	}

	// API key is left out
	sanitizedConfig := map[string]interface{}{
		"capture": map[string]interface{}{
			"sample_rate":      h.config.Capture.SampleRate,
			"duration_seconds": h.config.Capture.DurationSeconds,
			"block_samples":    h.config.Capture.BlockSamples,
		},
		"transcription": map[string]interface{}{
			"endpoint":             h.config.Transcription.Endpoint,
			"model":                h.config.Transcription.Model,
			"chunk_size":           h.config.Transcription.ChunkSize,
			"response_timeout":     h.config.Transcription.ResponseTimeout,
			"stall_timeout":        h.config.Transcription.StallTimeout,
			"insecure_skip_verify": h.config.Transcription.InsecureSkipVerify,
		},
		"storage": map[string]interface{}{
			"root":            h.config.Storage.Root,
			"clip_path":       h.config.Storage.ClipPath,
			"transcript_path": h.config.Storage.TranscriptPath,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "voicecap",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /stats":   "Transcription statistics and last cycle",
			"GET /config":  "Service configuration without secrets",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
