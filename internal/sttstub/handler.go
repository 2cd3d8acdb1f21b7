package sttstub

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/voicecap/internal/audio"
)

const DefaultText = "This is a test transcription of the recorded clip"

// Config contains stub server configuration
type Config struct {
	Text           string        // transcript returned for every upload
	APIKey         string        // expected bearer token; empty accepts any
	Delay          time.Duration // simulated processing time
	MaxUploadBytes int64
}

// TranscriptionResponse is the JSON reply body
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Model    string  `json:"model,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Upload describes one received request
type Upload struct {
	Model       string
	FileName    string
	ContentType string
	Size        int
	WAV         *audio.WAVInfo
}

// Handler answers transcription uploads
type Handler struct {
	config Config
	logger *slog.Logger

	uploads []Upload
	mu      sync.Mutex
}

// NewHandler creates a stub transcription handler
func NewHandler(config Config, logger *slog.Logger) *Handler {
	if config.Text == "" {
		config.Text = DefaultText
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 10 << 20 // 10 MB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{config: config, logger: logger}
}

// Uploads returns the requests received so far
func (h *Handler) Uploads() []Upload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Upload(nil), h.uploads...)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "invalid_request_error")
		return
	}

	if h.config.APIKey != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != h.config.APIKey {
			writeError(w, http.StatusUnauthorized, "Incorrect API key provided", "invalid_request_error")
			return
		}
	}

	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Error parsing form: "+err.Error(), "invalid_request_error")
		return
	}

	model := r.FormValue("model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "you must provide a model parameter", "invalid_request_error")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error getting audio file", "invalid_request_error")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading audio file", "server_error")
		return
	}

	upload := Upload{
		Model:       model,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        len(audioData),
	}

	info, err := audio.InspectWAV(bytes.NewReader(audioData))
	if err != nil {
		h.logger.Warn("Uploaded file is not a readable WAV",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
	} else {
		upload.WAV = info
	}

	h.logger.Info("Transcription request received",
		slog.String("model", model),
		slog.String("filename", upload.FileName),
		slog.String("content_type", upload.ContentType),
		slog.Int("audio_size", upload.Size),
	)

	h.mu.Lock()
	h.uploads = append(h.uploads, upload)
	h.mu.Unlock()

	if h.config.Delay > 0 {
		time.Sleep(h.config.Delay)
	}

	response := TranscriptionResponse{
		Text:  h.config.Text,
		Model: model,
	}
	if upload.WAV != nil {
		response.Duration = upload.WAV.Duration.Seconds()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	h.logger.Info("Transcription response sent", slog.String("text", response.Text))
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	var resp errorResponse
	resp.Error.Message = message
	resp.Error.Type = errType

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
