package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig contains microphone capture parameters
type CaptureConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	BlockSamples    int     `yaml:"block_samples"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint           string `yaml:"endpoint"`
	APIKey             string `yaml:"api_key"`
	Model              string `yaml:"model"`
	FileName           string `yaml:"file_name"`
	FileContentType    string `yaml:"file_content_type"`
	ChunkSize          int    `yaml:"chunk_size"`       // bytes
	ProgressEvery      int    `yaml:"progress_every"`   // chunks
	ConnectTimeout     int    `yaml:"connect_timeout"`  // seconds
	ResponseTimeout    int    `yaml:"response_timeout"` // seconds
	StallTimeout       int    `yaml:"stall_timeout"`    // seconds
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// StorageConfig contains file store configuration
type StorageConfig struct {
	Root           string `yaml:"root"`
	ClipPath       string `yaml:"clip_path"`
	TranscriptPath string `yaml:"transcript_path"`
}

// HTTPConfig contains HTTP status server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			SampleRate:      16000,
			DurationSeconds: 30,
			BlockSamples:    1024,
		},
		Transcription: TranscriptionConfig{
			Endpoint:        "https://api.openai.com/v1/audio/transcriptions",
			Model:           "whisper-1",
			FileName:        "audio.mp3",
			FileContentType: "audio/mp3",
			ChunkSize:       4096,
			ProgressEvery:   10,
			ConnectTimeout:  30,
			ResponseTimeout: 30,
			StallTimeout:    5,
		},
		Storage: StorageConfig{
			Root:           "./data",
			ClipPath:       "p1_rec.wav",
			TranscriptPath: "p1_trans.txt",
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file on top of the defaults, applies
// VOICECAP_* environment overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt(&cfg.Capture.SampleRate, "VOICECAP_CAPTURE_SAMPLE_RATE")
	overrideFloat(&cfg.Capture.DurationSeconds, "VOICECAP_CAPTURE_DURATION_SECONDS")
	overrideInt(&cfg.Capture.BlockSamples, "VOICECAP_CAPTURE_BLOCK_SAMPLES")
	overrideString(&cfg.Transcription.Endpoint, "VOICECAP_TRANSCRIPTION_ENDPOINT")
	overrideString(&cfg.Transcription.APIKey, "VOICECAP_TRANSCRIPTION_API_KEY")
	overrideString(&cfg.Transcription.Model, "VOICECAP_TRANSCRIPTION_MODEL")
	overrideString(&cfg.Transcription.FileName, "VOICECAP_TRANSCRIPTION_FILE_NAME")
	overrideString(&cfg.Transcription.FileContentType, "VOICECAP_TRANSCRIPTION_FILE_CONTENT_TYPE")
	overrideInt(&cfg.Transcription.ChunkSize, "VOICECAP_TRANSCRIPTION_CHUNK_SIZE")
	overrideInt(&cfg.Transcription.ResponseTimeout, "VOICECAP_TRANSCRIPTION_RESPONSE_TIMEOUT")
	overrideInt(&cfg.Transcription.StallTimeout, "VOICECAP_TRANSCRIPTION_STALL_TIMEOUT")
	overrideInt(&cfg.Transcription.ConnectTimeout, "VOICECAP_TRANSCRIPTION_CONNECT_TIMEOUT")
	overrideInt(&cfg.Transcription.ProgressEvery, "VOICECAP_TRANSCRIPTION_PROGRESS_EVERY")
	overrideBool(&cfg.Transcription.InsecureSkipVerify, "VOICECAP_TRANSCRIPTION_INSECURE_SKIP_VERIFY")
	overrideString(&cfg.Storage.Root, "VOICECAP_STORAGE_ROOT")
	overrideString(&cfg.Storage.ClipPath, "VOICECAP_STORAGE_CLIP_PATH")
	overrideString(&cfg.Storage.TranscriptPath, "VOICECAP_STORAGE_TRANSCRIPT_PATH")
	overrideBool(&cfg.HTTP.Enabled, "VOICECAP_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Address, "VOICECAP_HTTP_ADDRESS")
	overrideInt(&cfg.HTTP.Port, "VOICECAP_HTTP_PORT")
	overrideString(&cfg.Logging.Level, "VOICECAP_LOG_LEVEL")
	overrideString(&cfg.Logging.Format, "VOICECAP_LOG_FORMAT")
	overrideString(&cfg.Logging.Output, "VOICECAP_LOG_OUTPUT")

	// The conventional variable name wins only when nothing else set a key.
	if cfg.Transcription.APIKey == "" {
		overrideString(&cfg.Transcription.APIKey, "OPENAI_API_KEY")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (a *CaptureConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive, got %f", a.DurationSeconds)
	}

	if a.BlockSamples < 64 || a.BlockSamples > 8192 {
		return fmt.Errorf("block_samples must be between 64 and 8192, got %d", a.BlockSamples)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(t.Endpoint, "https://") && !strings.HasPrefix(t.Endpoint, "http://") {
		return fmt.Errorf("endpoint must be an http or https URL, got '%s'", t.Endpoint)
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.ChunkSize < 512 {
		return fmt.Errorf("chunk_size must be at least 512 bytes, got %d", t.ChunkSize)
	}

	if t.ProgressEvery < 1 {
		return fmt.Errorf("progress_every must be at least 1, got %d", t.ProgressEvery)
	}

	if t.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", t.ConnectTimeout)
	}

	if t.ResponseTimeout < 1 {
		return fmt.Errorf("response_timeout must be at least 1 second, got %d", t.ResponseTimeout)
	}

	if t.StallTimeout < 1 || t.StallTimeout > t.ResponseTimeout {
		return fmt.Errorf("stall_timeout must be between 1 and response_timeout (%d), got %d",
			t.ResponseTimeout, t.StallTimeout)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}

	if s.ClipPath == "" {
		return fmt.Errorf("clip_path cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path.
	return nil
}

// GetDuration returns the capture duration as a time.Duration
func (a *CaptureConfig) GetDuration() time.Duration {
	return time.Duration(a.DurationSeconds * float64(time.Second))
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (t *TranscriptionConfig) GetConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

// GetResponseTimeout returns the first-byte response timeout as a time.Duration
func (t *TranscriptionConfig) GetResponseTimeout() time.Duration {
	return time.Duration(t.ResponseTimeout) * time.Second
}

// GetStallTimeout returns the between-bytes response timeout as a time.Duration
func (t *TranscriptionConfig) GetStallTimeout() time.Duration {
	return time.Duration(t.StallTimeout) * time.Second
}
