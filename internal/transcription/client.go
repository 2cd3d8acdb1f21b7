package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voicecap/internal/metrics"
	"github.com/skypro1111/voicecap/internal/storage"
)

const (
	DefaultEndpoint        = "https://api.openai.com/v1/audio/transcriptions"
	DefaultChunkSize       = 4096
	DefaultProgressEvery   = 10
	DefaultConnectTimeout  = 30 * time.Second
	DefaultResponseTimeout = 30 * time.Second
	DefaultStallTimeout    = 5 * time.Second
)

// Config contains transcription client configuration
type Config struct {
	Endpoint        string
	APIKey          string
	Model           string
	FileName        string
	FileContentType string

	ChunkSize     int // bytes per socket write while streaming the file
	ProgressEvery int // log progress every N chunks

	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration // wait for the first response byte
	StallTimeout    time.Duration // wait between response bytes

	InsecureSkipVerify bool
}

// Client streams audio files to the transcription API
type Client struct {
	config  Config
	target  endpoint
	dialer  Dialer
	store   storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	newBoundary func() string
	clock       func() time.Time

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration
	lastFailure     string

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastFailure     string        `json:"last_failure,omitempty"`
}

// NewClient creates a transcription client. A nil dialer selects one from the
// endpoint scheme; m may be nil.
func NewClient(config Config, dialer Dialer, store storage.Store, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	target, err := parseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.FileName == "" {
		config.FileName = DefaultFileName
	}
	if config.FileContentType == "" {
		config.FileContentType = DefaultFileContentType
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = DefaultProgressEvery
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultResponseTimeout
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultStallTimeout
	}

	if dialer == nil {
		if dialer, err = NewDialer(config); err != nil {
			return nil, err
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:      config,
		target:      target,
		dialer:      dialer,
		store:       store,
		metrics:     m,
		logger:      logger,
		newBoundary: NewBoundary,
		clock:       time.Now,
	}, nil
}

// Transcribe uploads the audio file at path and returns the parsed response.
// Failures are not retried.
func (c *Client) Transcribe(ctx context.Context, path string) (*Response, error) {
	startTime := c.clock()
	c.incrementTotalRequests()
	c.metrics.RecordTranscriptionRequest()

	resp, err := c.transcribe(ctx, path)
	elapsed := c.clock().Sub(startTime)
	if err != nil {
		c.recordFailure(err)
		c.metrics.RecordTranscriptionFailure(FailureReason(err), elapsed.Seconds())
		return resp, err
	}

	c.recordSuccess(elapsed)
	c.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
	return resp, nil
}

func (c *Client) transcribe(ctx context.Context, path string) (*Response, error) {
	raw, err := c.Upload(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		c.logger.Warn("Unusable transcription response", slog.String("error", err.Error()))
		c.logger.Debug("Raw response", slog.String("raw", string(raw)))
		return resp, err
	}

	c.logger.Info("Transcription received",
		slog.String("path", path),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("text_length", len(resp.Text)),
	)
	return resp, nil
}

// Upload streams the file at path as a multipart/form-data POST and returns
// the raw response bytes (status line, headers and body). On a response
// timeout the partial bytes are returned together with a *TimeoutError.
func (c *Client) Upload(ctx context.Context, path string) ([]byte, error) {
	size, err := c.store.Size(path)
	if err != nil {
		return nil, err
	}

	file, err := c.store.Open(path)
	if err != nil {
		return nil, err
	}
	fileOpen := true
	defer func() {
		if fileOpen {
			file.Close()
		}
	}()

	c.logger.Info("Connecting to transcription endpoint",
		slog.String("address", c.target.address),
		slog.Int64("file_size", size),
	)

	conn, err := c.dialer.Dial(ctx, c.target.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, c.target.address, err)
	}

	form := Form{
		Boundary:        c.newBoundary(),
		Model:           c.config.Model,
		FileName:        c.config.FileName,
		FileContentType: c.config.FileContentType,
	}
	session := newUploadSession(conn, form, size, c.metrics)
	defer session.close()

	header := RequestHeader(c.target.host, c.target.path, c.config.APIKey, form.ContentType(), session.contentLength)
	if err := session.write("headers", []byte(header)); err != nil {
		return nil, err
	}
	if err := session.write("multipart head", []byte(session.form.Head())); err != nil {
		return nil, err
	}

	uploadStart := c.clock()
	sent, err := c.streamFile(session, file, path)
	if err != nil {
		return nil, err
	}
	if sent != size {
		return nil, fmt.Errorf("%w: %s changed during upload: sent %d of %d bytes", storage.ErrIO, path, sent, size)
	}

	if err := session.write("multipart tail", []byte(session.form.Tail())); err != nil {
		return nil, err
	}

	fileOpen = false
	if err := file.Close(); err != nil {
		c.logger.Warn("Failed to close audio file", slog.String("path", path), slog.String("error", err.Error()))
	}

	c.logger.Info("Upload complete, waiting for response",
		slog.Int64("bytes_sent", session.bytesSent),
		slog.Int64("content_length", session.contentLength),
	)

	raw, err := collectResponse(session.conn, c.config.ResponseTimeout, c.config.StallTimeout, c.clock)
	c.metrics.RecordUploadFinished(c.clock().Sub(uploadStart).Seconds(), len(raw))
	return raw, err
}

// streamFile copies the file to the socket one chunk per write.
func (c *Client) streamFile(session *uploadSession, file io.Reader, path string) (int64, error) {
	buf := make([]byte, c.config.ChunkSize)
	var sent int64
	chunks := 0

	for {
		n, rerr := file.Read(buf)
		if n > 0 {
			if err := session.write(fmt.Sprintf("chunk %d", chunks+1), buf[:n]); err != nil {
				c.logger.Error("Chunk write failed, abandoning upload",
					slog.Int("chunk", chunks+1),
					slog.String("error", err.Error()),
				)
				return sent, err
			}
			sent += int64(n)
			chunks++
			c.metrics.RecordUploadChunk()

			if chunks%c.config.ProgressEvery == 0 {
				c.logger.Info("Upload progress",
					slog.Int("chunks", chunks),
					slog.Int64("bytes", sent),
				)
			}
		}

		if rerr == io.EOF {
			return sent, nil
		}
		if rerr != nil {
			return sent, fmt.Errorf("%w: read %s: %v", storage.ErrIO, path, rerr)
		}
	}
}

// uploadSession owns the socket for a single request.
type uploadSession struct {
	conn          Conn
	form          Form
	contentLength int64
	bytesSent     int64
	closed        bool
	metrics       *metrics.Metrics
}

func newUploadSession(conn Conn, form Form, fileSize int64, m *metrics.Metrics) *uploadSession {
	return &uploadSession{
		conn:          conn,
		form:          form,
		contentLength: form.ContentLength(fileSize),
		metrics:       m,
	}
}

// write sends p in one call. Anything short of a full write closes the
// socket and fails the session.
func (s *uploadSession) write(stage string, p []byte) error {
	n, err := s.conn.Write(p)
	if n > 0 {
		s.bytesSent += int64(n)
		s.metrics.RecordUploadBytes(n)
	}
	if n != len(p) || err != nil {
		s.close()
		return &PartialWriteError{Stage: stage, Wanted: len(p), Written: n, Err: err}
	}
	return nil
}

func (s *uploadSession) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) recordSuccess(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

func (c *Client) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
	c.lastFailure = err.Error()
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		LastFailure:     c.lastFailure,
	}
}
