package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice capture service.
// All Record/Set methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Capture metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingFailures   *prometheus.CounterVec
	RecordedBytes       prometheus.Histogram
	RecordingDuration   prometheus.Histogram
	HeaderPatches       prometheus.Counter
	IndicatorBrightness prometheus.Gauge

	// Upload metrics
	UploadedBytes  prometheus.Counter
	UploadedChunks prometheus.Counter
	UploadDuration prometheus.Histogram
	ResponseBytes  prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_recordings_started_total",
			Help: "Total number of capture sessions started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_recordings_completed_total",
			Help: "Total number of capture sessions that produced a closed WAV file",
		}),
		RecordingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_recording_failures_total",
			Help: "Total number of failed capture sessions",
		}, []string{"reason"}),
		RecordedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_recorded_pcm_bytes",
			Help:    "PCM bytes written per capture session",
			Buckets: prometheus.ExponentialBuckets(16000, 2, 8), // 16KB to ~2MB
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_recording_duration_seconds",
			Help:    "Wall-clock duration of capture sessions",
			Buckets: prometheus.LinearBuckets(5, 5, 8), // 5s to 40s
		}),
		HeaderPatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_wav_header_patches_total",
			Help: "Total number of WAV headers rewritten because the captured length differed from the prediction",
		}),
		IndicatorBrightness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicecap_indicator_brightness",
			Help: "Current brightness (0-255) of the recording time indicator",
		}),

		// Upload metrics
		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_upload_bytes_total",
			Help: "Total number of bytes written to the transcription socket",
		}),
		UploadedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_upload_chunks_total",
			Help: "Total number of file chunks streamed to the transcription socket",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_upload_duration_seconds",
			Help:    "Time spent streaming the request body",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		ResponseBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_response_bytes",
			Help:    "Raw response bytes collected per upload",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10), // 128B to ~64KB
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_transcription_successes_total",
			Help: "Total number of transcripts extracted",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}, []string{"reason"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_transcription_duration_seconds",
			Help:    "Duration of transcription requests from dial to parsed response",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicecap_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted increments the capture sessions counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingCompleted records a finished capture session
func (m *Metrics) RecordRecordingCompleted(pcmBytes int64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordedBytes.Observe(float64(pcmBytes))
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordRecordingFailure records a failed capture session
func (m *Metrics) RecordRecordingFailure(reason string) {
	if m == nil {
		return
	}
	m.RecordingFailures.WithLabelValues(reason).Inc()
}

// RecordHeaderPatch increments the header patch counter
func (m *Metrics) RecordHeaderPatch() {
	if m == nil {
		return
	}
	m.HeaderPatches.Inc()
}

// SetBrightness mirrors the recording indicator level
func (m *Metrics) SetBrightness(level uint8) {
	if m == nil {
		return
	}
	m.IndicatorBrightness.Set(float64(level))
}

// RecordUploadChunk records one streamed file chunk
func (m *Metrics) RecordUploadChunk() {
	if m == nil {
		return
	}
	m.UploadedChunks.Inc()
}

// RecordUploadBytes adds bytes written to the socket
func (m *Metrics) RecordUploadBytes(n int) {
	if m == nil {
		return
	}
	m.UploadedBytes.Add(float64(n))
}

// RecordUploadFinished records the body streaming time and the response size
func (m *Metrics) RecordUploadFinished(durationSeconds float64, responseBytes int) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(durationSeconds)
	m.ResponseBytes.Observe(float64(responseBytes))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(reason).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
