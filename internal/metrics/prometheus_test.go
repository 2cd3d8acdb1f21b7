package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRecordingStarted()
	m.RecordRecordingCompleted(960000, 30)
	m.RecordRecordingFailure("peripheral")
	m.SetBrightness(128)
	m.RecordUploadChunk()
	m.RecordUploadChunk()
	m.RecordUploadBytes(4096)
	m.RecordTranscriptionFailure("timeout", 1.5)

	if got := testutil.ToFloat64(m.RecordingsStarted); got != 1 {
		t.Errorf("Expected 1 recording started, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordingFailures.WithLabelValues("peripheral")); got != 1 {
		t.Errorf("Expected 1 peripheral failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.IndicatorBrightness); got != 128 {
		t.Errorf("Expected brightness 128, got %v", got)
	}
	if got := testutil.ToFloat64(m.UploadedChunks); got != 2 {
		t.Errorf("Expected 2 chunks, got %v", got)
	}
	if got := testutil.ToFloat64(m.UploadedBytes); got != 4096 {
		t.Errorf("Expected 4096 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures.WithLabelValues("timeout")); got != 1 {
		t.Errorf("Expected 1 timeout failure, got %v", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordRecordingStarted()
	m.RecordRecordingCompleted(1, 1)
	m.RecordRecordingFailure("x")
	m.RecordHeaderPatch()
	m.SetBrightness(1)
	m.RecordUploadChunk()
	m.RecordUploadBytes(1)
	m.RecordUploadFinished(1, 1)
	m.RecordTranscriptionRequest()
	m.RecordTranscriptionSuccess(1)
	m.RecordTranscriptionFailure("x", 1)
	m.RecordHTTPRequest("GET", "/", "200", 1)
	m.RecordHTTPError("GET", "/", "client_error")
}
