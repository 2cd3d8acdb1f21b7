// Package metrics defines the Prometheus instrumentation for capture, upload
// and transcription.
package metrics
