// Package pipeline runs one capture cycle: record a clip, upload it for
// transcription, and persist the recognized text.
package pipeline
