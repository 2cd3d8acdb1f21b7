package transcription

import (
	"errors"
	"fmt"
	"time"

	"github.com/skypro1111/voicecap/internal/storage"
)

var (
	// ErrConnect is returned when the socket cannot be opened or is lost.
	ErrConnect = errors.New("transport connect failure")
	// ErrPartialWrite is returned when a socket write accepts fewer bytes than requested.
	ErrPartialWrite = errors.New("partial write")
	// ErrResponseTimeout is returned when the response stalls.
	ErrResponseTimeout = errors.New("response timeout")
	// ErrMalformedResponse is returned when the framing or JSON cannot be parsed.
	ErrMalformedResponse = errors.New("malformed response body")
	// ErrMissingTranscript is returned when the JSON has no usable transcript field.
	ErrMissingTranscript = errors.New("missing transcript field")
)

// PartialWriteError reports a write that did not reach the socket in full.
// The upload session is abandoned; nothing is resent.
type PartialWriteError struct {
	Stage   string
	Wanted  int
	Written int
	Err     error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("partial write during %s: wrote %d of %d bytes", e.Stage, e.Written, e.Wanted)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when no complete response arrived in time.
// Partial holds whatever bytes were collected.
type TimeoutError struct {
	Partial []byte
	Waited  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("response timeout after %v with %d bytes received", e.Waited, len(e.Partial))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrResponseTimeout
}

// FailureReason maps an error onto a short metrics label
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrPartialWrite):
		return "partial_write"
	case errors.Is(err, ErrResponseTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrMissingTranscript):
		return "missing_transcript"
	case errors.Is(err, storage.ErrIO):
		return "storage"
	default:
		return "other"
	}
}
