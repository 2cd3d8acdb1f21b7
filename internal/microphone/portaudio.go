// Package microphone provides host capture devices for the recorder.
package microphone

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voicecap/internal/capture"
)

// PortAudio captures from the default input device through PortAudio.
type PortAudio struct {
	logger *slog.Logger
	stream *portaudio.Stream
	buf    []int32
}

// NewPortAudio creates an unopened PortAudio microphone
func NewPortAudio(logger *slog.Logger) *PortAudio {
	return &PortAudio{logger: logger}
}

// Open initialises PortAudio and starts an input stream matching p.
// Everything acquired here is released again if a later step fails.
func (m *PortAudio) Open(p capture.Params) error {
	if m.stream != nil {
		return fmt.Errorf("portaudio stream already open")
	}
	if p.WordBits != 32 {
		return fmt.Errorf("unsupported capture word size %d, only 32-bit words are supported", p.WordBits)
	}
	if p.Mode != capture.ModeMasterReceive {
		return fmt.Errorf("unsupported capture mode %d", p.Mode)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buf := make([]int32, p.BlockSamples*p.Channels)
	stream, err := portaudio.OpenDefaultStream(p.Channels, 0, float64(p.SampleRate), p.BlockSamples, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	m.stream = stream
	m.buf = buf

	m.logger.Debug("PortAudio input stream started",
		slog.Int("sample_rate", p.SampleRate),
		slog.Int("frames_per_buffer", p.BlockSamples),
	)
	return nil
}

// Read blocks until PortAudio delivers the next buffer
func (m *PortAudio) Read(block []int32) (int, error) {
	if m.stream == nil {
		return 0, fmt.Errorf("portaudio stream not open")
	}
	if err := m.stream.Read(); err != nil {
		// Overflow only means samples were dropped; the buffer is still valid.
		if err != portaudio.InputOverflowed {
			return 0, fmt.Errorf("failed to read input stream: %w", err)
		}
		m.logger.Warn("PortAudio input overflowed")
	}
	return copy(block, m.buf), nil
}

// Close stops the stream and terminates PortAudio
func (m *PortAudio) Close() error {
	if m.stream == nil {
		return nil
	}

	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close input stream: %w", err)
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to terminate portaudio: %w", err)
	}

	m.stream = nil
	m.buf = nil
	return firstErr
}

var _ capture.Microphone = (*PortAudio)(nil)
