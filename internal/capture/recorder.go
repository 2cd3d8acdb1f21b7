package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voicecap/internal/audio"
	"github.com/skypro1111/voicecap/internal/metrics"
	"github.com/skypro1111/voicecap/internal/storage"
)

// ErrPeripheralUnavailable is returned when the microphone cannot be acquired,
// initialised or read.
var ErrPeripheralUnavailable = errors.New("capture peripheral unavailable")

const (
	DefaultSampleRate   = 16000
	DefaultDuration     = 30 * time.Second
	DefaultBlockSamples = 1024

	// CaptureWordBits is the sample word size the peripheral is opened with.
	CaptureWordBits = 32
	// BitsPerSample is the stored PCM depth after down-conversion.
	BitsPerSample = 16
	Channels      = 1

	bytesPerSample = BitsPerSample / 8
)

// Mode selects the bus role of the peripheral.
type Mode int

const (
	// ModeMasterReceive drives the clocks and receives data.
	ModeMasterReceive Mode = iota
)

// Params is the fixed peripheral configuration for a capture session.
type Params struct {
	SampleRate   int
	WordBits     int
	Channels     int
	BlockSamples int
	Mode         Mode
}

// Microphone is a digital microphone peripheral.
//
// Open must release anything it acquired before returning an error. Read
// blocks until a block of samples is available and returns how many of the
// block's leading entries were filled.
type Microphone interface {
	Open(p Params) error
	Read(block []int32) (int, error)
	Close() error
}

// Indicator shows recording progress. It is cosmetic.
type Indicator interface {
	SetBrightness(level uint8)
}

// Config contains recorder configuration
type Config struct {
	SampleRate   int
	Duration     time.Duration
	BlockSamples int
}

// Capture describes a finished recording
type Capture struct {
	Path           string           `json:"path"`
	Samples        int64            `json:"samples"`
	DataBytes      int64            `json:"data_bytes"`
	PredictedBytes int64            `json:"predicted_bytes"`
	Elapsed        time.Duration    `json:"elapsed"`
	HeaderPatched  bool             `json:"header_patched"`
	Level          audio.LevelStats `json:"level"`
}

// Recorder captures audio clips from a microphone into the store
type Recorder struct {
	config    Config
	mic       Microphone
	store     storage.Store
	indicator Indicator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time

	// Held for the whole of Record; the peripheral has a single owner.
	busy sync.Mutex
}

// NewRecorder creates a recorder. indicator and m may be nil.
func NewRecorder(config Config, mic Microphone, store storage.Store, indicator Indicator,
	m *metrics.Metrics, logger *slog.Logger) (*Recorder, error) {

	if mic == nil {
		return nil, fmt.Errorf("microphone cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if config.SampleRate <= 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.Duration <= 0 {
		config.Duration = DefaultDuration
	}
	if config.BlockSamples <= 0 {
		config.BlockSamples = DefaultBlockSamples
	}

	return &Recorder{
		config:    config,
		mic:       mic,
		store:     store,
		indicator: indicator,
		metrics:   m,
		logger:    logger,
		clock:     time.Now,
	}, nil
}

// Params returns the peripheral parameters used by Record
func (r *Recorder) Params() Params {
	return Params{
		SampleRate:   r.config.SampleRate,
		WordBits:     CaptureWordBits,
		Channels:     Channels,
		BlockSamples: r.config.BlockSamples,
		Mode:         ModeMasterReceive,
	}
}

// Record captures one clip of the configured duration into path, replacing
// any existing file. The header's data size always matches the PCM bytes
// written: it is predicted from the duration up front and patched if the
// capture loop ends with a different count.
func (r *Recorder) Record(path string) (result *Capture, err error) {
	if !r.busy.TryLock() {
		r.metrics.RecordRecordingFailure("busy")
		return nil, fmt.Errorf("%w: another capture session is active", ErrPeripheralUnavailable)
	}
	defer r.busy.Unlock()

	r.metrics.RecordRecordingStarted()
	defer func() {
		if err != nil {
			r.metrics.RecordRecordingFailure(failureReason(err))
			r.logger.Error("Recording failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		r.metrics.RecordRecordingCompleted(result.DataBytes, result.Elapsed.Seconds())
	}()

	params := r.Params()
	if err := r.mic.Open(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeripheralUnavailable, err)
	}
	defer func() {
		if cerr := r.mic.Close(); cerr != nil {
			r.logger.Warn("Failed to release microphone", slog.String("error", cerr.Error()))
		}
	}()

	r.logger.Info("Microphone initialized",
		slog.Int("sample_rate", params.SampleRate),
		slog.Int("word_bits", params.WordBits),
		slog.Int("block_samples", params.BlockSamples),
	)

	file, err := r.createClip(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			result = nil
			err = fmt.Errorf("%w: close %s: %v", storage.ErrIO, path, cerr)
		}
	}()

	budget := audio.SamplesForDuration(r.config.SampleRate, r.config.Duration)
	predicted := budget * bytesPerSample

	header := audio.NewWAVHeader(r.config.SampleRate, Channels, BitsPerSample, uint32(predicted))
	if err := audio.WriteWAVHeader(file, header); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrIO, err)
	}

	r.logger.Info("Recording started",
		slog.String("path", path),
		slog.Duration("duration", r.config.Duration),
	)

	meter := audio.NewLevelMeter(0, 0)
	samples, elapsed, err := r.captureLoop(file, budget, meter)
	if err != nil {
		return nil, err
	}

	capture := &Capture{
		Path:           path,
		Samples:        samples,
		DataBytes:      samples * bytesPerSample,
		PredictedBytes: predicted,
		Elapsed:        elapsed,
		Level:          meter.Stats(),
	}

	if capture.DataBytes != predicted {
		if err := audio.PatchWAVDataSize(file, uint32(capture.DataBytes)); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrIO, err)
		}
		capture.HeaderPatched = true
		r.metrics.RecordHeaderPatch()
	}

	r.logger.Info("Recording stopped",
		slog.String("path", path),
		slog.Int64("data_bytes", capture.DataBytes),
		slog.Int64("predicted_bytes", predicted),
		slog.Duration("elapsed", elapsed),
		slog.Bool("header_patched", capture.HeaderPatched),
		slog.Float64("rms", capture.Level.RMS),
		slog.Float64("voiced_ratio", capture.Level.VoicedRatio()),
	)

	if capture.Samples > 0 && capture.Level.VoicedWindows == 0 {
		r.logger.Warn("Clip appears silent", slog.String("path", path))
	}

	return capture, nil
}

// createClip removes any previous file at path and creates an empty one.
func (r *Recorder) createClip(path string) (storage.File, error) {
	exists, err := r.store.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := r.store.Remove(path); err != nil {
			return nil, err
		}
	}
	return r.store.Create(path)
}

// captureLoop reads blocks until the wall-clock duration has elapsed or the
// sample budget is filled, whichever comes first.
func (r *Recorder) captureLoop(w io.Writer, budget int64, meter *audio.LevelMeter) (int64, time.Duration, error) {
	raw := make([]int32, r.config.BlockSamples)
	pcm := make([]int16, r.config.BlockSamples)
	out := make([]byte, 0, r.config.BlockSamples*bytesPerSample)

	defer r.setBrightness(0)

	start := r.clock()
	var written int64

	for written < budget {
		elapsed := r.clock().Sub(start)
		if elapsed >= r.config.Duration {
			break
		}

		n, err := r.mic.Read(raw)
		if err != nil {
			return written, elapsed, fmt.Errorf("%w: read microphone: %v", ErrPeripheralUnavailable, err)
		}

		n = min(n, len(raw))
		if remaining := budget - written; int64(n) > remaining {
			n = int(remaining)
		}

		if n > 0 {
			converted := audio.Downconvert32To16(pcm, raw[:n])
			meter.Add(pcm[:converted])
			out = audio.AppendPCM16(out[:0], pcm[:converted])
			if _, err := w.Write(out); err != nil {
				return written, elapsed, fmt.Errorf("%w: write samples: %v", storage.ErrIO, err)
			}
			written += int64(converted)
		}

		r.setBrightness(Brightness(r.clock().Sub(start), r.config.Duration))
	}

	return written, r.clock().Sub(start), nil
}

func (r *Recorder) setBrightness(level uint8) {
	if r.indicator != nil {
		r.indicator.SetBrightness(level)
	}
}

// Brightness maps the remaining fraction of a recording onto 0..255
func Brightness(elapsed, total time.Duration) uint8 {
	if total <= 0 || elapsed >= total {
		return 0
	}
	if elapsed <= 0 {
		return 255
	}
	remaining := 1 - float64(elapsed)/float64(total)
	return uint8(remaining * 255)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPeripheralUnavailable):
		return "peripheral"
	case errors.Is(err, storage.ErrIO):
		return "storage"
	default:
		return "other"
	}
}
