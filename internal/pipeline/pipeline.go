package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/voicecap/internal/capture"
	"github.com/skypro1111/voicecap/internal/storage"
	"github.com/skypro1111/voicecap/internal/transcription"
)

// Stage names the step of a cycle
type Stage string

const (
	StageRecord     Stage = "record"
	StageTranscribe Stage = "transcribe"
	StagePersist    Stage = "persist"
	StageDone       Stage = "done"
)

// Recorder captures a clip to a storage path
type Recorder interface {
	Record(path string) (*capture.Capture, error)
}

// Transcriber turns a stored clip into a transcript
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*transcription.Response, error)
}

// Config contains pipeline configuration
type Config struct {
	// SkipRecording transcribes an existing clip instead of capturing one.
	SkipRecording bool
}

// Cycle names the files used by one run
type Cycle struct {
	ClipPath       string
	TranscriptPath string // empty leaves the transcript unpersisted
}

// Outcome reports how a cycle ended. On failure Stage is the failing step
// and Transcript is empty.
type Outcome struct {
	Stage      Stage                   `json:"stage"`
	Err        error                   `json:"-"`
	Transcript string                  `json:"transcript"`
	Capture    *capture.Capture        `json:"capture,omitempty"`
	Response   *transcription.Response `json:"response,omitempty"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// OK reports whether the cycle produced a transcript
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Pipeline wires the recorder, the transcriber and the store
type Pipeline struct {
	config      Config
	recorder    Recorder
	transcriber Transcriber
	store       storage.Store
	logger      *slog.Logger
	clock       func() time.Time
}

// New creates a pipeline. recorder may be nil when SkipRecording is set.
func New(config Config, recorder Recorder, transcriber Transcriber, store storage.Store, logger *slog.Logger) (*Pipeline, error) {
	if recorder == nil && !config.SkipRecording {
		return nil, fmt.Errorf("recorder cannot be nil unless recording is skipped")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config:      config,
		recorder:    recorder,
		transcriber: transcriber,
		store:       store,
		logger:      logger,
		clock:       time.Now,
	}, nil
}

// Run executes one cycle. Failures are not retried; the caller decides
// whether to start another cycle.
func (p *Pipeline) Run(ctx context.Context, cycle Cycle) Outcome {
	start := p.clock()
	outcome := p.run(ctx, cycle)
	outcome.Elapsed = p.clock().Sub(start)

	if outcome.Err != nil {
		outcome.Transcript = ""
		p.logger.Error("Cycle failed",
			slog.String("stage", string(outcome.Stage)),
			slog.String("clip", cycle.ClipPath),
			slog.String("error", outcome.Err.Error()),
			slog.Duration("elapsed", outcome.Elapsed),
		)
		return outcome
	}

	p.logger.Info("Cycle complete",
		slog.String("clip", cycle.ClipPath),
		slog.String("transcript_path", cycle.TranscriptPath),
		slog.Int("transcript_length", len(outcome.Transcript)),
		slog.Duration("elapsed", outcome.Elapsed),
	)
	return outcome
}

func (p *Pipeline) run(ctx context.Context, cycle Cycle) Outcome {
	var outcome Outcome

	if cycle.ClipPath == "" {
		outcome.Stage = StageRecord
		outcome.Err = fmt.Errorf("clip path cannot be empty")
		return outcome
	}

	if p.config.SkipRecording {
		p.logger.Info("Skipping recording, using existing clip", slog.String("clip", cycle.ClipPath))
	} else {
		p.logger.Info("Recording clip", slog.String("clip", cycle.ClipPath))
		c, err := p.recorder.Record(cycle.ClipPath)
		outcome.Capture = c
		if err != nil {
			outcome.Stage = StageRecord
			outcome.Err = fmt.Errorf("record %s: %w", cycle.ClipPath, err)
			return outcome
		}
	}

	resp, err := p.transcriber.Transcribe(ctx, cycle.ClipPath)
	outcome.Response = resp
	if err != nil {
		outcome.Stage = StageTranscribe
		outcome.Err = fmt.Errorf("transcribe %s: %w", cycle.ClipPath, err)
		return outcome
	}

	if cycle.TranscriptPath != "" {
		if err := p.store.WriteFile(cycle.TranscriptPath, []byte(resp.Text)); err != nil {
			outcome.Stage = StagePersist
			outcome.Err = fmt.Errorf("persist transcript %s: %w", cycle.TranscriptPath, err)
			return outcome
		}
	}

	outcome.Stage = StageDone
	outcome.Transcript = resp.Text
	return outcome
}
