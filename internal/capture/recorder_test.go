package capture

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/skypro1111/voicecap/internal/audio"
	"github.com/skypro1111/voicecap/internal/storage"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMicrophone fills every block with a constant 32-bit word.
type fakeMicrophone struct {
	value     int32
	perRead   int
	openErr   error
	readErr   error
	failAfter int

	params Params
	opened int
	closed int
	reads  int
}

func (m *fakeMicrophone) Open(p Params) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.params = p
	m.opened++
	return nil
}

func (m *fakeMicrophone) Read(block []int32) (int, error) {
	m.reads++
	if m.readErr != nil && m.reads > m.failAfter {
		return 0, m.readErr
	}
	n := min(m.perRead, len(block))
	for i := 0; i < n; i++ {
		block[i] = m.value
	}
	return n, nil
}

func (m *fakeMicrophone) Close() error {
	m.closed++
	return nil
}

type recordingIndicator struct {
	levels []uint8
}

func (i *recordingIndicator) SetBrightness(level uint8) {
	i.levels = append(i.levels, level)
}

// stepClock advances by step on every reading.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

type failingCreateStore struct {
	*storage.Dir
}

func (s failingCreateStore) Create(path string) (storage.File, error) {
	return nil, storage.ErrIO
}

func newTestStore(t *testing.T) *storage.Dir {
	t.Helper()
	store, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}
	return store
}

func newTestRecorder(t *testing.T, cfg Config, mic Microphone, store storage.Store, ind Indicator) *Recorder {
	t.Helper()
	r, err := NewRecorder(cfg, mic, store, ind, nil, newLogger())
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	return r
}

func readClip(t *testing.T, store storage.Store, path string) []byte {
	t.Helper()
	f, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return data
}

func TestRecordWritesSampleBudget(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
	}

	for _, d := range durations {
		t.Run(d.String(), func(t *testing.T) {
			store := newTestStore(t)
			mic := &fakeMicrophone{value: 0x00070000, perRead: DefaultBlockSamples}
			r := newTestRecorder(t, Config{SampleRate: 16000, Duration: d}, mic, store, nil)

			result, err := r.Record("/clip.wav")
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}

			expectedBytes := int64(16000) * int64(d) / int64(time.Second) * 2
			if result.DataBytes != expectedBytes {
				t.Errorf("Expected %d data bytes, got %d", expectedBytes, result.DataBytes)
			}
			if result.HeaderPatched {
				t.Error("Expected predicted header to be kept")
			}

			data := readClip(t, store, "/clip.wav")
			if int64(len(data)) != audio.WAVHeaderSize+expectedBytes {
				t.Fatalf("Expected file size %d, got %d", audio.WAVHeaderSize+expectedBytes, len(data))
			}

			header, err := audio.ParseWAVHeader(data)
			if err != nil {
				t.Fatalf("ParseWAVHeader failed: %v", err)
			}
			if int64(header.Subchunk2Size) != expectedBytes {
				t.Errorf("Header declares %d bytes, file holds %d", header.Subchunk2Size, expectedBytes)
			}

			// Every 32-bit word 0x00070000 must be stored as 7.
			want := audio.AppendPCM16(nil, []int16{7})
			for off := audio.WAVHeaderSize; off < len(data); off += 2 {
				if !bytes.Equal(data[off:off+2], want) {
					t.Fatalf("Unexpected sample at offset %d: % x", off, data[off:off+2])
				}
			}
		})
	}
}

func TestRecordRoundTripFormat(t *testing.T) {
	store := newTestStore(t)
	mic := &fakeMicrophone{value: -1 << 16, perRead: 256}
	r := newTestRecorder(t, Config{SampleRate: 16000, Duration: 20 * time.Millisecond, BlockSamples: 256}, mic, store, nil)

	if _, err := r.Record("/p1_response1.wav"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	f, err := store.Open("/p1_response1.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	info, err := audio.InspectWAV(f)
	if err != nil {
		t.Fatalf("InspectWAV failed: %v", err)
	}

	if info.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", info.SampleRate)
	}
	if info.Channels != Channels {
		t.Errorf("Expected %d channel, got %d", Channels, info.Channels)
	}
	if info.BitsPerSample != BitsPerSample {
		t.Errorf("Expected %d bits per sample, got %d", BitsPerSample, info.BitsPerSample)
	}
	if info.DataSize != 640 {
		t.Errorf("Expected 640 data bytes, got %d", info.DataSize)
	}

	if mic.params.WordBits != 32 || mic.params.Channels != 1 || mic.params.Mode != ModeMasterReceive {
		t.Errorf("Unexpected peripheral params %+v", mic.params)
	}
}

func TestRecordPatchesHeaderWhenClockEndsFirst(t *testing.T) {
	store := newTestStore(t)
	mic := &fakeMicrophone{value: 1 << 16, perRead: 16}
	ind := &recordingIndicator{}
	r := newTestRecorder(t, Config{SampleRate: 16000, Duration: 100 * time.Millisecond}, mic, store, ind)
	clock := &stepClock{now: time.Unix(0, 0), step: 10 * time.Millisecond}
	r.clock = clock.Now

	result, err := r.Record("/clip.wav")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if !result.HeaderPatched {
		t.Error("Expected header to be patched")
	}
	if result.DataBytes >= result.PredictedBytes {
		t.Errorf("Expected fewer bytes than predicted, got %d of %d", result.DataBytes, result.PredictedBytes)
	}

	data := readClip(t, store, "/clip.wav")
	header, err := audio.ParseWAVHeader(data)
	if err != nil {
		t.Fatalf("ParseWAVHeader failed: %v", err)
	}

	actual := uint32(len(data) - audio.WAVHeaderSize)
	if header.Subchunk2Size != actual {
		t.Errorf("Header declares %d bytes, file holds %d", header.Subchunk2Size, actual)
	}
	if header.ChunkSize != 36+actual {
		t.Errorf("Expected chunk size %d, got %d", 36+actual, header.ChunkSize)
	}
	if int64(actual) != result.DataBytes {
		t.Errorf("Result reports %d bytes, file holds %d", result.DataBytes, actual)
	}

	if len(ind.levels) == 0 {
		t.Fatal("Expected indicator updates")
	}
	for i := 1; i < len(ind.levels); i++ {
		if ind.levels[i] > ind.levels[i-1] {
			t.Errorf("Indicator brightened at step %d: %v", i, ind.levels)
			break
		}
	}
	if last := ind.levels[len(ind.levels)-1]; last != 0 {
		t.Errorf("Expected indicator off after recording, got %d", last)
	}
}

func TestRecordReplacesExistingFile(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteFile("/clip.wav", bytes.Repeat([]byte{0xFF}, 100000)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	mic := &fakeMicrophone{perRead: DefaultBlockSamples}
	r := newTestRecorder(t, Config{Duration: 10 * time.Millisecond}, mic, store, nil)

	if _, err := r.Record("/clip.wav"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	size, err := store.Size("/clip.wav")
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != audio.WAVHeaderSize+320 {
		t.Errorf("Expected size %d, got %d", audio.WAVHeaderSize+320, size)
	}
}

func TestRecordOpenFailure(t *testing.T) {
	store := newTestStore(t)
	mic := &fakeMicrophone{openErr: errors.New("driver install failed")}
	r := newTestRecorder(t, Config{Duration: 10 * time.Millisecond}, mic, store, nil)

	_, err := r.Record("/clip.wav")
	if !errors.Is(err, ErrPeripheralUnavailable) {
		t.Fatalf("Expected ErrPeripheralUnavailable, got %v", err)
	}

	if exists, _ := store.Exists("/clip.wav"); exists {
		t.Error("Expected no file when the peripheral fails to open")
	}

	// The recorder is usable again after a failure.
	mic.openErr = nil
	mic.perRead = DefaultBlockSamples
	if _, err := r.Record("/clip.wav"); err != nil {
		t.Fatalf("Record after failure failed: %v", err)
	}
}

func TestRecordReadFailureReleasesPeripheral(t *testing.T) {
	store := newTestStore(t)
	mic := &fakeMicrophone{perRead: 16, readErr: errors.New("dma timeout"), failAfter: 2}
	ind := &recordingIndicator{}
	r := newTestRecorder(t, Config{Duration: time.Second}, mic, store, ind)

	_, err := r.Record("/clip.wav")
	if !errors.Is(err, ErrPeripheralUnavailable) {
		t.Fatalf("Expected ErrPeripheralUnavailable, got %v", err)
	}

	if mic.closed != 1 {
		t.Errorf("Expected microphone closed once, got %d", mic.closed)
	}
	if len(ind.levels) == 0 || ind.levels[len(ind.levels)-1] != 0 {
		t.Errorf("Expected indicator off after failure, got %v", ind.levels)
	}
}

func TestRecordStorageFailureReleasesPeripheral(t *testing.T) {
	store := failingCreateStore{newTestStore(t)}
	mic := &fakeMicrophone{perRead: 16}
	r := newTestRecorder(t, Config{Duration: 10 * time.Millisecond}, mic, store, nil)

	_, err := r.Record("/clip.wav")
	if !errors.Is(err, storage.ErrIO) {
		t.Fatalf("Expected storage.ErrIO, got %v", err)
	}

	if mic.opened != 1 || mic.closed != 1 {
		t.Errorf("Expected one open and one close, got %d/%d", mic.opened, mic.closed)
	}
}

func TestRecordRejectsConcurrentSession(t *testing.T) {
	mic := &fakeMicrophone{perRead: 16}
	r := newTestRecorder(t, Config{Duration: 10 * time.Millisecond}, mic, newTestStore(t), nil)

	r.busy.Lock()
	_, err := r.Record("/clip.wav")
	r.busy.Unlock()

	if !errors.Is(err, ErrPeripheralUnavailable) {
		t.Fatalf("Expected ErrPeripheralUnavailable, got %v", err)
	}
	if mic.opened != 0 {
		t.Errorf("Expected microphone untouched, opened %d times", mic.opened)
	}
}

func TestBrightness(t *testing.T) {
	total := 30 * time.Second

	tests := []struct {
		elapsed  time.Duration
		expected uint8
	}{
		{0, 255},
		{15 * time.Second, 127},
		{27 * time.Second, 25},
		{30 * time.Second, 0},
		{31 * time.Second, 0},
		{-time.Second, 255},
	}

	for _, tt := range tests {
		if got := Brightness(tt.elapsed, total); got != tt.expected {
			t.Errorf("Brightness(%v): expected %d, got %d", tt.elapsed, tt.expected, got)
		}
	}

	if got := Brightness(time.Second, 0); got != 0 {
		t.Errorf("Expected 0 for zero total, got %d", got)
	}
}

func TestNewRecorderDefaults(t *testing.T) {
	r := newTestRecorder(t, Config{}, &fakeMicrophone{}, newTestStore(t), nil)

	p := r.Params()
	if p.SampleRate != DefaultSampleRate || p.BlockSamples != DefaultBlockSamples {
		t.Errorf("Unexpected defaults %+v", p)
	}
	if r.config.Duration != DefaultDuration {
		t.Errorf("Expected default duration %v, got %v", DefaultDuration, r.config.Duration)
	}

	if _, err := NewRecorder(Config{}, nil, newTestStore(t), nil, nil, newLogger()); err == nil {
		t.Error("Expected error for nil microphone")
	}
}

func TestRecordReportsLevel(t *testing.T) {
	tests := []struct {
		name       string
		value      int32
		wantVoiced bool
		wantPeak   int16
	}{
		{"near silence", 0x00070000, false, 7},
		{"loud tone", 0x40000000, true, 16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			mic := &fakeMicrophone{value: tt.value, perRead: DefaultBlockSamples}
			r := newTestRecorder(t, Config{SampleRate: 16000, Duration: 100 * time.Millisecond}, mic, store, nil)

			result, err := r.Record("/clip.wav")
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}

			if result.Level.Peak != tt.wantPeak {
				t.Errorf("Expected peak %d, got %d", tt.wantPeak, result.Level.Peak)
			}
			if voiced := result.Level.VoicedWindows > 0; voiced != tt.wantVoiced {
				t.Errorf("Expected voiced=%v, got %+v", tt.wantVoiced, result.Level)
			}
			if result.Level.Windows == 0 {
				t.Error("Expected level windows to be counted")
			}
		})
	}
}
