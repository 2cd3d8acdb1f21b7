package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/orcaman/writerseeker"
)

func le32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func le16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func TestWAVHeaderLayout(t *testing.T) {
	sampleRate := 16000
	dataSize := uint32(SamplesForDuration(sampleRate, 30*time.Second) * 2)

	var expected []byte
	expected = append(expected, "RIFF"...)
	expected = append(expected, le32(36+960000)...)
	expected = append(expected, "WAVE"...)
	expected = append(expected, "fmt "...)
	expected = append(expected, le32(16)...)
	expected = append(expected, le16(1)...)     // PCM
	expected = append(expected, le16(1)...)     // mono
	expected = append(expected, le32(16000)...) // sample rate
	expected = append(expected, le32(32000)...) // byte rate
	expected = append(expected, le16(2)...)     // block align
	expected = append(expected, le16(16)...)    // bits per sample
	expected = append(expected, "data"...)
	expected = append(expected, le32(960000)...)

	got := NewWAVHeader(sampleRate, 1, 16, dataSize).Bytes()

	if len(got) != WAVHeaderSize {
		t.Fatalf("Expected header size %d, got %d", WAVHeaderSize, len(got))
	}

	if !bytes.Equal(got, expected) {
		t.Errorf("Header mismatch\nexpected % x\ngot      % x", expected, got)
	}
}

func TestPatchWAVDataSize(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}

	if err := WriteWAVHeader(ws, NewWAVHeader(16000, 1, 16, 960000)); err != nil {
		t.Fatalf("WriteWAVHeader failed: %v", err)
	}

	pcm := AppendPCM16(nil, []int16{1, 2, 3, 4, 5})
	if _, err := ws.Write(pcm); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := PatchWAVDataSize(ws, uint32(len(pcm))); err != nil {
		t.Fatalf("PatchWAVDataSize failed: %v", err)
	}

	// Writes after the patch must land at the end of the data.
	if _, err := ws.Write(AppendPCM16(nil, []int16{6})); err != nil {
		t.Fatalf("Write after patch failed: %v", err)
	}

	data, err := io.ReadAll(ws.Reader())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(data) != WAVHeaderSize+12 {
		t.Fatalf("Expected %d bytes, got %d", WAVHeaderSize+12, len(data))
	}

	header, err := ParseWAVHeader(data)
	if err != nil {
		t.Fatalf("ParseWAVHeader failed: %v", err)
	}

	if header.Subchunk2Size != 10 {
		t.Errorf("Expected data size 10, got %d", header.Subchunk2Size)
	}

	if header.ChunkSize != 46 {
		t.Errorf("Expected chunk size 46, got %d", header.ChunkSize)
	}

	if !bytes.Equal(data[WAVHeaderSize:WAVHeaderSize+10], pcm) {
		t.Error("PCM data was modified by the header patch")
	}
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 16kHz
	sampleRate := 16000
	numSamples := sampleRate / 10
	samples := make([]int16, numSamples)
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440*ts))
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	info, err := InspectWAV(bytes.NewReader(wavData))
	if err != nil {
		t.Fatalf("InspectWAV failed: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	if info.AudioFormat != 1 {
		t.Errorf("Expected PCM format, got %d", info.AudioFormat)
	}

	if info.DataSize != uint32(len(samples)*2) {
		t.Errorf("Expected data size %d, got %d", len(samples)*2, info.DataSize)
	}

	if info.Duration != 100*time.Millisecond {
		t.Errorf("Expected duration 100ms, got %v", info.Duration)
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestParseWAVHeaderErrors(t *testing.T) {
	valid := NewWAVHeader(16000, 1, 16, 0).Bytes()

	corrupt := func(offset int, value string) []byte {
		data := append([]byte(nil), valid...)
		copy(data[offset:], value)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", valid[:20]},
		{"missing RIFF", corrupt(0, "RIFX")},
		{"missing WAVE", corrupt(8, "AVI ")},
		{"missing fmt", corrupt(12, "junk")},
		{"missing data", corrupt(36, "LIST")},
		{"not PCM", corrupt(20, "\x03\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWAVHeader(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := ParseWAVHeader(valid); err != nil {
		t.Errorf("Valid header rejected: %v", err)
	}
}
