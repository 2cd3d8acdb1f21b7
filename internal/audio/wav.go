package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE/fmt/data header.
	WAVHeaderSize = 44

	// Byte offsets of the size fields that depend on the data length.
	chunkSizeOffset     = 4
	subchunk2SizeOffset = 40

	formatPCM = 1
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + Subchunk2Size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewWAVHeader builds a PCM header declaring dataSize bytes of sample data
func NewWAVHeader(sampleRate int, numChannels, bitsPerSample uint16, dataSize uint32) WAVHeader {
	bytesPerSample := bitsPerSample / 8
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bytesPerSample),
		BlockAlign:    numChannels * bytesPerSample,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// Bytes returns the little-endian wire form of the header
func (h WAVHeader) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize))
	// Writes into a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// WriteWAVHeader writes the header in a single write
func WriteWAVHeader(w io.Writer, h WAVHeader) error {
	data := h.Bytes()
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("failed to write WAV header: short write %d of %d bytes", n, len(data))
	}
	return nil
}

// PatchWAVDataSize rewrites the ChunkSize and Subchunk2Size fields of a header
// that was written at offset 0, then moves the write position back to the end.
func PatchWAVDataSize(ws io.WriteSeeker, dataSize uint32) error {
	var field [4]byte

	binary.LittleEndian.PutUint32(field[:], 36+dataSize)
	if err := writeAt(ws, chunkSizeOffset, field[:]); err != nil {
		return fmt.Errorf("failed to patch RIFF chunk size: %w", err)
	}

	binary.LittleEndian.PutUint32(field[:], dataSize)
	if err := writeAt(ws, subchunk2SizeOffset, field[:]); err != nil {
		return fmt.Errorf("failed to patch data chunk size: %w", err)
	}

	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of WAV data: %w", err)
	}
	return nil
}

func writeAt(ws io.WriteSeeker, offset int64, data []byte) error {
	if _, err := ws.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	n, err := ws.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}

// EncodeWAV encodes PCM-16 mono samples into an in-memory WAV file
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	header := NewWAVHeader(sampleRate, 1, 16, dataSize)

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(samples)*2))
	if err := WriteWAVHeader(buf, header); err != nil {
		return nil, err
	}
	buf.Write(AppendPCM16(nil, samples))

	return buf.Bytes(), nil
}

// ParseWAVHeader decodes and validates the canonical header at the start of data
func ParseWAVHeader(data []byte) (*WAVHeader, error) {
	if len(data) < WAVHeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:WAVHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != formatPCM {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	return &header, nil
}

// WAVInfo describes a stored WAV file
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	AudioFormat   uint16        `json:"audio_format"`
	DataSize      uint32        `json:"data_size_bytes"`
	NumSamples    uint32        `json:"num_samples"`
	Duration      time.Duration `json:"duration"`
}

// InspectWAV reads the format and data chunk size of a WAV stream with a
// general RIFF parser, independent of the header writer in this package.
func InspectWAV(r io.ReadSeeker) (*WAVInfo, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("failed to read WAV format: %w", err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate WAV data chunk: %w", err)
	}

	info := &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		AudioFormat:   dec.WavAudioFormat,
		DataSize:      uint32(dec.PCMSize),
	}

	if frame := uint32(info.Channels) * uint32(info.BitsPerSample/8); frame > 0 {
		info.NumSamples = info.DataSize / frame
		info.Duration = time.Duration(info.NumSamples) * time.Second / time.Duration(info.SampleRate)
	}

	return info, nil
}
