package audio

import (
	"encoding/binary"
	"time"
)

// Downconvert32To16 keeps the high-order 16 bits of each 32-bit capture word
// (arithmetic shift, sign preserved). It converts min(len(dst), len(src))
// samples and returns that count.
func Downconvert32To16(dst []int16, src []int32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = int16(src[i] >> 16)
	}
	return n
}

// AppendPCM16 appends samples to dst as little-endian 16-bit PCM
func AppendPCM16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// SamplesForDuration returns the number of sample frames in d at sampleRate
func SamplesForDuration(sampleRate int, d time.Duration) int64 {
	return int64(sampleRate) * int64(d) / int64(time.Second)
}
