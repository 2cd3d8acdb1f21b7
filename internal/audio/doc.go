// Package audio handles the RIFF/WAVE container and PCM sample conversion.
// It builds the canonical 44-byte header, patches the data size once the real
// length is known, down-converts 32-bit capture words to 16-bit PCM and
// meters clip levels.
package audio
