// Package storage provides the byte-addressable file store used for audio
// clips and transcripts. Paths are slash-separated names resolved under a
// root directory, mirroring the flat namespace of an SD card.
package storage
