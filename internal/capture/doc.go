// Package capture implements the time-bounded microphone recorder. A Recorder
// owns the capture peripheral for the duration of one Record call and writes
// a header-correct WAV file to the store.
package capture
