// Package transcription implements the streaming client for the speech-to-text
// API. It writes a multipart/form-data request by hand over a raw secure
// socket so the audio file is sent in fixed-size chunks and never held in
// memory, collects the raw reply under a stall timeout, and extracts the
// transcript from the JSON body.
package transcription
