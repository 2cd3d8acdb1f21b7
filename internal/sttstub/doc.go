// Package sttstub is a local stand-in for the speech-to-text API. It accepts
// the same multipart upload, inspects the audio, and answers with a fixed
// transcript so the uploader can be exercised without network access.
package sttstub
