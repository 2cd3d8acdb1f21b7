package transcription

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultModel           = "whisper-1"
	DefaultFileName        = "audio.mp3"
	DefaultFileContentType = "audio/mp3"
)

// Form describes the multipart body: a "model" field followed by the "file"
// part whose content is streamed between Head and Tail.
type Form struct {
	Boundary        string
	Model           string
	FileName        string
	FileContentType string
}

// NewBoundary returns a random boundary token for one upload session
func NewBoundary() string {
	return "Boundary" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Head returns everything that precedes the file bytes
func (f Form) Head() string {
	return "--" + f.Boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"model\"\r\n\r\n" +
		f.Model + "\r\n" +
		"--" + f.Boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"" + f.FileName + "\"\r\n" +
		"Content-Type: " + f.FileContentType + "\r\n\r\n"
}

// Tail returns the closing delimiter that follows the file bytes
func (f Form) Tail() string {
	return "\r\n--" + f.Boundary + "--\r\n"
}

// ContentType returns the request Content-Type header value
func (f Form) ContentType() string {
	return "multipart/form-data; boundary=" + f.Boundary
}

// ContentLength returns the exact body length for a file of fileSize bytes
func (f Form) ContentLength(fileSize int64) int64 {
	return int64(len(f.Head())) + fileSize + int64(len(f.Tail()))
}

// RequestHeader renders the request line and headers, terminated by an empty line
func RequestHeader(host, path, apiKey, contentType string, contentLength int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "POST %s HTTP/1.1\r\n", path)
	b.WriteString("Host: " + host + "\r\n")
	b.WriteString("Authorization: Bearer " + apiKey + "\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	b.WriteString("Content-Length: " + strconv.FormatInt(contentLength, 10) + "\r\n")
	b.WriteString("Connection: keep-alive\r\n\r\n")
	return b.String()
}
