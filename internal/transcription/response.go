package transcription

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// TranscriptField is the root-level JSON key holding the recognized text.
const TranscriptField = "text"

var (
	headerTerminator = []byte("\r\n\r\n")
	crlf             = []byte("\r\n")
)

// Response is a parsed transcription reply
type Response struct {
	Raw        []byte      `json:"-"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"-"`
	Body       []byte      `json:"-"`
	Text       string      `json:"text"`
}

// ResponseComplete reports whether raw holds a whole HTTP response. Leading
// 1xx interim responses are skipped. The body length comes from
// Content-Length or the chunked terminator; only when the response declares
// neither does it fall back to "headers ended and a closing brace has
// arrived".
func ResponseComplete(raw []byte) bool {
	return newCompletion().done(raw)
}

// completion tracks a growing response so each arrival is examined once:
// headers are parsed a single time and later checks only look at new bytes.
type completion struct {
	start     int   // offset of the final response's status line
	searched  int   // bytes already searched for the header terminator
	bodyStart int   // offset of the body, 0 until the headers are known
	length    int64 // declared Content-Length, -1 when absent
	chunked   bool
	next      int // chunked: offset of the next chunk-size line
	scanned   int // undelimited: bytes already searched for '}'
}

func newCompletion() *completion {
	return &completion{length: -1}
}

func (c *completion) done(raw []byte) bool {
	if c.bodyStart == 0 && !c.readHeaders(raw) {
		return false
	}

	switch {
	case c.length >= 0:
		return int64(len(raw)-c.bodyStart) >= c.length
	case c.chunked:
		return c.chunksDone(raw)
	default:
		if bytes.IndexByte(raw[c.scanned:], '}') >= 0 {
			return true
		}
		c.scanned = len(raw)
		return false
	}
}

// readHeaders locates the header block of the final response, skipping any
// interim ones, and records how its body is delimited.
func (c *completion) readHeaders(raw []byte) bool {
	for {
		from := max(c.start, c.searched-len(headerTerminator)+1)
		idx := bytes.Index(raw[from:], headerTerminator)
		if idx < 0 {
			c.searched = len(raw)
			return false
		}
		end := from + idx + len(headerTerminator)

		resp, err := readHeader(raw[c.start:end])
		if err == nil && isInterim(resp.StatusCode) {
			c.start, c.searched = end, end
			continue
		}

		c.bodyStart, c.next, c.scanned = end, end, end
		if err != nil {
			// Unparseable framing: closing-brace heuristic.
			return true
		}
		if len(resp.TransferEncoding) > 0 {
			c.chunked = true
		} else {
			c.length = resp.ContentLength
		}
		return true
	}
}

// chunksDone walks chunk-size lines as they arrive and reports whether the
// last-chunk and trailer section are present.
func (c *completion) chunksDone(raw []byte) bool {
	for {
		lineEnd := bytes.Index(raw[c.next:], crlf)
		if lineEnd < 0 {
			return false
		}

		line := raw[c.next : c.next+lineEnd]
		if i := bytes.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		size, err := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
		if err != nil || size < 0 {
			// Broken framing is reported by ParseResponse.
			return true
		}

		dataStart := c.next + lineEnd + len(crlf)
		if size == 0 {
			trailer := raw[dataStart:]
			return bytes.HasPrefix(trailer, crlf) || bytes.Contains(trailer, headerTerminator)
		}

		chunkEnd := int64(dataStart) + size + int64(len(crlf))
		if int64(len(raw)) < chunkEnd {
			return false
		}
		c.next = int(chunkEnd)
	}
}

// interimEnd returns the offset just past any complete 1xx interim responses
// at the start of raw.
func interimEnd(raw []byte) int {
	start := 0
	for {
		idx := bytes.Index(raw[start:], headerTerminator)
		if idx < 0 {
			return start
		}
		end := start + idx + len(headerTerminator)

		resp, err := readHeader(raw[start:end])
		if err != nil || !isInterim(resp.StatusCode) {
			return start
		}
		start = end
	}
}

// isInterim reports 1xx informational statuses. 101 ends HTTP framing and
// counts as final.
func isInterim(code int) bool {
	return code >= 100 && code < 200 && code != http.StatusSwitchingProtocols
}

// readHeader parses a status line and header block without reading a body.
func readHeader(block []byte) (*http.Response, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(block)), nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// collectResponse reads from conn until the response is complete. The first
// byte must arrive within overall; after that each read may wait at most
// stall for more data.
func collectResponse(conn Conn, overall, stall time.Duration, clock func() time.Time) ([]byte, error) {
	var raw []byte
	chunk := make([]byte, 1024)
	tracker := newCompletion()

	start := clock()
	deadline := start.Add(overall)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return raw, fmt.Errorf("%w: set read deadline: %v", ErrConnect, err)
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			raw = append(raw, chunk[:n]...)
			deadline = clock().Add(stall)
			if tracker.done(raw) {
				return raw, nil
			}
		}

		if err != nil {
			if isTimeout(err) {
				return raw, &TimeoutError{Partial: raw, Waited: clock().Sub(start)}
			}
			if errors.Is(err, io.EOF) {
				// Peer closed the connection; parsing decides whether it is usable.
				return raw, nil
			}
			return raw, fmt.Errorf("%w: read response: %v", ErrConnect, err)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ParseResponse separates the HTTP framing from the JSON body and extracts
// the transcript field. Leading 1xx interim responses are skipped.
func ParseResponse(raw []byte) (*Response, error) {
	start := interimEnd(raw)
	idx := bytes.Index(raw[start:], headerTerminator)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no header/body separator in %d bytes", ErrMalformedResponse, len(raw))
	}

	r := &Response{
		Raw:  raw,
		Body: raw[start+idx+len(headerTerminator):],
	}

	if resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw[start:])), nil); err == nil {
		r.StatusCode = resp.StatusCode
		r.Header = resp.Header

		switch {
		case len(resp.TransferEncoding) > 0:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: decode chunked body: %v", ErrMalformedResponse, err)
			}
			r.Body = body
		case resp.ContentLength >= 0 && int64(len(r.Body)) > resp.ContentLength:
			r.Body = r.Body[:resp.ContentLength]
		}
		resp.Body.Close()
	}

	text, err := extractText(r.Body, r.StatusCode)
	if err != nil {
		return r, err
	}
	r.Text = text

	return r, nil
}

// ExtractTranscript returns the transcript contained in a raw HTTP response
func ExtractTranscript(raw []byte) (string, error) {
	r, err := ParseResponse(raw)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func extractText(body []byte, statusCode int) (string, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return "", fmt.Errorf("%w: invalid JSON in %d byte body", ErrMalformedResponse, len(body))
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return "", fmt.Errorf("%w: response root is not a JSON object", ErrMissingTranscript)
	}

	value, ok := doc[TranscriptField]
	if !ok {
		return "", fmt.Errorf("%w: %q absent%s", ErrMissingTranscript, TranscriptField, apiErrorDetail(doc, statusCode))
	}

	var text string
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) || json.Unmarshal(value, &text) != nil {
		return "", fmt.Errorf("%w: %q is not a string", ErrMissingTranscript, TranscriptField)
	}

	return text, nil
}

// apiErrorDetail formats the {"error": {"message": ...}} object error replies carry.
func apiErrorDetail(doc map[string]json.RawMessage, statusCode int) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if raw, ok := doc["error"]; ok && json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Sprintf(" (status %d: %s)", statusCode, apiErr.Message)
	}
	if statusCode != 0 {
		return fmt.Sprintf(" (status %d)", statusCode)
	}
	return ""
}
