package transcription

import (
	"bytes"
	"io"
	"mime/multipart"
	"strings"
	"testing"
)

func TestFormContentLength(t *testing.T) {
	tests := []struct {
		name     string
		boundary string
		fileSize int
	}{
		{"empty file", "BoundaryX", 0},
		{"short boundary", "B", 100},
		{"uuid boundary", NewBoundary(), 960044},
		{"long boundary", "Boundary" + strings.Repeat("z", 60), 4097},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := Form{
				Boundary:        tt.boundary,
				Model:           DefaultModel,
				FileName:        DefaultFileName,
				FileContentType: DefaultFileContentType,
			}
			file := bytes.Repeat([]byte{0xAB}, tt.fileSize)

			body := form.Head() + string(file) + form.Tail()
			if got := form.ContentLength(int64(tt.fileSize)); got != int64(len(body)) {
				t.Fatalf("Expected content length %d, got %d", len(body), got)
			}

			mr := multipart.NewReader(strings.NewReader(body), tt.boundary)

			part, err := mr.NextPart()
			if err != nil {
				t.Fatalf("Failed to read model part: %v", err)
			}
			if part.FormName() != "model" {
				t.Errorf("Expected first part 'model', got %q", part.FormName())
			}
			model, _ := io.ReadAll(part)
			if string(model) != DefaultModel {
				t.Errorf("Expected model %q, got %q", DefaultModel, model)
			}

			part, err = mr.NextPart()
			if err != nil {
				t.Fatalf("Failed to read file part: %v", err)
			}
			if part.FormName() != "file" || part.FileName() != DefaultFileName {
				t.Errorf("Expected file part 'file'/%q, got %q/%q", DefaultFileName, part.FormName(), part.FileName())
			}
			if ct := part.Header.Get("Content-Type"); ct != DefaultFileContentType {
				t.Errorf("Expected content type %q, got %q", DefaultFileContentType, ct)
			}
			data, _ := io.ReadAll(part)
			if !bytes.Equal(data, file) {
				t.Errorf("Expected %d file bytes, got %d", len(file), len(data))
			}

			if _, err := mr.NextPart(); err != io.EOF {
				t.Errorf("Expected exactly two parts, got extra part (err=%v)", err)
			}
		})
	}
}

func TestRequestHeader(t *testing.T) {
	got := RequestHeader("api.openai.com", "/v1/audio/transcriptions", "sk-test",
		"multipart/form-data; boundary=BoundaryABC", 1234)

	want := "POST /v1/audio/transcriptions HTTP/1.1\r\n" +
		"Host: api.openai.com\r\n" +
		"Authorization: Bearer sk-test\r\n" +
		"Content-Type: multipart/form-data; boundary=BoundaryABC\r\n" +
		"Content-Length: 1234\r\n" +
		"Connection: keep-alive\r\n\r\n"

	if got != want {
		t.Errorf("Expected header:\n%q\ngot:\n%q", want, got)
	}
}

func TestNewBoundaryIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		b := NewBoundary()
		if !strings.HasPrefix(b, "Boundary") {
			t.Fatalf("Expected 'Boundary' prefix, got %q", b)
		}
		if len(b) != len("Boundary")+32 {
			t.Fatalf("Expected boundary length %d, got %d", len("Boundary")+32, len(b))
		}
		if seen[b] {
			t.Fatalf("Duplicate boundary %q", b)
		}
		seen[b] = true
	}
}
