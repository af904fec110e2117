package multipart

import (
	"io"
	"strings"
	"testing"
)

func TestEncodeProducesBoundaryMatchingContentType(t *testing.T) {
	stream, contentType, err := Encode(map[string]any{"name": "alice"}, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	defer stream.Close()

	idx := strings.Index(contentType, "boundary=")
	if idx == -1 {
		t.Fatalf("expected a boundary in Content-Type, got %q", contentType)
	}
	boundary := contentType[idx+len("boundary="):]

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "--"+boundary) {
		t.Fatalf("expected body to be delimited by the declared boundary, got %q", body)
	}
	if !strings.Contains(body, `name="name"`) {
		t.Fatalf("expected a Content-Disposition naming the field, got %q", body)
	}
	if !strings.Contains(body, "alice") {
		t.Fatalf("expected the field value in the body, got %q", body)
	}
	if !strings.HasSuffix(body, "--"+boundary+"--\r\n") {
		t.Fatalf("expected a closing delimiter, got %q", body)
	}
}

func TestEncodeRepeatsListValuedField(t *testing.T) {
	stream, _, err := Encode(map[string]any{"tag": []string{"a", "b"}}, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	defer stream.Close()
	data, _ := io.ReadAll(stream)
	body := string(data)
	if strings.Count(body, `name="tag"`) != 2 {
		t.Fatalf("expected two parts for a list-valued field, got %q", body)
	}
}

func TestEncodeFilePartIncludesContentType(t *testing.T) {
	stream, _, err := Encode(nil, map[string]File{
		"upload": {Filename: "report.json", Reader: strings.NewReader(`{"ok":true}`)},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	defer stream.Close()
	data, _ := io.ReadAll(stream)
	body := string(data)
	if !strings.Contains(body, `filename="report.json"`) {
		t.Fatalf("expected the filename in the part, got %q", body)
	}
	if !strings.Contains(body, "Content-Type: application/json") {
		t.Fatalf("expected a sniffed Content-Type, got %q", body)
	}
	if !strings.Contains(body, `{"ok":true}`) {
		t.Fatalf("expected the file contents in the part, got %q", body)
	}
}
