package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dbferry/dbferry/internal/db"
)

func TestStreamEncoderJSONFraming(t *testing.T) {
	codec, _ := Lookup("json")
	encoder, err := NewStreamEncoder(codec, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out bytes.Buffer
	chunks := [][]db.Row{
		{{"id": int64(1)}, {"id": int64(2)}},
		{{"id": int64(3)}},
	}
	for _, chunk := range chunks {
		fragment, err := encoder.Encode(chunk)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		out.Write(fragment)
	}
	closing, err := encoder.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	out.Write(closing)

	// The concatenated fragments must form one valid document with the
	// opening and closing framing emitted exactly once each.
	if strings.Count(out.String(), `{"data":[`) != 1 {
		t.Errorf("opening framing not emitted exactly once:\n%s", out.String())
	}
	var doc struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("concatenated output is not valid json: %v\n%s", err, out.String())
	}
	if len(doc.Data) != 3 {
		t.Errorf("decoded %d records, want 3", len(doc.Data))
	}
}

func TestStreamEncoderEmptyStream(t *testing.T) {
	codec, _ := Lookup("json")
	encoder, err := NewStreamEncoder(codec, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Closing a stream that never emitted a fragment yields the full
	// empty document.
	out, err := encoder.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if string(out) != `{"data":[]}` {
		t.Errorf("empty stream = %q, want %q", out, `{"data":[]}`)
	}

	// Closing again is a no-op.
	again, err := encoder.Close()
	if err != nil || again != nil {
		t.Errorf("second close returned %q, %v", again, err)
	}
}

func TestStreamEncoderRejectsWholeDocumentFormats(t *testing.T) {
	codec, _ := Lookup("xml")
	if _, err := NewStreamEncoder(codec, testMeta); !errors.Is(err, ErrNotStreamable) {
		t.Errorf("expected ErrNotStreamable, got %v", err)
	}
}

func TestStreamEncoderCSV(t *testing.T) {
	codec, _ := Lookup("csv")
	encoder, err := NewStreamEncoder(codec, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out bytes.Buffer
	for _, chunk := range [][]db.Row{
		{{"id": int64(1), "name": "a"}},
		{{"id": int64(2), "name": "b"}},
	} {
		fragment, err := encoder.Encode(chunk)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		out.Write(fragment)
	}
	closing, err := encoder.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	out.Write(closing)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), out.String())
	}
	// The header appears only on the first fragment.
	if strings.Count(out.String(), "id,name") != 1 {
		t.Errorf("header emitted more than once:\n%s", out.String())
	}
}

func TestStreamEncoderClosedStreamRejectsEncode(t *testing.T) {
	codec, _ := Lookup("ndjson")
	encoder, err := NewStreamEncoder(codec, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := encoder.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := encoder.Encode([]db.Row{{"id": int64(1)}}); err == nil {
		t.Error("encode after close must fail")
	}
}
