package format

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dbferry/dbferry/internal/db"
)

type ndjsonCodec struct{}

func (ndjsonCodec) Name() string      { return "ndjson" }
func (ndjsonCodec) Extension() string { return "ndjson" }

func (c ndjsonCodec) Encode(rows []db.Row, meta Metadata) ([]byte, error) {
	return c.EncodeChunk(rows, meta, true, true)
}

// EncodeChunk writes one JSON object per row, newline-delimited.
// NDJSON needs no open/close framing, so the flags are ignored.
func (ndjsonCodec) EncodeChunk(rows []db.Row, _ Metadata, _, _ bool) ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("ndjson encode row: %w", err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (ndjsonCodec) Decode(data []byte) ([]db.Row, error) {
	var rows []db.Row
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		row := db.Row{}
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("ndjson decode: %w", err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ndjson decode: %w", err)
	}
	return rows, nil
}
