package format

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dbferry/dbferry/internal/db"
)

type jsonDocument struct {
	Metadata    Metadata `json:"metadata"`
	RecordCount int      `json:"recordCount"`
	Data        []db.Row `json:"data"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string      { return "json" }
func (jsonCodec) Extension() string { return "json" }

func (jsonCodec) Encode(rows []db.Row, meta Metadata) ([]byte, error) {
	doc := jsonDocument{
		Metadata:    meta,
		RecordCount: len(rows),
		Data:        rows,
	}
	if doc.Data == nil {
		doc.Data = []db.Row{}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return out, nil
}

// EncodeChunk emits streaming JSON framing. The opening `{"data":[`
// appears only on the first fragment and the closing `]}` only on the
// last; the concatenated fragment sequence is one valid document.
func (jsonCodec) EncodeChunk(rows []db.Row, _ Metadata, first, last bool) ([]byte, error) {
	var buf bytes.Buffer

	if first {
		buf.WriteString(`{"data":[`)
	}

	for i, row := range rows {
		if !first || i > 0 {
			buf.WriteByte(',')
		}
		encoded, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("json encode row: %w", err)
		}
		buf.Write(encoded)
	}

	if last {
		buf.WriteString(`]}`)
	}

	return buf.Bytes(), nil
}

func (jsonCodec) Decode(data []byte) ([]db.Row, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return doc.Data, nil
}
