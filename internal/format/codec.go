// Package format holds the wire codecs for row sets. Codecs are pure
// encode/decode; they never touch storage or the database.
package format

import (
	"fmt"
	"sort"
	"time"

	"github.com/dbferry/dbferry/internal/db"
)

// Metadata travels with an encoded document. Streaming fragments omit
// it; whole-document encodes embed it where the format has room.
type Metadata struct {
	Table      string    `json:"table,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// Codec encodes and decodes one wire representation of a row set.
// EncodeChunk produces a streaming fragment; the first and last flags
// drive format-specific framing, which must be emitted exactly once
// each across the fragment sequence.
type Codec interface {
	Name() string
	Extension() string
	Encode(rows []db.Row, meta Metadata) ([]byte, error)
	EncodeChunk(rows []db.Row, meta Metadata, first, last bool) ([]byte, error)
	Decode(data []byte) ([]db.Row, error)
}

// ErrNotStreamable is returned by EncodeChunk on whole-document-only
// formats.
var ErrNotStreamable = fmt.Errorf("format does not support streaming")

var codecs = map[string]Codec{
	"json":   jsonCodec{},
	"csv":    csvCodec{},
	"ndjson": ndjsonCodec{},
	"xml":    xmlCodec{},
	"sql":    sqlCodec{},
}

// Lookup returns the codec for a format name.
func Lookup(name string) (Codec, error) {
	codec, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return codec, nil
}

// Names returns the registered format names, sorted.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedColumns returns the row's field names in a stable order, so
// column-oriented formats render identically across chunks.
func sortedColumns(row db.Row) []string {
	columns := make([]string, 0, len(row))
	for name := range row {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}
