package format

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/dbferry/dbferry/internal/db"
)

type csvCodec struct{}

func (csvCodec) Name() string      { return "csv" }
func (csvCodec) Extension() string { return "csv" }

func (c csvCodec) Encode(rows []db.Row, meta Metadata) ([]byte, error) {
	return c.EncodeChunk(rows, meta, true, true)
}

// EncodeChunk writes rows as CSV. The header row is derived from the
// first row's field set and emitted only on the first fragment.
func (csvCodec) EncodeChunk(rows []db.Row, _ Metadata, first, _ bool) ([]byte, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	columns := sortedColumns(rows[0])

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if first {
		if err := w.Write(columns); err != nil {
			return nil, fmt.Errorf("csv encode header: %w", err)
		}
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = renderValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv encode row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (csvCodec) Decode(data []byte) ([]db.Row, error) {
	if len(data) == 0 {
		return nil, nil
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv decode: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]db.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv decode: row has %d fields, header has %d", len(record), len(header))
		}
		row := db.Row{}
		for i, col := range header {
			if record[i] == "" {
				row[col] = nil
			} else {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
