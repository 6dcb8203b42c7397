package format

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/dbferry/dbferry/internal/db"
)

type xmlCodec struct{}

func (xmlCodec) Name() string      { return "xml" }
func (xmlCodec) Extension() string { return "xml" }

// Encode writes a whole document: an <export> root holding a
// <metadata> block and a <data> block of per-row <record> elements.
func (xmlCodec) Encode(rows []db.Row, meta Metadata) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<export>\n  <metadata>\n")
	writeXMLElement(&buf, "    ", "table", meta.Table)
	writeXMLElement(&buf, "    ", "tenant_id", meta.TenantID)
	writeXMLElement(&buf, "    ", "exported_at", meta.ExportedAt.UTC().Format(time.RFC3339))
	buf.WriteString("  </metadata>\n  <data>\n")

	for _, row := range rows {
		buf.WriteString("    <record>\n")
		for _, col := range sortedColumns(row) {
			writeXMLElement(&buf, "      ", col, renderValue(row[col]))
		}
		buf.WriteString("    </record>\n")
	}

	buf.WriteString("  </data>\n</export>\n")
	return buf.Bytes(), nil
}

// EncodeChunk is unsupported: XML is whole-document only.
func (xmlCodec) EncodeChunk(_ []db.Row, _ Metadata, _, _ bool) ([]byte, error) {
	return nil, ErrNotStreamable
}

func (xmlCodec) Decode(data []byte) ([]db.Row, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var rows []db.Row
	var row db.Row
	var field string
	var inData bool

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml decode: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "data":
				inData = true
			case t.Name.Local == "record" && inData:
				row = db.Row{}
			case row != nil:
				field = t.Name.Local
				// Empty elements emit no character data.
				row[field] = ""
			}
		case xml.CharData:
			if row != nil && field != "" {
				row[field] = string(t)
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "record" && row != nil:
				rows = append(rows, row)
				row = nil
			case t.Name.Local == "data":
				inData = false
			default:
				field = ""
			}
		}
	}
	return rows, nil
}

func writeXMLElement(buf *bytes.Buffer, indent, name, value string) {
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(name)
	buf.WriteByte('>')
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteString(">\n")
}
