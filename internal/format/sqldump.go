package format

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/dbferry/dbferry/internal/db"
)

// sqlCodec emits one INSERT statement per row. This format is
// write-oriented: backup uses it for dumps that can be replayed with a
// plain SQL client.
type sqlCodec struct{}

func (sqlCodec) Name() string      { return "sql" }
func (sqlCodec) Extension() string { return "sql" }

func (c sqlCodec) Encode(rows []db.Row, meta Metadata) ([]byte, error) {
	return c.EncodeChunk(rows, meta, true, true)
}

func (sqlCodec) EncodeChunk(rows []db.Row, meta Metadata, _, _ bool) ([]byte, error) {
	if meta.Table == "" {
		return nil, fmt.Errorf("sql encode requires a table name")
	}

	var buf bytes.Buffer
	for _, row := range rows {
		columns := sortedColumns(row)
		buf.WriteString("INSERT INTO ")
		buf.WriteString(meta.Table)
		buf.WriteString(" (")
		buf.WriteString(strings.Join(columns, ", "))
		buf.WriteString(") VALUES (")
		for i, col := range columns {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(sqlLiteral(row[col]))
		}
		buf.WriteString(");\n")
	}
	return buf.Bytes(), nil
}

// Decode parses the INSERT statements the encoder produces, one per
// line.
func (sqlCodec) Decode(data []byte) ([]db.Row, error) {
	var rows []db.Row
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		row, err := parseInsert(line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseInsert(stmt string) (db.Row, error) {
	open := strings.Index(stmt, "(")
	if open < 0 || !strings.HasPrefix(strings.ToUpper(stmt), "INSERT INTO ") {
		return nil, fmt.Errorf("sql decode: not an insert statement: %s", stmt)
	}
	closeIdx := strings.Index(stmt[open:], ")")
	if closeIdx < 0 {
		return nil, fmt.Errorf("sql decode: malformed column list: %s", stmt)
	}
	closeIdx += open

	columns := strings.Split(stmt[open+1:closeIdx], ",")
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}

	valuesIdx := strings.Index(strings.ToUpper(stmt[closeIdx:]), "VALUES")
	if valuesIdx < 0 {
		return nil, fmt.Errorf("sql decode: missing values clause: %s", stmt)
	}
	valuesPart := strings.TrimSpace(stmt[closeIdx+valuesIdx+len("VALUES"):])
	valuesPart = strings.TrimSuffix(strings.TrimSpace(valuesPart), ";")
	if !strings.HasPrefix(valuesPart, "(") || !strings.HasSuffix(valuesPart, ")") {
		return nil, fmt.Errorf("sql decode: malformed values list: %s", stmt)
	}

	values, err := splitSQLValues(valuesPart[1 : len(valuesPart)-1])
	if err != nil {
		return nil, fmt.Errorf("sql decode: %w", err)
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("sql decode: %d columns but %d values: %s", len(columns), len(values), stmt)
	}

	row := db.Row{}
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// splitSQLValues splits a VALUES tuple on commas, honoring quoted
// literals with doubled-quote escapes.
func splitSQLValues(s string) ([]any, error) {
	var values []any
	var current strings.Builder
	var quoted *string
	inQuote := false

	flush := func() error {
		raw := strings.TrimSpace(current.String())
		current.Reset()
		if quoted != nil {
			values = append(values, *quoted)
			quoted = nil
			return nil
		}
		switch {
		case raw == "NULL":
			values = append(values, nil)
		case raw == "":
			return fmt.Errorf("empty value in tuple %q", s)
		default:
			if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
				values = append(values, i)
			} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
				values = append(values, f)
			} else {
				values = append(values, raw)
			}
		}
		return nil
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' && inQuote:
			if i+1 < len(runes) && runes[i+1] == '\'' {
				// Doubled quote inside a literal.
				current.WriteRune('\'')
				i++
				continue
			}
			inQuote = false
			val := current.String()
			quoted = &val
			current.Reset()
		case c == '\'':
			inQuote = true
			// Discard separator whitespace collected before the quote.
			current.Reset()
		case c == ',' && !inQuote:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			current.WriteRune(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string literal in tuple %q", s)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return values, nil
}
