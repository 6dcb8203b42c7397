package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// renderValue renders a row value as text for the column-oriented
// formats. Null renders as the empty string.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sqlLiteral renders a row value as a SQL literal. Strings and dates
// are escape-quoted; null renders as NULL.
func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339Nano) + "'"
	default:
		s := renderValue(v)
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
}
