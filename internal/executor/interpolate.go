package executor

import (
	"fmt"
	"strconv"
	"strings"
)

// sqlLiteral renders a namespace value as a SQL literal by its runtime
// kind. Lists render as comma-separated literals so authors can write
// "IN ({{xs}})"; the parentheses stay with the author.
func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = sqlLiteral(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = quoteString(item)
		}
		return strings.Join(parts, ", ")
	case []int:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = strconv.Itoa(item)
		}
		return strings.Join(parts, ", ")
	default:
		return quoteString(fmt.Sprint(v))
	}
}

// quoteString single-quotes a string, doubling internal single quotes.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
