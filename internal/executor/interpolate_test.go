package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLLiteral_Strings(t *testing.T) {
	assert.Equal(t, "'alice'", sqlLiteral("alice"))
	assert.Equal(t, "''", sqlLiteral(""))
	assert.Equal(t, "'O''Brien'", sqlLiteral("O'Brien"))
	assert.Equal(t, "'it''s ''quoted'''", sqlLiteral("it's 'quoted'"))
}

func TestSQLLiteral_Numbers(t *testing.T) {
	assert.Equal(t, "42", sqlLiteral(42))
	assert.Equal(t, "-7", sqlLiteral(-7))
	assert.Equal(t, "42", sqlLiteral(int64(42)))
	assert.Equal(t, "3.14", sqlLiteral(3.14))
	assert.Equal(t, "2", sqlLiteral(float64(2)))
}

func TestSQLLiteral_Booleans(t *testing.T) {
	assert.Equal(t, "TRUE", sqlLiteral(true))
	assert.Equal(t, "FALSE", sqlLiteral(false))
}

func TestSQLLiteral_Null(t *testing.T) {
	assert.Equal(t, "NULL", sqlLiteral(nil))
}

func TestSQLLiteral_Lists(t *testing.T) {
	assert.Equal(t, "1, 2, 3", sqlLiteral([]any{1, 2, 3}))
	assert.Equal(t, "'a', 'b'", sqlLiteral([]any{"a", "b"}))
	assert.Equal(t, "1, 'two', NULL, TRUE", sqlLiteral([]any{1, "two", nil, true}))
	assert.Equal(t, "'x', 'y'", sqlLiteral([]string{"x", "y"}))
	assert.Equal(t, "4, 5", sqlLiteral([]int{4, 5}))
}

func TestSQLLiteral_FallbackQuotesTextForm(t *testing.T) {
	type opaque struct{ A int }
	assert.Equal(t, "'{1}'", sqlLiteral(opaque{A: 1}))
}

// Round-trip property: any interpolated string parses back to itself when
// read as a SQL literal.
func TestSQLLiteral_StringRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"with 'quotes'",
		"''",
		"trailing'",
		"'leading",
		"unicode: жизнь",
	}
	for _, in := range inputs {
		lit := sqlLiteral(in)
		// Strip outer quotes, undo doubling.
		body := lit[1 : len(lit)-1]
		assert.Equal(t, in, undouble(body), in)
	}
}

func undouble(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == '\'' && i+1 < len(s) && s[i+1] == '\'' {
			i++
		}
	}
	return string(out)
}
