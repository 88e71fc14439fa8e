package value

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotText is wrapped by TypeError.
var ErrNotText = errors.New("value is not text")

// TypeError reports a value that has no text representation.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%#v (%T) must be a string, []byte or fmt.Stringer", e.Value, e.Value)
}

func (e *TypeError) Unwrap() error { return ErrNotText }

const hexDigits = "0123456789abcdef"

// EscapeString renders s as a PostgreSQL extended string literal (E'...').
//
// Backslash, apostrophe and the common control characters get their
// backslash escapes; every other byte outside printable ASCII, including
// each byte of multi-byte UTF-8 sequences, becomes \xNN. The result never
// contains a raw line break.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	b.WriteString("E'")
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\'':
			b.WriteString(`\'`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			b.WriteString(`\x`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Quote escapes a text-representable value. Callers are expected to have
// stringified the value already; anything else is a *TypeError.
func Quote(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return EscapeString(x), nil
	case []byte:
		return EscapeString(string(x)), nil
	case fmt.Stringer:
		return EscapeString(x.String()), nil
	default:
		return "", &TypeError{Value: v}
	}
}
