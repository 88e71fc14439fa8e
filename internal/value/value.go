// Package value models source row values and renders them as PostgreSQL
// literals.
package value

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the variant tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a single column value: null, text, integer or floating point.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

// Null returns the absent value.
func Null() Value { return Value{kind: KindNull} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the absent value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Literal renders v as a SQL literal.
func (v Value) Literal() string {
	switch v.kind {
	case KindText:
		return EscapeString(v.s)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		switch {
		case math.IsNaN(v.f):
			return "'NaN'"
		case math.IsInf(v.f, 1):
			return "'Infinity'"
		case math.IsInf(v.f, -1):
			return "'-Infinity'"
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return "NULL"
	}
}

// String returns the unescaped textual form, or "<nil>" for null.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return "<nil>"
	}
}

// FromAny converts a value scanned by database/sql. dec may be nil.
func FromAny(v any, dec *Decoder) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case int64:
		return Int(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Text(strconv.FormatUint(x, 10))
		}
		return Int(int64(x))
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case bool:
		// Yes/No columns land in BIT(1), which accepts '1' and '0'.
		if x {
			return Text("1")
		}
		return Text("0")
	case time.Time:
		return Text(formatTime(x))
	case []byte:
		return Text(dec.DecodeBytes(x))
	case string:
		return Text(dec.DecodeString(x))
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}

// FromRow converts a scanned row.
func FromRow(row []any, dec *Decoder) []Value {
	out := make([]Value, len(row))
	for i, v := range row {
		out[i] = FromAny(v, dec)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02 15:04:05.000000")
	}
	return t.Format(time.DateTime)
}
