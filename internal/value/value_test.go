package value

import (
	"math"
	"testing"
	"time"
)

func TestLiteral(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), "NULL"},
		{"int", Int(1), "1"},
		{"negative int", Int(-42), "-42"},
		{"float", Float(12.5), "12.5"},
		{"float round trip", Float(0.1), "0.1"},
		{"large float", Float(1e21), "1e+21"},
		{"nan", Float(math.NaN()), "'NaN'"},
		{"inf", Float(math.Inf(1)), "'Infinity'"},
		{"neg inf", Float(math.Inf(-1)), "'-Infinity'"},
		{"text", Text("O'Brien"), `E'O\'Brien'`},
		{"empty text is not null", Text(""), "E''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Literal(); got != tt.want {
				t.Errorf("Literal() = %s, want %s", got, tt.want)
			}
		})
	}
}

type label struct{ s string }

func (l label) String() string { return l.s }

func TestFromAny(t *testing.T) {
	ts := time.Date(2019, 7, 1, 9, 30, 0, 0, time.UTC)
	tsMicro := time.Date(2019, 7, 1, 9, 30, 0, 123456000, time.UTC)

	tests := []struct {
		name     string
		input    any
		wantKind Kind
		wantLit  string
	}{
		{"nil", nil, KindNull, "NULL"},
		{"int64", int64(7), KindInt, "7"},
		{"int32", int32(-3), KindInt, "-3"},
		{"uint8", uint8(255), KindInt, "255"},
		{"huge uint64", uint64(math.MaxUint64), KindText, "E'18446744073709551615'"},
		{"float64", 127.25, KindFloat, "127.25"},
		{"float32", float32(0.5), KindFloat, "0.5"},
		{"true", true, KindText, "E'1'"},
		{"false", false, KindText, "E'0'"},
		{"time", ts, KindText, "E'2019-07-01 09:30:00'"},
		{"time with micros", tsMicro, KindText, "E'2019-07-01 09:30:00.123456'"},
		{"string", "Jongno-gu", KindText, "E'Jongno-gu'"},
		{"bytes", []byte("it's"), KindText, `E'it\'s'`},
		{"stringer", label{"x"}, KindText, "E'x'"},
		{"other", struct{ A int }{1}, KindText, "E'{1}'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FromAny(tt.input, nil)
			if v.Kind() != tt.wantKind {
				t.Errorf("FromAny(%#v).Kind() = %v, want %v", tt.input, v.Kind(), tt.wantKind)
			}
			if got := v.Literal(); got != tt.wantLit {
				t.Errorf("FromAny(%#v).Literal() = %s, want %s", tt.input, got, tt.wantLit)
			}
		})
	}
}

func TestFromRowKeepsOrderAndNulls(t *testing.T) {
	row := []any{int64(1), "O'Brien", nil}
	vals := FromRow(row, nil)
	if len(vals) != 3 {
		t.Fatalf("len = %d, want 3", len(vals))
	}
	want := []string{"1", `E'O\'Brien'`, "NULL"}
	for i, v := range vals {
		if v.Literal() != want[i] {
			t.Errorf("vals[%d] = %s, want %s", i, v.Literal(), want[i])
		}
	}
	if !vals[2].IsNull() {
		t.Error("vals[2] should be null")
	}
}

func TestDecoder(t *testing.T) {
	dec, err := NewDecoder("windows-1252")
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Charset() != "windows-1252" {
		t.Errorf("Charset() = %q", dec.Charset())
	}

	// 0xE9 is é in cp1252.
	v := FromAny([]byte{'c', 'a', 'f', 0xE9}, dec)
	if v.String() != "café" {
		t.Errorf("decoded = %q, want café", v.String())
	}

	// Strings that are already UTF-8 are left alone.
	if got := dec.DecodeString("서울"); got != "서울" {
		t.Errorf("DecodeString changed valid UTF-8: %q", got)
	}
	if got := dec.DecodeString("caf\xe9"); got != "café" {
		t.Errorf("DecodeString(invalid utf8) = %q, want café", got)
	}
}

func TestNewDecoderPassthrough(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8"} {
		dec, err := NewDecoder(name)
		if name == "UTF8" {
			// Not an IANA name; either an error or a passthrough is fine,
			// but it must never be a real decoder.
			if err == nil && dec != nil {
				t.Errorf("NewDecoder(%q) returned a decoder", name)
			}
			continue
		}
		if err != nil || dec != nil {
			t.Errorf("NewDecoder(%q) = %v, %v; want nil, nil", name, dec, err)
		}
	}
	var nilDec *Decoder
	if got := nilDec.DecodeBytes([]byte("abc")); got != "abc" {
		t.Errorf("nil decoder changed bytes: %q", got)
	}
}

func TestNewDecoderUnknown(t *testing.T) {
	if _, err := NewDecoder("klingon-8"); err == nil {
		t.Error("expected error for unknown charset")
	}
}
