package value

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Decoder converts text stored in a legacy code page to UTF-8. A nil
// *Decoder passes values through untouched.
type Decoder struct {
	charset string
	dec     *encoding.Decoder
}

// NewDecoder returns a decoder for the named charset (IANA name, e.g.
// "windows-1252", "EUC-KR"). An empty name or UTF-8 returns nil.
func NewDecoder(charset string) (*Decoder, error) {
	if charset == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", charset)
	}
	name, _ := ianaindex.IANA.Name(enc)
	if name == "UTF-8" {
		return nil, nil
	}
	return &Decoder{charset: name, dec: enc.NewDecoder()}, nil
}

// Charset returns the canonical charset name.
func (d *Decoder) Charset() string {
	if d == nil {
		return "UTF-8"
	}
	return d.charset
}

// DecodeBytes decodes raw column bytes.
func (d *Decoder) DecodeBytes(b []byte) string {
	if d == nil {
		return string(b)
	}
	out, err := d.dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// DecodeString decodes s only when it is not already valid UTF-8; drivers
// that return strings have usually converted them.
func (d *Decoder) DecodeString(s string) string {
	if d == nil || utf8.ValidString(s) {
		return s
	}
	return d.DecodeBytes([]byte(s))
}
