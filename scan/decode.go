package scan

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// decoder turns raw source bytes into UTF-8 text.
type decoder struct {
	fallback     encoding.Encoding
	fallbackName string
}

func newDecoder(label string) (*decoder, error) {
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("unknown default charset %q", label)
	}
	return &decoder{fallback: enc, fallbackName: name}, nil
}

var (
	charsetPrefix = []byte(`@charset "`)
	charsetSuffix = []byte(`";`)
)

// charsetRule returns label of @charset rule. The rule is only recognized
// when written exactly as `@charset "label";` at the very start of the file.
func charsetRule(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, charsetPrefix) {
		return "", false
	}
	rest := data[len(charsetPrefix):]
	if len(rest) > 1024 {
		rest = rest[:1024]
	}
	end := bytes.Index(rest, charsetSuffix)
	if end <= 0 {
		return "", false
	}
	label := rest[:end]
	if bytes.ContainsAny(label, "\"\r\n") {
		return "", false
	}
	return string(label), true
}

// stylesheet decodes css source: byte order mark wins, then @charset rule,
// then the text is used as is when it is valid UTF-8 and configured default
// charset otherwise. Returns text and name of the charset used.
func (d *decoder) stylesheet(data []byte) (string, string, error) {
	if enc := detectUTF(data); enc != encUnknown {
		text, err := stripped(data)
		if err != nil {
			return "", "", fmt.Errorf("unable to decode from %s: %w", enc, err)
		}
		return string(text), enc.String(), nil
	}
	if label, ok := charsetRule(data); ok {
		if enc, name := charset.Lookup(label); enc != nil {
			// rule was readable as ASCII, so text cannot be UTF-16
			if strings.HasPrefix(name, "utf-16") {
				enc, name = unicode.UTF8, "utf-8"
			}
			return d.convert(data, enc, name)
		}
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	return d.convert(data, d.fallback, d.fallbackName)
}

// markup decodes html source following html rules: byte order mark, then
// <meta> declaration. When nothing is declared html falls back to
// windows-1252, configured default charset is used instead unless it is
// UTF-8.
func (d *decoder) markup(data []byte) (string, string, error) {
	if enc := detectUTF(data); enc != encUnknown {
		text, err := stripped(data)
		if err != nil {
			return "", "", fmt.Errorf("unable to decode from %s: %w", enc, err)
		}
		return string(text), enc.String(), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, "")
	if name == "windows-1252" {
		if utf8.Valid(data) {
			return string(data), "utf-8", nil
		}
		if d.fallbackName != "utf-8" {
			enc, name = d.fallback, d.fallbackName
		}
	}
	return d.convert(data, enc, name)
}

func (d *decoder) convert(data []byte, enc encoding.Encoding, name string) (string, string, error) {
	if name == "utf-8" {
		// invalid sequences are left for the parser to report
		return string(data), name, nil
	}
	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("unable to decode from %s: %w", name, err)
	}
	return string(text), name, nil
}
