package scan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"

	"cssdeps/config"
)

type srcEncoding int

const (
	encUnknown srcEncoding = iota
	encUTF8
	encUTF16BigEndian
	encUTF16LittleEndian
	encUTF32BigEndian
	encUTF32LittleEndian
)

func (e srcEncoding) String() string {
	switch e {
	case encUTF8:
		return "utf-8"
	case encUTF16BigEndian:
		return "utf-16be"
	case encUTF16LittleEndian:
		return "utf-16le"
	case encUTF32BigEndian:
		return "utf-32be"
	case encUTF32LittleEndian:
		return "utf-32le"
	default:
		return "unknown"
	}
}

func isUTF32BigEndianBOM4(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 0x00 && buf[1] == 0x00 && buf[2] == 0xFE && buf[3] == 0xFF
}

func isUTF32LittleEndianBOM4(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 0xFF && buf[1] == 0xFE && buf[2] == 0x00 && buf[3] == 0x00
}

func isUTF8BOM3(buf []byte) bool {
	return len(buf) >= 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF
}

func isUTF16BigEndianBOM2(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF
}

func isUTF16LittleEndianBOM2(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xFE
}

// detectUTF looks for byte order mark. UTF-32 must be checked first since
// UTF-32LE mark starts with UTF-16LE one.
func detectUTF(buf []byte) srcEncoding {
	switch {
	case isUTF32BigEndianBOM4(buf):
		return encUTF32BigEndian
	case isUTF32LittleEndianBOM4(buf):
		return encUTF32LittleEndian
	case isUTF8BOM3(buf):
		return encUTF8
	case isUTF16BigEndianBOM2(buf):
		return encUTF16BigEndian
	case isUTF16LittleEndianBOM2(buf):
		return encUTF16LittleEndian
	}
	return encUnknown
}

// selectReader returns reader producing UTF-8 text without byte order mark.
func selectReader(r io.Reader, enc srcEncoding) io.Reader {
	switch enc {
	case encUnknown:
		return r
	case encUTF8:
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	case encUTF16BigEndian:
		return transform.NewReader(r, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	case encUTF16LittleEndian:
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	case encUTF32BigEndian:
		return transform.NewReader(r, utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM).NewDecoder())
	case encUTF32LittleEndian:
		return transform.NewReader(r, utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM).NewDecoder())
	}
	// this should never happen
	panic(fmt.Sprintf("unexpected source encoding %d", enc))
}

// isArchiveFile checks file signature, any zip container (including epub)
// is treated as archive.
func isArchiveFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

type sourceKind int

const (
	kindNone sourceKind = iota
	kindStylesheet
	kindMarkup
)

func (k sourceKind) String() string {
	switch k {
	case kindStylesheet:
		return "stylesheet"
	case kindMarkup:
		return "markup"
	default:
		return "none"
	}
}

// classifier decides what to do with a file judging by its name.
type classifier struct {
	styles []string
	markup []string
}

func newClassifier(cfg *config.ExtractionConfig) classifier {
	c := classifier{styles: lowered(cfg.Extensions)}
	if cfg.Markup {
		c.markup = lowered(cfg.MarkupExtensions)
	}
	return c
}

func lowered(exts []string) []string {
	res := make([]string, 0, len(exts))
	for _, e := range exts {
		res = append(res, strings.ToLower(e))
	}
	return res
}

// kind works with both OS and archive paths.
func (c classifier) kind(name string) sourceKind {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/")))
	switch {
	case ext == "":
		return kindNone
	case slices.Contains(c.styles, ext):
		return kindStylesheet
	case slices.Contains(c.markup, ext):
		return kindMarkup
	}
	return kindNone
}

// explicit is used for files named on the command line: they are always
// processed, as markup when extension says so and as stylesheet otherwise.
func (c classifier) explicit(name string) sourceKind {
	if k := c.kind(name); k != kindNone {
		return k
	}
	return kindStylesheet
}

func (c classifier) wanted(name string) bool {
	return c.kind(name) != kindNone
}

// stripped returns UTF-8 text of BOM-marked data.
func stripped(data []byte) ([]byte, error) {
	return io.ReadAll(selectReader(bytes.NewReader(data), detectUTF(data)))
}
