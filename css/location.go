package css

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// lineIndex keeps offsets of line starts. Engine errors carry their own
// positions but computing one means rescanning input from the beginning, which
// is too slow for every dependency of a large stylesheet.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\n', '\f':
			idx = append(idx, i+1)
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			idx = append(idx, i+1)
		}
	}
	return idx
}

// position returns 1-based line and column (in runes) of offset.
func (idx lineIndex) position(src string, offset int) (int, int) {
	if len(idx) == 0 {
		return 1, 1
	}
	offset = max(0, min(offset, len(src)))
	line := sort.Search(len(idx), func(i int) bool { return idx[i] > offset }) - 1
	line = max(line, 0)
	return line + 1, utf8.RuneCountInString(src[idx[line]:offset]) + 1
}

// skipTrivia returns offset of the first byte at or after from which is
// neither whitespace nor part of a comment.
func skipTrivia(src string, from int) int {
	i := from
	for i < len(src) {
		switch c := src[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := indexFrom(src, "*/", i+2)
			if end < 0 {
				return len(src)
			}
			i = end + 2
		default:
			return i
		}
	}
	return i
}

// indexFrom is strings.Index starting at from, returning absolute offset or -1.
func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	if i := strings.Index(s[from:], substr); i >= 0 {
		return from + i
	}
	return -1
}
