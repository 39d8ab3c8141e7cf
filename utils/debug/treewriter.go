// Package debug has helpers producing human readable dumps for debug reports.
package debug

import (
	"fmt"
	"strconv"
	"strings"
)

// TreeWriter accumulates indented lines, two spaces per level.
type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{
		w: &strings.Builder{},
	}
}

func (tw TreeWriter) String() string {
	return tw.w.String()
}

// Len returns number of bytes written so far.
func (tw TreeWriter) Len() int {
	return tw.w.Len()
}

func (tw TreeWriter) indent(depth int) {
	for range depth {
		tw.w.WriteString("  ")
	}
}

func (tw TreeWriter) Line(depth int, format string, args ...any) {
	tw.indent(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes label with quoted value, empty value is left empty.
func (tw TreeWriter) TextBlock(depth int, label, value string) {
	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(quoted(value))
	tw.w.WriteByte('\n')
}

// List writes label with item count followed by quoted items one level deeper.
func (tw TreeWriter) List(depth int, label string, items []string) {
	tw.Line(depth, "%s (%d)", label, len(items))
	for i, item := range items {
		tw.indent(depth + 1)
		fmt.Fprintf(tw.w, "[%d] %s\n", i, quoted(item))
	}
}

func quoted(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
