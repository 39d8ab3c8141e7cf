package deps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"

	"cssdeps/config"
	"cssdeps/css"
)

// Tracer records how stylesheets were understood by the extractor: parsed
// tree, recovered errors, serialized code and dependency table. A nil Tracer
// is valid and records nothing.
//
// NOTE: not to be used concurrently.
type Tracer struct {
	entries []traceEntry
	counts  map[string]int
}

type traceEntry struct {
	source string
	failed bool
	text   string
}

// NewTracer creates enabled tracer.
func NewTracer() *Tracer {
	return &Tracer{counts: make(map[string]int)}
}

// IsEnabled returns true if tracing is active.
func (t *Tracer) IsEnabled() bool {
	return t != nil
}

func (t *Tracer) traceSheet(source string, sheet *css.Stylesheet, code string, res *Result) {
	if !t.IsEnabled() {
		return
	}

	var sb strings.Builder
	sb.WriteString(sheet.String())
	sb.WriteString("\n")
	sb.WriteString(css.DumpDependencies(res.Dependencies))
	sb.WriteString("\nSerialized:\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")
	sb.WriteString(code)

	t.entries = append(t.entries, traceEntry{source: source, text: sb.String()})
	t.counts["stylesheets"]++
	t.counts["imports"] += len(res.Imports)
	t.counts["urls"] += len(res.URLs)
	t.counts["warnings"] += len(res.Warnings)
}

func (t *Tracer) traceFailure(source string, err error) {
	if !t.IsEnabled() {
		return
	}
	t.entries = append(t.entries, traceEntry{source: source, failed: true, text: err.Error() + "\n"})
	t.counts["failures"]++
}

// Len returns number of recorded stylesheets.
func (t *Tracer) Len() int {
	if !t.IsEnabled() {
		return 0
	}
	return len(t.entries)
}

// Summary returns counters and list of traced sources.
func (t *Tracer) Summary() string {
	if !t.IsEnabled() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("=== Stylesheet Dependency Trace ===\n\n")
	sb.WriteString("Summary:\n")

	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %d\n", k, t.counts[k]))
	}

	sb.WriteString("\nSources:\n")
	for i, e := range t.entries {
		state := "ok"
		if e.failed {
			state = "FAILED"
		}
		sb.WriteString(fmt.Sprintf("[%04d] %s %s\n", i+1, state, sourceName(e.source)))
	}
	return sb.String()
}

// Flush stores summary and every recorded stylesheet trace in the report and
// resets the tracer. Names of stored entries are returned.
func (t *Tracer) Flush(rpt *config.Report) []string {
	if !t.IsEnabled() || len(t.entries) == 0 || rpt == nil {
		return nil
	}

	names := make([]string, 0, len(t.entries)+1)
	names = append(names, rpt.StoreData("trace/summary.txt", []byte(t.Summary())))
	for _, e := range t.entries {
		names = append(names, rpt.StoreData(traceName(e.source), []byte(e.text)))
	}

	t.entries = nil
	t.counts = make(map[string]int)
	return names
}

func sourceName(source string) string {
	if source == "" {
		return "<unnamed>"
	}
	return source
}

// traceName makes report entry name from source which could be a path inside
// archive, a markup fragment reference or nothing at all.
func traceName(source string) string {
	name := slug.Make(source)
	if name == "" {
		name = "unnamed"
	}
	return "trace/" + name + ".txt"
}
