package scan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/maruel/natural"
	"gopkg.in/yaml.v3"

	"cssdeps/config"
	"cssdeps/css"
	"cssdeps/misc"
)

// Entry is extraction outcome for a single stylesheet or style attribute.
type Entry struct {
	Source   string        `json:"source" yaml:"source"`
	Inline   bool          `json:"inline,omitempty" yaml:"inline,omitempty"`
	Charset  string        `json:"charset,omitempty" yaml:"charset,omitempty"`
	Imports  []string      `json:"imports" yaml:"imports"`
	URLs     []string      `json:"urls" yaml:"urls"`
	Warnings []css.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Document is what extract command outputs. It is also the data passed to
// user template.
type Document struct {
	Program string  `json:"program" yaml:"program"`
	Version string  `json:"version" yaml:"version"`
	Entries []Entry `json:"entries" yaml:"entries"`
	Failed  int     `json:"failed" yaml:"failed"`
}

func newDocument(entries []Entry) *Document {
	doc := &Document{
		Program: misc.GetAppName(),
		Version: misc.GetVersion(),
		Entries: make([]Entry, 0, len(entries)),
	}
	doc.Entries = append(doc.Entries, entries...)
	sort.SliceStable(doc.Entries, func(i, j int) bool {
		return natural.Less(doc.Entries[i].Source, doc.Entries[j].Source)
	})
	for _, e := range doc.Entries {
		if e.Error != "" {
			doc.Failed++
		}
	}
	return doc
}

// render writes document in requested format. tmpl is only used with
// template format.
func render(w io.Writer, doc *Document, format config.OutputFormat, tmpl string) error {
	switch format {
	case config.OutputFormatJson:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	case config.OutputFormatYaml:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case config.OutputFormatText:
		return renderText(w, doc)
	case config.OutputFormatTemplate:
		t, err := template.New("output").Funcs(sprig.FuncMap()).Parse(tmpl)
		if err != nil {
			return fmt.Errorf("unable to parse output template: %w", err)
		}
		return t.Execute(w, doc)
	}
	return fmt.Errorf("unsupported output format %s", format)
}

func renderText(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	for _, e := range doc.Entries {
		fmt.Fprintln(bw, e.Source)
		if e.Error != "" {
			fmt.Fprintf(bw, "  error %s\n", e.Error)
			continue
		}
		for _, s := range e.Imports {
			fmt.Fprintf(bw, "  import %s\n", s)
		}
		for _, s := range e.URLs {
			fmt.Fprintf(bw, "  url %s\n", s)
		}
		for _, warn := range e.Warnings {
			fmt.Fprintf(bw, "  warning %s\n", warn.Error())
		}
	}
	return bw.Flush()
}
