package css

import (
	"cssdeps/utils/debug"
)

type treeWriter struct {
	*debug.TreeWriter
}

// String returns a readable tree of the parsed stylesheet.
// It exists solely for manual inspection during debugging.
func (s *Stylesheet) String() string {
	if s == nil {
		return "<nil Stylesheet>"
	}

	tw := treeWriter{debug.NewTreeWriter()}
	kind := "Stylesheet"
	if s.Inline {
		kind = "Inline style"
	}
	tw.Line(0, "%s %q rules[%d] bytes[%d]", kind, s.Filename, len(s.Rules), len(s.src))
	for _, n := range s.Rules {
		tw.node(1, n)
	}
	if len(s.Warnings) > 0 {
		tw.Line(0, "Warnings: %d", len(s.Warnings))
		for _, w := range s.Warnings {
			tw.Line(1, "%s", w.Error())
		}
	}
	return tw.String()
}

func (tw treeWriter) node(depth int, n Node) {
	switch n := n.(type) {
	case *ImportRule:
		tw.Line(depth, "Import %q span[%d:%d]", n.URL, n.Span.Start, n.Span.End)
		if n.Layer != "" {
			tw.TextBlock(depth+1, "layer", n.Layer)
		}
		if n.Supports != "" {
			tw.TextBlock(depth+1, "supports", n.Supports)
		}
		if n.Media != "" {
			tw.TextBlock(depth+1, "media", n.Media)
		}
	case *AtRule:
		tw.Line(depth, "AtRule %s kind[%d] span[%d:%d]", n.Name, n.Kind, n.Span.Start, n.Span.End)
		if len(n.Prelude) > 0 {
			tw.TextBlock(depth+1, "prelude", joinTokens(n.Prelude))
		}
		if len(n.Tokens) > 0 {
			tw.TextBlock(depth+1, "tokens", joinTokens(n.Tokens))
		}
		for _, c := range n.Body {
			tw.node(depth+1, c)
		}
	case *StyleRule:
		tw.Line(depth, "StyleRule span[%d:%d]", n.Span.Start, n.Span.End)
		tw.TextBlock(depth+1, "selector", n.Selector())
		for _, c := range n.Body {
			tw.node(depth+1, c)
		}
	case *Declaration:
		flags := ""
		if n.Custom {
			flags += " custom"
		}
		if n.Important {
			flags += " important"
		}
		tw.Line(depth, "Declaration %s%s", n.Property, flags)
		tw.TextBlock(depth+1, "value", joinTokens(n.Value))
	case *RawTokens:
		tw.Line(depth, "Raw tokens[%d] span[%d:%d]", len(n.Tokens), n.Span.Start, n.Span.End)
		tw.TextBlock(depth+1, "text", joinTokens(n.Tokens))
	default:
		tw.Line(depth, "Unknown node %T", n)
	}
}

// DumpDependencies returns a readable table of dependencies.
func DumpDependencies(deps []Dependency) string {
	tw := debug.NewTreeWriter()
	tw.Line(0, "Dependencies: %d", len(deps))
	for i, d := range deps {
		tw.Line(1, "[%d] %s %q placeholder[%s] at %s", i, d.Kind, d.URL, d.Placeholder, d.Loc)
		if d.Layer != "" || d.Supports != "" || d.Media != "" {
			tw.Line(2, "layer[%s] supports[%s] media[%s]", d.Layer, d.Supports, d.Media)
		}
	}
	return tw.String()
}
