package css

import (
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// PrinterOptions controls serialization.
type PrinterOptions struct {
	// AnalyzeDependencies, when set, replaces every reference with its
	// placeholder and reports it.
	AnalyzeDependencies *DependencyOptions
}

// ToCSSResult is serialized stylesheet with dependencies in the order they
// were written.
type ToCSSResult struct {
	Code         string
	Dependencies []Dependency
}

// ToCSS serializes the stylesheet.
func (s *Stylesheet) ToCSS(opts PrinterOptions) (*ToCSSResult, error) {
	var sb strings.Builder
	sb.Grow(len(s.src))
	deps, err := s.WriteCSS(&sb, opts)
	if err != nil {
		return nil, err
	}
	return &ToCSSResult{Code: sb.String(), Dependencies: deps}, nil
}

// WriteCSS serializes the stylesheet to w and returns dependencies found.
func (s *Stylesheet) WriteCSS(w io.Writer, opts PrinterOptions) ([]Dependency, error) {
	p := &printer{w: w, sheet: s, analyze: opts.AnalyzeDependencies, deps: make([]Dependency, 0)}
	for _, n := range s.Rules {
		p.node(n)
		if p.err != nil {
			return nil, p.err
		}
	}
	if p.started {
		p.write("\n")
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.deps, nil
}

type printer struct {
	w       io.Writer
	err     error
	sheet   *Stylesheet
	analyze *DependencyOptions
	deps    []Dependency
	cursor  int // source offset past the last located reference
	level   int
	started bool
}

func (p *printer) fail(format string, args ...any) {
	if p.err == nil {
		p.err = &SerializeError{Message: fmt.Sprintf(format, args...)}
	}
}

func (p *printer) write(s string) {
	if p.err != nil {
		return
	}
	if _, err := io.WriteString(p.w, s); err != nil {
		p.err = &SerializeError{Message: "unable to write stylesheet", Err: err}
	}
}

// begin starts a new line at current indentation.
func (p *printer) begin() {
	if p.started {
		p.write("\n")
		p.write(strings.Repeat("  ", p.level))
	}
	p.started = true
}

func (p *printer) node(n Node) {
	if p.err != nil {
		return
	}
	switch n := n.(type) {
	case *ImportRule:
		p.importRule(n)
	case *AtRule:
		p.atRule(n)
	case *StyleRule:
		p.begin()
		p.tokens(n.Prelude, n.Span)
		p.block(n.Body)
	case *Declaration:
		p.begin()
		p.write(n.Property)
		p.write(": ")
		p.tokens(n.Value, n.Span)
		if n.Important {
			p.write(" !important")
		}
		p.write(";")
	case *RawTokens:
		p.begin()
		p.tokens(n.Tokens, n.Span)
	case nil:
		p.fail("nil node")
	default:
		p.fail("unknown node type %T", n)
	}
}

func (p *printer) block(body []Node) {
	p.write(" {")
	p.level++
	for _, n := range body {
		p.node(n)
	}
	p.level--
	p.begin()
	p.write("}")
}

func (p *printer) importRule(n *ImportRule) {
	if n.Token.Data == "" {
		p.fail("@import rule without url")
		return
	}
	target := n.URL
	if p.analyze != nil {
		target = Placeholder(p.sheet.Filename, n.URL)
		p.deps = append(p.deps, Dependency{
			Kind:        DependencyImport,
			URL:         n.URL,
			Placeholder: target,
			Layer:       n.Layer,
			Supports:    n.Supports,
			Media:       n.Media,
			Loc:         p.locate(n.Token, n.Span),
		})
		if p.analyze.RemoveImports {
			return
		}
	}
	p.begin()
	p.write("@import ")
	p.write(quoteString(target))
	if n.Layer != "" {
		p.write(" " + n.Layer)
	}
	if n.Supports != "" {
		p.write(" supports(" + n.Supports + ")")
	}
	if n.Media != "" {
		p.write(" " + n.Media)
	}
	p.write(";")
}

func (p *printer) atRule(n *AtRule) {
	p.begin()
	p.write(n.Name)
	if len(n.Prelude) > 0 {
		p.write(" ")
		p.tokens(n.Prelude, n.Span)
	}
	switch n.Kind {
	case AtRuleStatement:
		p.write(";")
	case AtRuleRules, AtRuleDeclarations:
		p.block(n.Body)
	case AtRuleRaw:
		p.write(" {")
		p.tokens(n.Tokens, n.Span)
		p.write("}")
	default:
		p.fail("unknown kind %d of %s rule", int(n.Kind), n.Name)
	}
}

// tokens writes tokens replacing references when analysis is on. Strings
// directly inside image-set() are references too.
func (p *printer) tokens(tokens []Token, span Span) {
	var imageSet []bool // open functions and brackets
	for _, t := range tokens {
		switch t.Type {
		case css.URLToken:
			if p.analyze != nil {
				p.reference(t, span)
				continue
			}
		case css.StringToken:
			if p.analyze != nil && len(imageSet) > 0 && imageSet[len(imageSet)-1] {
				p.reference(t, span)
				continue
			}
		case css.FunctionToken:
			imageSet = append(imageSet, isImageSet(t.Data))
		case css.LeftParenthesisToken, css.LeftBracketToken, css.LeftBraceToken:
			imageSet = append(imageSet, false)
		case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
			if len(imageSet) > 0 {
				imageSet = imageSet[:len(imageSet)-1]
			}
		}
		p.write(t.Data)
	}
}

func isImageSet(name string) bool {
	return strings.EqualFold(name, "image-set(") || strings.EqualFold(name, "-webkit-image-set(")
}

func (p *printer) reference(t Token, span Span) {
	url := URLValue(t)
	ph := Placeholder(p.sheet.Filename, url)
	p.deps = append(p.deps, Dependency{
		Kind:        DependencyURL,
		URL:         url,
		Placeholder: ph,
		Loc:         p.locate(t, span),
	})
	if t.Type == css.URLToken {
		p.write("url(" + quoteString(ph) + ")")
		return
	}
	p.write(quoteString(ph))
}

// locate finds token in source. Nodes are printed in source order so search
// continues from the previous reference.
func (p *printer) locate(t Token, span Span) Location {
	src := p.sheet.src
	at := indexFrom(src, t.Data, max(p.cursor, span.Start))
	if at < 0 {
		at = indexFrom(src, t.Data, span.Start)
	}
	if at < 0 {
		return p.sheet.location(span.Start)
	}
	p.cursor = at + len(t.Data)
	return p.sheet.location(at)
}
