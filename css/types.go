// Package css binds the tdewolff CSS grammar parser: it builds a stylesheet
// tree from source text with error recovery and serializes the tree back,
// optionally reporting the dependencies (@import and url()) it writes out.
package css

import (
	"fmt"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// Token is a single engine token copied out of the parser buffers.
type Token struct {
	Type css.TokenType
	Data string
}

// String returns token text the way it appeared in the source.
func (t Token) String() string {
	return t.Data
}

// Span is a byte range [Start, End) in the original source.
type Span struct {
	Start int
	End   int
}

// Location is a 1-based position in a stylesheet source.
type Location struct {
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
}

func (l Location) String() string {
	if l.Filename == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
}

// Warning is a recovered parse error.
type Warning struct {
	Message string   `json:"message" yaml:"message"`
	Loc     Location `json:"loc" yaml:"loc"`
}

func (w Warning) Error() string {
	return w.Loc.String() + ": " + w.Message
}

// Node is a single item of the stylesheet tree. Concrete types are
// *ImportRule, *AtRule, *StyleRule, *Declaration and *RawTokens.
type Node interface {
	NodeSpan() Span
}

// ImportRule is an @import statement.
type ImportRule struct {
	URL      string // decoded, without quotes
	Token    Token  // string or url token carrying URL
	Layer    string // "" when absent, "layer" or "layer(name)" otherwise
	Supports string // condition inside supports(...)
	Media    string // media query list
	Span     Span
}

// AtRuleKind tells how the body of an at-rule has been parsed.
type AtRuleKind int

const (
	AtRuleStatement    AtRuleKind = iota // no block: @charset, @namespace, @layer a, b;
	AtRuleRules                          // block of rules: @media, @supports, @layer, @keyframes, @document
	AtRuleDeclarations                   // block of declarations: @font-face, @page
	AtRuleRaw                            // unknown at-rule, block kept as tokens
)

// AtRule is any at-rule other than @import.
type AtRule struct {
	Name    string // lowercase, with leading "@"
	Prelude []Token
	Kind    AtRuleKind
	Body    []Node  // AtRuleRules and AtRuleDeclarations
	Tokens  []Token // AtRuleRaw
	Span    Span
}

// StyleRule is a qualified rule. Body keeps declarations and nested rules in
// source order.
type StyleRule struct {
	Prelude []Token
	Body    []Node
	Span    Span
}

// Selector returns selector text of the rule.
func (r *StyleRule) Selector() string {
	return joinTokens(r.Prelude)
}

// Declaration is a single property declaration.
type Declaration struct {
	Property  string // lowercase unless custom property
	Value     []Token
	Important bool
	Custom    bool // --name: ...
	Span      Span
}

// RawTokens keeps content the engine could not structure, so its url
// references are not lost.
type RawTokens struct {
	Tokens []Token
	Span   Span
}

func (n *ImportRule) NodeSpan() Span  { return n.Span }
func (n *AtRule) NodeSpan() Span      { return n.Span }
func (n *StyleRule) NodeSpan() Span   { return n.Span }
func (n *Declaration) NodeSpan() Span { return n.Span }
func (n *RawTokens) NodeSpan() Span   { return n.Span }

// Stylesheet is a parsed stylesheet.
type Stylesheet struct {
	Filename string
	Inline   bool // parsed as style attribute (declarations only)
	Rules    []Node
	Warnings []Warning

	src   string
	lines lineIndex
}

// Source returns the text the stylesheet was parsed from.
func (s *Stylesheet) Source() string {
	return s.src
}

// Imports returns all @import URLs from the stylesheet in source order.
func (s *Stylesheet) Imports() []string {
	urls := make([]string, 0)
	for _, n := range s.Rules {
		if imp, ok := n.(*ImportRule); ok {
			urls = append(urls, imp.URL)
		}
	}
	return urls
}

// location converts source offset to Location.
func (s *Stylesheet) location(offset int) Location {
	line, col := s.lines.position(s.src, offset)
	return Location{Filename: s.Filename, Line: line, Column: col}
}

// joinTokens returns tokens text trimmed of surrounding whitespace.
func joinTokens(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Data)
	}
	return strings.TrimSpace(sb.String())
}
