package css_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssdeps/css"
)

const referenceCSS = `@import "./base.css";
.foo {
  background: url(foo.png);
  width: 32px;
  & .inner {
    background-image: url("./other.png")
  }
}
.bar {
  background: url(bar.png);
}
`

func parse(t *testing.T, src string) *css.Stylesheet {
	t.Helper()
	p := css.NewParser(zaptest.NewLogger(t))
	sheet, err := p.Parse(src, css.ParserOptions{Filename: "test.css", ErrorRecovery: true})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return sheet
}

func noSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestParser_Empty(t *testing.T) {
	sheet := parse(t, "")
	if len(sheet.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(sheet.Rules))
	}
	if sheet.Imports() == nil {
		t.Error("Imports() should be empty, not nil")
	}
	if len(sheet.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", sheet.Warnings)
	}
}

func TestParser_NilLogger(t *testing.T) {
	p := css.NewParser(nil)
	if _, err := p.Parse(".a { color: red }", css.ParserOptions{}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestParser_ReferenceTree(t *testing.T) {
	sheet := parse(t, referenceCSS)

	if len(sheet.Rules) != 3 {
		t.Fatalf("expected 3 top level rules, got %d:\n%s", len(sheet.Rules), sheet)
	}
	imp, ok := sheet.Rules[0].(*css.ImportRule)
	if !ok {
		t.Fatalf("expected *ImportRule, got %T", sheet.Rules[0])
	}
	if imp.URL != "./base.css" {
		t.Errorf("import URL = %q, want %q", imp.URL, "./base.css")
	}

	foo, ok := sheet.Rules[1].(*css.StyleRule)
	if !ok {
		t.Fatalf("expected *StyleRule, got %T", sheet.Rules[1])
	}
	if foo.Selector() != ".foo" {
		t.Errorf("selector = %q, want %q", foo.Selector(), ".foo")
	}
	if len(foo.Body) != 3 {
		t.Fatalf("expected 3 items in .foo body, got %d:\n%s", len(foo.Body), sheet)
	}
	if d, ok := foo.Body[0].(*css.Declaration); !ok || d.Property != "background" {
		t.Errorf("expected background declaration, got %#v", foo.Body[0])
	}
	if d, ok := foo.Body[1].(*css.Declaration); !ok || d.Property != "width" {
		t.Errorf("expected width declaration, got %#v", foo.Body[1])
	}
	inner, ok := foo.Body[2].(*css.StyleRule)
	if !ok {
		t.Fatalf("expected nested *StyleRule, got %T", foo.Body[2])
	}
	if inner.Selector() != "& .inner" {
		t.Errorf("nested selector = %q, want %q", inner.Selector(), "& .inner")
	}
	if len(inner.Body) != 1 {
		t.Fatalf("expected 1 declaration in nested rule, got %d", len(inner.Body))
	}

	if bar, ok := sheet.Rules[2].(*css.StyleRule); !ok || bar.Selector() != ".bar" {
		t.Errorf("expected .bar rule, got %#v", sheet.Rules[2])
	}
	if len(sheet.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", sheet.Warnings)
	}
}

func TestParser_Import(t *testing.T) {
	sheet := parse(t, `@import "a.css";
@import url(b.css) layer(base) supports(display: grid) screen and (min-width: 100px);
@import url("c.css") layer;
@import 'd.css' print;
`)
	imports := sheet.Imports()
	want := []string{"a.css", "b.css", "c.css", "d.css"}
	if strings.Join(imports, ",") != strings.Join(want, ",") {
		t.Fatalf("Imports() = %v, want %v", imports, want)
	}

	b := sheet.Rules[1].(*css.ImportRule)
	if b.Layer != "layer(base)" {
		t.Errorf("layer = %q, want %q", b.Layer, "layer(base)")
	}
	if noSpaces(b.Supports) != "display:grid" {
		t.Errorf("supports = %q", b.Supports)
	}
	if noSpaces(b.Media) != "screenand(min-width:100px)" {
		t.Errorf("media = %q", b.Media)
	}

	c := sheet.Rules[2].(*css.ImportRule)
	if c.Layer != "layer" || c.Media != "" {
		t.Errorf("unexpected conditions: layer %q media %q", c.Layer, c.Media)
	}
	d := sheet.Rules[3].(*css.ImportRule)
	if d.Media != "print" {
		t.Errorf("media = %q, want %q", d.Media, "print")
	}
}

func TestParser_ImportPlacement(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		imports  []string
		warnings int
	}{
		{
			name:    "after charset and layer statement",
			src:     `@charset "utf-8"; @layer base, theme; @import "a.css"; @import "b.css";`,
			imports: []string{"a.css", "b.css"},
		},
		{
			name:     "after style rule",
			src:      `@import "a.css"; .x { color: red } @import "late.css";`,
			imports:  []string{"a.css"},
			warnings: 1,
		},
		{
			name:     "after namespace",
			src:      `@namespace svg url(http://www.w3.org/2000/svg); @import "a.css";`,
			imports:  []string{},
			warnings: 1,
		},
		{
			name:     "inside media block",
			src:      `@media print { @import "a.css"; }`,
			imports:  []string{},
			warnings: 1,
		},
		{
			name:     "without url",
			src:      `@import foo;`,
			imports:  []string{},
			warnings: 1,
		},
		{
			name:    "after comment",
			src:     "/* header */\n@import \"a.css\";",
			imports: []string{"a.css"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := parse(t, tt.src)
			if got := sheet.Imports(); strings.Join(got, ",") != strings.Join(tt.imports, ",") {
				t.Errorf("Imports() = %v, want %v", got, tt.imports)
			}
			if len(sheet.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, sheet.Warnings)
			}
		})
	}
}

func TestParser_NestedPseudoClass(t *testing.T) {
	sheet := parse(t, `.a { color: red; &:hover { color: blue } }`)

	rule := sheet.Rules[0].(*css.StyleRule)
	if len(rule.Body) != 2 {
		t.Fatalf("expected 2 body items, got %d:\n%s", len(rule.Body), sheet)
	}
	nested, ok := rule.Body[1].(*css.StyleRule)
	if !ok {
		t.Fatalf("expected nested *StyleRule, got %T", rule.Body[1])
	}
	if noSpaces(nested.Selector()) != "&:hover" {
		t.Errorf("nested selector = %q", nested.Selector())
	}
	if len(sheet.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", sheet.Warnings)
	}
}

func TestParser_NestedRuleFollowedByDeclaration(t *testing.T) {
	sheet := parse(t, `.a { & .b { color: red } color: blue; }`)

	if len(sheet.Rules) != 1 {
		t.Fatalf("expected 1 top level rule, got %d:\n%s", len(sheet.Rules), sheet)
	}
	rule := sheet.Rules[0].(*css.StyleRule)
	if len(rule.Body) != 2 {
		t.Fatalf("expected 2 body items, got %d:\n%s", len(rule.Body), sheet)
	}
	nested, ok := rule.Body[0].(*css.StyleRule)
	if !ok {
		t.Fatalf("expected nested rule first, got %T", rule.Body[0])
	}
	if nested.Selector() != "& .b" {
		t.Errorf("nested selector = %q, want %q", nested.Selector(), "& .b")
	}
	if len(nested.Body) != 1 {
		t.Fatalf("expected 1 declaration in nested rule, got %d:\n%s", len(nested.Body), sheet)
	}
	if d, ok := nested.Body[0].(*css.Declaration); !ok || d.Property != "color" || d.Value[0].Data != "red" {
		t.Errorf("expected color: red in nested rule, got %#v", nested.Body[0])
	}
	if d, ok := rule.Body[1].(*css.Declaration); !ok || d.Property != "color" || d.Value[0].Data != "blue" {
		t.Errorf("expected color: blue after nested rule, got %#v", rule.Body[1])
	}
	if len(sheet.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", sheet.Warnings)
	}

	res, err := sheet.ToCSS(css.PrinterOptions{})
	if err != nil {
		t.Fatalf("ToCSS() error = %v", err)
	}
	want := ".a {\n  & .b {\n    color: red;\n  }\n  color: blue;\n}\n"
	if res.Code != want {
		t.Errorf("ToCSS() =\n%q\nwant\n%q", res.Code, want)
	}
}

// describe renders body shape as "kind:name" items, nested bodies in brackets.
func describe(body []css.Node) string {
	parts := make([]string, 0, len(body))
	for _, n := range body {
		switch n := n.(type) {
		case *css.StyleRule:
			parts = append(parts, "rule:"+noSpaces(n.Selector())+"["+describe(n.Body)+"]")
		case *css.AtRule:
			parts = append(parts, "at:"+n.Name+"["+describe(n.Body)+"]")
		case *css.Declaration:
			parts = append(parts, "decl:"+n.Property)
		default:
			parts = append(parts, fmt.Sprintf("%T", n))
		}
	}
	return strings.Join(parts, " ")
}

func TestParser_NestedRuleShapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "declaration after last nested rule",
			src:  `.a { & .b { background: url(1.png) } background: url(2.png); }`,
			want: "rule:.a[rule:&.b[decl:background] decl:background]",
		},
		{
			name: "declarations around two nested rules",
			src:  `.a { color: red; & .b { x: url(1.png) } & .c { y: url(2.png) } z: url(3.png); }`,
			want: "rule:.a[decl:color rule:&.b[decl:x] rule:&.c[decl:y] decl:z]",
		},
		{
			name: "type selector with pseudo class",
			src:  `.a { a:hover { x: url(1.png) } b: url(2.png); }`,
			want: "rule:.a[rule:a:hover[decl:x] decl:b]",
		},
		{
			name: "nested rule only",
			src:  `.a { & .b { color: red } }`,
			want: "rule:.a[rule:&.b[decl:color]]",
		},
		{
			name: "deeper nesting",
			src:  `.a { & .b { & .c { x: 1 } y: 2 } z: 3 }`,
			want: "rule:.a[rule:&.b[rule:&.c[decl:x] decl:y] decl:z]",
		},
		{
			name: "nested media then declaration",
			src:  `.a { @media print { x: url(1.png) } y: url(2.png) }`,
			want: "rule:.a[at:@media[decl:x] decl:y]",
		},
		{
			name: "following rule is untouched",
			src:  `.a { & .b { x: 1 } y: 2 } .c { z: 3 }`,
			want: "rule:.a[rule:&.b[decl:x] decl:y] rule:.c[decl:z]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := parse(t, tt.src)
			if got := describe(sheet.Rules); got != tt.want {
				t.Errorf("tree = %s\nwant   %s\n%s", got, tt.want, sheet)
			}
			if len(sheet.Warnings) != 0 {
				t.Errorf("expected no warnings, got %v", sheet.Warnings)
			}
		})
	}
}

func TestParser_NestedMedia(t *testing.T) {
	sheet := parse(t, `.a { @media (min-width: 1px) { background: url(m.png) } }`)

	rule := sheet.Rules[0].(*css.StyleRule)
	if len(rule.Body) != 1 {
		t.Fatalf("expected 1 body item, got %d:\n%s", len(rule.Body), sheet)
	}
	media, ok := rule.Body[0].(*css.AtRule)
	if !ok || media.Name != "@media" || media.Kind != css.AtRuleRules {
		t.Fatalf("expected nested @media, got %#v", rule.Body[0])
	}
	if len(media.Body) != 1 {
		t.Fatalf("expected 1 declaration in @media, got %d", len(media.Body))
	}
	if d, ok := media.Body[0].(*css.Declaration); !ok || d.Property != "background" {
		t.Errorf("expected background declaration, got %#v", media.Body[0])
	}
	if len(sheet.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", sheet.Warnings)
	}
}

func TestParser_AtRules(t *testing.T) {
	sheet := parse(t, `@font-face { font-family: X; src: url(f.woff2) format("woff2"); }
@media screen { .a { color: red } }
@custom-thing { a: url(c.png) }
@layer base;
`)
	if len(sheet.Rules) != 4 {
		t.Fatalf("expected 4 rules, got %d:\n%s", len(sheet.Rules), sheet)
	}

	kinds := []css.AtRuleKind{css.AtRuleDeclarations, css.AtRuleRules, css.AtRuleRaw, css.AtRuleStatement}
	for i, kind := range kinds {
		rule, ok := sheet.Rules[i].(*css.AtRule)
		if !ok {
			t.Fatalf("rule %d: expected *AtRule, got %T", i, sheet.Rules[i])
		}
		if rule.Kind != kind {
			t.Errorf("rule %d (%s): kind = %d, want %d", i, rule.Name, rule.Kind, kind)
		}
	}

	ff := sheet.Rules[0].(*css.AtRule)
	if len(ff.Body) != 2 {
		t.Errorf("expected 2 @font-face declarations, got %d", len(ff.Body))
	}
	raw := sheet.Rules[2].(*css.AtRule)
	if !strings.Contains(noSpaces(tokensText(raw.Tokens)), "url(c.png)") {
		t.Errorf("raw at-rule lost its tokens: %q", tokensText(raw.Tokens))
	}
}

func tokensText(tokens []css.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.String())
	}
	return sb.String()
}

func TestParser_CustomProperty(t *testing.T) {
	sheet := parse(t, `:root { --bg: url(x.png) !important; --Gap: 4px }`)

	rule := sheet.Rules[0].(*css.StyleRule)
	if len(rule.Body) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(rule.Body))
	}
	bg := rule.Body[0].(*css.Declaration)
	if !bg.Custom || !bg.Important || bg.Property != "--bg" {
		t.Errorf("unexpected declaration %#v", bg)
	}
	if len(bg.Value) != 1 || css.URLValue(bg.Value[0]) != "x.png" {
		t.Errorf("unexpected value %v", bg.Value)
	}
	if gap := rule.Body[1].(*css.Declaration); gap.Property != "--Gap" {
		t.Errorf("custom property name changed: %q", gap.Property)
	}
}

func TestParser_Important(t *testing.T) {
	sheet := parse(t, `.a { color: red !important; margin: 0 }`)

	rule := sheet.Rules[0].(*css.StyleRule)
	color := rule.Body[0].(*css.Declaration)
	if !color.Important {
		t.Error("expected color to be important")
	}
	if len(color.Value) != 1 || color.Value[0].Data != "red" {
		t.Errorf("unexpected value %v", color.Value)
	}
	if rule.Body[1].(*css.Declaration).Important {
		t.Error("margin should not be important")
	}
}

func TestParser_ErrorRecovery(t *testing.T) {
	src := ".a { color: red; }\n}\n.b { background: url(b.png) }"

	sheet := parse(t, src)
	if len(sheet.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", sheet.Warnings)
	}
	w := sheet.Warnings[0]
	if w.Loc.Line != 2 || w.Loc.Filename != "test.css" {
		t.Errorf("unexpected warning location %s", w.Loc)
	}

	var last *css.StyleRule
	for _, n := range sheet.Rules {
		if r, ok := n.(*css.StyleRule); ok {
			last = r
		}
	}
	if last == nil || last.Selector() != ".b" {
		t.Errorf("rule after the error was not recovered:\n%s", sheet)
	}

	p := css.NewParser(zap.NewNop())
	_, err := p.Parse(src, css.ParserOptions{Filename: "test.css"})
	var perr *css.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError without recovery, got %v", err)
	}
	if perr.Loc.Line != 2 {
		t.Errorf("error line = %d, want 2", perr.Loc.Line)
	}
}

func TestParser_NestedRulesAreNotErrors(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	if _, err := p.Parse(referenceCSS, css.ParserOptions{}); err != nil {
		t.Fatalf("nested rule failed without recovery: %v", err)
	}
}

func TestParser_BadURL(t *testing.T) {
	sheet := parse(t, `.a { background: url(a b.png) }`)
	if len(sheet.Warnings) != 1 || !strings.Contains(sheet.Warnings[0].Message, "invalid url") {
		t.Errorf("expected bad url warning, got %v", sheet.Warnings)
	}

	p := css.NewParser(zap.NewNop())
	if _, err := p.Parse(`.a { background: url(a b.png) }`, css.ParserOptions{}); err == nil {
		t.Error("expected error without recovery")
	}
}

func TestParser_InvalidUTF8(t *testing.T) {
	p := css.NewParser(zap.NewNop())
	_, err := p.Parse(".a {}\n.b { content: \"\xff\" }", css.ParserOptions{Filename: "bad.css", ErrorRecovery: true})

	var perr *css.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Loc.Line != 2 || perr.Loc.Filename != "bad.css" {
		t.Errorf("unexpected location %s", perr.Loc)
	}
}

func TestParser_ByteOrderMark(t *testing.T) {
	sheet := parse(t, "\uFEFF@import \"a.css\";")
	if got := sheet.Imports(); len(got) != 1 || got[0] != "a.css" {
		t.Errorf("Imports() = %v", got)
	}
}

func TestParser_NestingDepth(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "at-rules", src: `@media a { @media b { @media c { .x { color: red } } } }`},
		{name: "nested rules", src: `a { b { c { color: red } } }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := css.NewParser(zap.NewNop())
			_, err := p.Parse(tt.src, css.ParserOptions{ErrorRecovery: true, MaxNestingDepth: 2})
			var perr *css.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if !strings.Contains(perr.Message, "nested too deeply") {
				t.Errorf("unexpected message %q", perr.Message)
			}

			if _, err := p.Parse(tt.src, css.ParserOptions{ErrorRecovery: true}); err != nil {
				t.Errorf("default depth should be enough: %v", err)
			}
		})
	}
}

func TestParser_Inline(t *testing.T) {
	p := css.NewParser(zaptest.NewLogger(t))
	sheet, err := p.ParseInline(`color: red; background: url(a.png)`, css.ParserOptions{ErrorRecovery: true})
	if err != nil {
		t.Fatalf("ParseInline() error = %v", err)
	}
	if !sheet.Inline {
		t.Error("expected inline stylesheet")
	}
	if len(sheet.Rules) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(sheet.Rules))
	}
	for _, n := range sheet.Rules {
		if _, ok := n.(*css.Declaration); !ok {
			t.Errorf("expected *Declaration, got %T", n)
		}
	}
}

func TestStylesheet_String(t *testing.T) {
	sheet := parse(t, referenceCSS)
	dump := sheet.String()
	for _, want := range []string{`Stylesheet "test.css"`, `Import "./base.css"`, `selector: "& .inner"`, "Declaration background"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump misses %q:\n%s", want, dump)
		}
	}

	var nilSheet *css.Stylesheet
	if nilSheet.String() != "<nil Stylesheet>" {
		t.Error("nil stylesheet dump")
	}
}
