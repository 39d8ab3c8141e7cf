package css_test

import (
	"errors"
	"strings"
	"testing"

	"cssdeps/css"
)

func analyze(t *testing.T, sheet *css.Stylesheet, removeImports bool) *css.ToCSSResult {
	t.Helper()
	res, err := sheet.ToCSS(css.PrinterOptions{
		AnalyzeDependencies: &css.DependencyOptions{RemoveImports: removeImports},
	})
	if err != nil {
		t.Fatalf("ToCSS() error = %v", err)
	}
	return res
}

func depURLs(deps []css.Dependency, kind css.DependencyKind) []string {
	urls := make([]string, 0)
	for _, d := range deps {
		if d.Kind == kind {
			urls = append(urls, d.URL)
		}
	}
	return urls
}

func TestToCSS_PrettyPrint(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "rule",
			src:  `.a{color:red}`,
			want: ".a {\n  color: red;\n}\n",
		},
		{
			name: "media",
			src:  `@media screen{.a{color:red}}`,
			want: "@media screen {\n  .a {\n    color: red;\n  }\n}\n",
		},
		{
			name: "import and statement",
			src:  `@charset "utf-8";@import "a.css" print;`,
			want: "@charset \"utf-8\";\n@import \"a.css\" print;\n",
		},
		{
			name: "important",
			src:  `.a{margin:0!important}`,
			want: ".a {\n  margin: 0 !important;\n}\n",
		},
		{
			name: "empty",
			src:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parse(t, tt.src).ToCSS(css.PrinterOptions{})
			if err != nil {
				t.Fatalf("ToCSS() error = %v", err)
			}
			if res.Code != tt.want {
				t.Errorf("ToCSS() =\n%q\nwant\n%q", res.Code, tt.want)
			}
			if len(res.Dependencies) != 0 {
				t.Errorf("dependencies reported without analysis: %v", res.Dependencies)
			}
		})
	}
}

func TestToCSS_ReferenceDependencies(t *testing.T) {
	sheet := parse(t, referenceCSS)
	res := analyze(t, sheet, false)

	if got := depURLs(res.Dependencies, css.DependencyImport); strings.Join(got, ",") != "./base.css" {
		t.Errorf("imports = %v", got)
	}
	want := []string{"foo.png", "./other.png", "bar.png"}
	if got := depURLs(res.Dependencies, css.DependencyURL); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("urls = %v, want %v", got, want)
	}

	for _, d := range res.Dependencies {
		if d.Placeholder != css.Placeholder("test.css", d.URL) {
			t.Errorf("%s: unexpected placeholder %q", d.URL, d.Placeholder)
		}
		if !strings.Contains(res.Code, `"`+d.Placeholder+`"`) {
			t.Errorf("%s: placeholder missing from output:\n%s", d.URL, res.Code)
		}
		if strings.Contains(res.Code, d.URL) {
			t.Errorf("%s: url leaked into output:\n%s", d.URL, res.Code)
		}
	}
}

func TestToCSS_DependencyLocations(t *testing.T) {
	sheet := parse(t, referenceCSS)
	res := analyze(t, sheet, false)

	want := map[string]css.Location{
		"./base.css":  {Filename: "test.css", Line: 1, Column: 9},
		"foo.png":     {Filename: "test.css", Line: 3, Column: 15},
		"./other.png": {Filename: "test.css", Line: 6, Column: 23},
		"bar.png":     {Filename: "test.css", Line: 10, Column: 15},
	}
	for _, d := range res.Dependencies {
		if d.Loc != want[d.URL] {
			t.Errorf("%s: location %s, want %s", d.URL, d.Loc, want[d.URL])
		}
	}
}

func TestToCSS_RemoveImports(t *testing.T) {
	sheet := parse(t, `@import "a.css" screen; .a { background: url(b.png) }`)

	res := analyze(t, sheet, true)
	if strings.Contains(res.Code, "@import") {
		t.Errorf("import kept in output:\n%s", res.Code)
	}
	if len(res.Dependencies) != 2 || res.Dependencies[0].Kind != css.DependencyImport {
		t.Fatalf("unexpected dependencies %v", res.Dependencies)
	}
	if res.Dependencies[0].Media != "screen" {
		t.Errorf("media = %q, want %q", res.Dependencies[0].Media, "screen")
	}

	res = analyze(t, sheet, false)
	if !strings.Contains(res.Code, `@import "`+res.Dependencies[0].Placeholder+`" screen;`) {
		t.Errorf("import missing from output:\n%s", res.Code)
	}
}

func TestToCSS_References(t *testing.T) {
	tests := []struct {
		name string
		src  string
		urls []string
	}{
		{
			name: "quoted and unquoted",
			src:  `.a { background: url("a.png"), url('b.png'), url(c.png) }`,
			urls: []string{"a.png", "b.png", "c.png"},
		},
		{
			name: "escapes",
			src:  `.a { background: url(caf\e9.png); content: url("q\"x.png") }`,
			urls: []string{"café.png", `q"x.png`},
		},
		{
			name: "image-set strings",
			src:  `.a { background-image: image-set("a.png" 1x, url(b.png) 2x) }`,
			urls: []string{"a.png", "b.png"},
		},
		{
			name: "plain strings are not references",
			src:  `.a::before { content: "a.png"; font-family: "x" }`,
			urls: []string{},
		},
		{
			name: "font face and custom property",
			src:  `@font-face { src: url(f.woff2) format("woff2") } :root { --bg: url(v.png) }`,
			urls: []string{"f.woff2", "v.png"},
		},
		{
			name: "unknown at-rule",
			src:  `@custom-thing { a: url(c.png) }`,
			urls: []string{"c.png"},
		},
		{
			name: "bad url is skipped",
			src:  `.a { background: url(a b.png); border-image: url(ok.png) }`,
			urls: []string{"ok.png"},
		},
		{
			name: "recovered chunk",
			src:  `.a { color: red; } } .b { background: url(b.png) }`,
			urls: []string{"b.png"},
		},
		{
			name: "error inside declaration list keeps urls",
			src:  `.a { 12px url(x.png); color: red }`,
			urls: []string{"x.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(t, parse(t, tt.src), false)
			got := depURLs(res.Dependencies, css.DependencyURL)
			if strings.Join(got, "|") != strings.Join(tt.urls, "|") {
				t.Errorf("urls = %v, want %v", got, tt.urls)
			}
		})
	}
}

type failingWriter struct{}

var errWrite = errors.New("disk full")

func (failingWriter) Write([]byte) (int, error) {
	return 0, errWrite
}

func TestWriteCSS_WriterError(t *testing.T) {
	sheet := parse(t, referenceCSS)

	_, err := sheet.WriteCSS(failingWriter{}, css.PrinterOptions{})
	var serr *css.SerializeError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SerializeError, got %v", err)
	}
	if !errors.Is(err, errWrite) {
		t.Errorf("writer error is not wrapped: %v", err)
	}
}

type strangeNode struct{}

func (strangeNode) NodeSpan() css.Span { return css.Span{} }

func TestToCSS_ImpossibleTrees(t *testing.T) {
	tests := []struct {
		name  string
		rules []css.Node
	}{
		{name: "unknown node", rules: []css.Node{strangeNode{}}},
		{name: "nil node", rules: []css.Node{nil}},
		{name: "import without url", rules: []css.Node{&css.ImportRule{}}},
		{name: "bad at-rule kind", rules: []css.Node{&css.AtRule{Name: "@x", Kind: css.AtRuleKind(42)}}},
		{name: "nested unknown node", rules: []css.Node{&css.StyleRule{Body: []css.Node{strangeNode{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := &css.Stylesheet{Rules: tt.rules}
			res, err := sheet.ToCSS(css.PrinterOptions{AnalyzeDependencies: &css.DependencyOptions{}})
			var serr *css.SerializeError
			if !errors.As(err, &serr) {
				t.Fatalf("expected *SerializeError, got %v", err)
			}
			if res != nil {
				t.Error("partial result returned on error")
			}
		})
	}
}

func TestDependencyKind_Text(t *testing.T) {
	for _, kind := range []css.DependencyKind{css.DependencyImport, css.DependencyURL} {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var back css.DependencyKind
		if err := back.UnmarshalText(text); err != nil || back != kind {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, back, err)
		}
	}
	if _, err := css.DependencyKind(7).MarshalText(); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestDumpDependencies(t *testing.T) {
	res := analyze(t, parse(t, referenceCSS), false)
	dump := css.DumpDependencies(res.Dependencies)
	if !strings.Contains(dump, "Dependencies: 4") || !strings.Contains(dump, `import "./base.css"`) {
		t.Errorf("unexpected dump:\n%s", dump)
	}
}
