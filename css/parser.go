package css

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// DefaultMaxNestingDepth is used when ParserOptions leave MaxNestingDepth unset.
const DefaultMaxNestingDepth = 32

const bom = "\uFEFF"

// ParserOptions controls a single Parse call.
type ParserOptions struct {
	// Filename is attached to warnings and errors, it is not interpreted.
	Filename string
	// ErrorRecovery turns grammar errors into warnings. When false the first
	// grammar error fails the parse.
	ErrorRecovery bool
	// MaxNestingDepth bounds how deep blocks (rules and at-rules) may nest.
	MaxNestingDepth int
}

// Parser parses CSS stylesheets into a node tree.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses stylesheet text.
func (p *Parser) Parse(src string, opts ParserOptions) (*Stylesheet, error) {
	return p.parse(src, opts, false)
}

// ParseInline parses content of a style attribute: a declaration list
// without surrounding braces.
func (p *Parser) ParseInline(src string, opts ParserOptions) (*Stylesheet, error) {
	return p.parse(src, opts, true)
}

func (p *Parser) parse(src string, opts ParserOptions, inline bool) (*Stylesheet, error) {
	if opts.MaxNestingDepth <= 0 {
		opts.MaxNestingDepth = DefaultMaxNestingDepth
	}
	src = strings.TrimPrefix(src, bom)

	sheet := &Stylesheet{
		Filename: opts.Filename,
		Inline:   inline,
		Rules:    make([]Node, 0),
		Warnings: make([]Warning, 0),
		src:      src,
		lines:    newLineIndex(src),
	}

	if opts.Filename != "" {
		p.log.Debug("Parsing CSS", zap.String("source", opts.Filename), zap.Int("bytes", len(src)), zap.Bool("inline", inline))
	}

	if i := invalidUTF8(src); i >= 0 {
		return nil, &ParseError{Message: "invalid UTF-8 sequence", Loc: sheet.location(i)}
	}

	b := &builder{log: p.log, opts: opts, sheet: sheet, importsClosed: inline}
	b.reset(src, inline)

	var (
		rules []Node
		err   error
	)
	if inline {
		rules, err = b.declarations()
	} else {
		rules, err = b.stylesheet()
	}
	if err != nil {
		return nil, err
	}
	sheet.Rules = append(sheet.Rules, rules...)

	p.log.Debug("Parsed CSS",
		zap.String("source", opts.Filename),
		zap.Int("rules", len(sheet.Rules)),
		zap.Int("warnings", len(sheet.Warnings)))
	return sheet, nil
}

// invalidUTF8 returns offset of the first invalid UTF-8 sequence or -1.
func invalidUTF8(s string) int {
	if utf8.ValidString(s) {
		return -1
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// grammar is a single step of the engine grammar stream.
type grammar struct {
	gt   css.GrammarType
	tt   css.TokenType
	data string
	span Span
}

// builder turns the engine grammar stream into nodes. Chunks the engine could
// not structure but which contain blocks (nested rules) are fed to a fresh
// builder sharing the same stylesheet.
type builder struct {
	log   *zap.Logger
	opts  ParserOptions
	sheet *Stylesheet

	parser *css.Parser
	src    string
	offset int
	base   *Span // set for re-parsed chunks, every node gets the chunk span
	depth  int
	inRule bool

	importsClosed bool
}

func (b *builder) reset(src string, inline bool) {
	b.src = src
	b.offset = 0
	b.parser = css.NewParser(parse.NewInputString(src), inline)
}

func (b *builder) next() grammar {
	start := skipTrivia(b.src, b.offset)
	gt, tt, data := b.parser.Next()
	end := b.parser.Offset()
	b.offset = end

	span := Span{Start: min(start, end), End: end}
	if b.base != nil {
		span = *b.base
	}
	return grammar{gt: gt, tt: tt, data: string(data), span: span}
}

// closeSpan extends span of a block node to the current position.
func (b *builder) closeSpan(span Span) Span {
	if b.base != nil {
		return span
	}
	span.End = max(span.End, b.offset)
	return span
}

func (b *builder) values() []Token {
	return copyTokens(b.parser.Values())
}

func (b *builder) locate(offset int) Location {
	if b.base != nil {
		return b.sheet.location(b.base.Start)
	}
	return b.sheet.location(offset)
}

func (b *builder) engineLocation(perr *parse.Error) Location {
	if b.base != nil {
		return b.sheet.location(b.base.Start)
	}
	return Location{Filename: b.sheet.Filename, Line: perr.Line, Column: perr.Column}
}

// failure inspects error reported with ErrorGrammar. Both results are nil at
// the end of input.
func (b *builder) failure() (*parse.Error, error) {
	err := b.parser.Err()
	if perr := engineError(err); perr != nil {
		return perr, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, &ParseError{Message: "unable to read stylesheet", Loc: b.locate(b.offset), Err: err}
}

// report records a warning, or fails when error recovery is off.
func (b *builder) report(msg string, loc Location, err error) error {
	if !b.opts.ErrorRecovery {
		return &ParseError{Message: msg, Loc: loc, Err: err}
	}
	b.log.Debug("Recovered CSS error", zap.Stringer("location", loc), zap.String("error", msg))
	b.sheet.Warnings = append(b.sheet.Warnings, Warning{Message: msg, Loc: loc})
	return nil
}

// checkTokens reports bad url tokens, which are never dependencies.
func (b *builder) checkTokens(tokens []Token, span Span) error {
	for _, t := range tokens {
		if t.Type != css.BadURLToken {
			continue
		}
		at := span.Start
		if i := indexFrom(b.src, t.Data, span.Start); b.base == nil && i >= 0 {
			at = i
		}
		if err := b.report("invalid url: "+t.Data, b.locate(at), nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) enter(span Span) error {
	if b.depth >= b.opts.MaxNestingDepth {
		return &ParseError{Message: "blocks are nested too deeply", Loc: b.locate(span.Start)}
	}
	b.depth++
	return nil
}

func (b *builder) leave() {
	b.depth--
}

// stylesheet consumes top level rules until the end of input.
func (b *builder) stylesheet() ([]Node, error) {
	nodes := make([]Node, 0)
	for {
		g := b.next()

		var (
			added []Node
			err   error
		)
		switch g.gt {
		case css.ErrorGrammar:
			perr, ferr := b.failure()
			if ferr != nil {
				return nil, ferr
			}
			if perr == nil {
				return nodes, nil
			}
			added, err = b.errorChunk(perr, g.span, b.base != nil)

		case css.AtRuleGrammar:
			added, err = b.statement(g)

		case css.BeginAtRuleGrammar:
			b.importsClosed = true
			added, err = b.atRule(g)

		case css.BeginRulesetGrammar:
			b.importsClosed = true
			added, err = b.styleRule(g)
		}
		// comments, CDO and CDC carry nothing
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, added...)
	}
}

// ruleList consumes body of @media-like at-rules.
func (b *builder) ruleList() ([]Node, error) {
	nodes := make([]Node, 0)
	for {
		g := b.next()

		var (
			added []Node
			err   error
		)
		switch g.gt {
		case css.EndAtRuleGrammar:
			return nodes, nil

		case css.ErrorGrammar:
			perr, ferr := b.failure()
			if ferr != nil {
				return nil, ferr
			}
			if perr == nil {
				return nodes, nil
			}
			tokens := b.values()
			closed := closesBlock(perr, tokens)
			if closed && b.inRule && !hasBlock(tokens) {
				// declarations directly inside a nested conditional rule
				added, err = b.reparse(tokens[:len(tokens)-1], g.span, true)
			} else {
				added, err = b.errorTokens(perr, tokens, g.span, false)
			}
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, added...)
			if closed {
				return nodes, nil
			}
			continue

		case css.AtRuleGrammar:
			added, err = b.statement(g)

		case css.BeginAtRuleGrammar:
			added, err = b.atRule(g)

		case css.BeginRulesetGrammar:
			added, err = b.styleRule(g)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, added...)
	}
}

// declarations consumes body of a style rule or of @font-face like at-rules.
// It is also the top level loop for inline styles.
func (b *builder) declarations() ([]Node, error) {
	nodes := make([]Node, 0)
	for {
		g := b.next()

		var (
			added []Node
			err   error
		)
		switch g.gt {
		case css.EndRulesetGrammar, css.EndAtRuleGrammar:
			return nodes, nil

		case css.ErrorGrammar:
			perr, ferr := b.failure()
			if ferr != nil {
				return nil, ferr
			}
			if perr == nil {
				return nodes, nil
			}
			tokens := b.values()
			if added, err = b.errorTokens(perr, tokens, g.span, true); err != nil {
				return nil, err
			}
			nodes = append(nodes, added...)
			if closesBlock(perr, tokens) {
				return nodes, nil
			}
			continue

		case css.DeclarationGrammar:
			added, err = b.declaration(g)

		case css.CustomPropertyGrammar:
			added, err = b.customProperty(g)

		case css.AtRuleGrammar:
			added, err = b.statement(g)

		case css.BeginAtRuleGrammar:
			added, err = b.atRule(g)

		case css.BeginRulesetGrammar:
			// nested rule, its end must not end the enclosing body
			added, err = b.styleRule(g)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, added...)
	}
}

// rawBlock collects body of an unknown at-rule.
func (b *builder) rawBlock() []Token {
	tokens := make([]Token, 0)
	for {
		g := b.next()
		switch g.gt {
		case css.TokenGrammar:
			tokens = append(tokens, Token{Type: g.tt, Data: g.data})
		case css.EndAtRuleGrammar, css.ErrorGrammar:
			return tokens
		}
	}
}

func (b *builder) errorChunk(perr *parse.Error, span Span, nested bool) ([]Node, error) {
	return b.errorTokens(perr, b.values(), span, nested)
}

// errorTokens handles content the engine gave up on. Inside declaration lists
// such chunks are usually nested rules and get parsed again, anything else is
// kept as raw tokens.
func (b *builder) errorTokens(perr *parse.Error, tokens []Token, span Span, nested bool) ([]Node, error) {
	if nested && hasBlock(tokens) {
		return b.nestedRules(tokens, span)
	}
	if err := b.report(perr.Message, b.engineLocation(perr), perr); err != nil {
		return nil, err
	}
	tokens = trimWhitespace(tokens)
	if len(tokens) == 0 {
		return nil, nil
	}
	if err := b.checkTokens(tokens, span); err != nil {
		return nil, err
	}
	return []Node{&RawTokens{Tokens: tokens, Span: span}}, nil
}

// nestedRules splits tokens into segments each ending with a top level block
// and parses them as rules, the trailing segment without block is parsed as
// declarations.
func (b *builder) nestedRules(tokens []Token, span Span) ([]Node, error) {
	nodes := make([]Node, 0)
	for _, segment := range splitBlocks(tokens) {
		added, err := b.reparse(segment, span, !hasBlock(segment))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, added...)
	}
	return nodes, nil
}

func (b *builder) reparse(tokens []Token, span Span, inline bool) ([]Node, error) {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Data)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	b.log.Debug("Parsing nested content", zap.String("text", text), zap.Bool("inline", inline))

	sub := &builder{
		log:           b.log,
		opts:          b.opts,
		sheet:         b.sheet,
		base:          &span,
		depth:         b.depth,
		inRule:        b.inRule,
		importsClosed: true,
	}
	sub.reset(text, inline)
	if inline {
		return sub.declarations()
	}
	return sub.stylesheet()
}

// splitBlocks cuts tokens after every top level {} block.
func splitBlocks(tokens []Token) [][]Token {
	var (
		segments [][]Token
		level    int
		from     int
	)
	for i, t := range tokens {
		switch t.Type {
		case css.LeftBraceToken, css.LeftParenthesisToken, css.LeftBracketToken, css.FunctionToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			level = max(level-1, 0)
		case css.RightBraceToken:
			level = max(level-1, 0)
			if level == 0 {
				segments = append(segments, tokens[from:i+1])
				from = i + 1
			}
		}
	}
	if from < len(tokens) {
		segments = append(segments, tokens[from:])
	}
	return segments
}

// closesBlock reports whether the engine dropped the enclosing block while
// recovering: it does so on an unbalanced closing bracket in a rule prelude.
func closesBlock(perr *parse.Error, tokens []Token) bool {
	if len(tokens) == 0 {
		return false
	}
	switch tokens[len(tokens)-1].Type {
	case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
	default:
		return false
	}
	return strings.HasPrefix(perr.Message, "unexpected ending in at rule") ||
		strings.HasPrefix(perr.Message, "unexpected ending in qualified rule")
}

func (b *builder) statement(g grammar) ([]Node, error) {
	tokens := b.values()
	if g.data == "@import" {
		return b.importRule(tokens, g.span)
	}
	if b.depth == 0 && b.base == nil {
		switch g.data {
		case "@charset", "@layer":
		default:
			b.importsClosed = true
		}
	}
	prelude := trimWhitespace(tokens)
	if err := b.checkTokens(prelude, g.span); err != nil {
		return nil, err
	}
	return []Node{&AtRule{Name: g.data, Prelude: prelude, Kind: AtRuleStatement, Span: g.span}}, nil
}

func (b *builder) importRule(tokens []Token, span Span) ([]Node, error) {
	if b.importsClosed || b.depth > 0 {
		return nil, b.report("@import rule is not allowed here", b.locate(span.Start), nil)
	}
	imp, ok := newImportRule(trimWhitespace(tokens))
	if !ok {
		return nil, b.report("invalid @import rule", b.locate(span.Start), nil)
	}
	imp.Span = span
	b.log.Debug("Parsed @import", zap.String("url", imp.URL))
	return []Node{imp}, nil
}

// newImportRule interprets @import prelude: url, optional layer, optional
// supports() condition and media query list.
func newImportRule(tokens []Token) (*ImportRule, bool) {
	if len(tokens) == 0 {
		return nil, false
	}
	first := tokens[0]
	if first.Type != css.StringToken && first.Type != css.URLToken {
		return nil, false
	}
	imp := &ImportRule{URL: URLValue(first), Token: first}

	rest := trimWhitespace(tokens[1:])
	if len(rest) > 0 && rest[0].Type == css.IdentToken && strings.EqualFold(rest[0].Data, "layer") {
		imp.Layer = "layer"
		rest = trimWhitespace(rest[1:])
	} else if len(rest) > 0 && rest[0].Type == css.FunctionToken && strings.EqualFold(rest[0].Data, "layer(") {
		n := functionEnd(rest)
		imp.Layer = "layer(" + joinTokens(rest[1:n]) + ")"
		rest = trimWhitespace(rest[min(n+1, len(rest)):])
	}
	if len(rest) > 0 && rest[0].Type == css.FunctionToken && strings.EqualFold(rest[0].Data, "supports(") {
		n := functionEnd(rest)
		imp.Supports = joinTokens(rest[1:n])
		rest = trimWhitespace(rest[min(n+1, len(rest)):])
	}
	imp.Media = joinTokens(rest)
	return imp, true
}

// functionEnd returns index of the parenthesis closing function token at
// tokens[0], or len(tokens) when it is not closed.
func functionEnd(tokens []Token) int {
	level := 0
	for i, t := range tokens {
		switch t.Type {
		case css.FunctionToken, css.LeftParenthesisToken:
			level++
		case css.RightParenthesisToken:
			level--
			if level == 0 {
				return i
			}
		}
	}
	return len(tokens)
}

func (b *builder) atRule(g grammar) ([]Node, error) {
	prelude := trimWhitespace(b.values())
	if err := b.checkTokens(prelude, g.span); err != nil {
		return nil, err
	}
	rule := &AtRule{Name: g.data, Prelude: prelude, Kind: atRuleKind(g.data), Span: g.span}

	if err := b.enter(g.span); err != nil {
		return nil, err
	}
	var err error
	switch rule.Kind {
	case AtRuleRules:
		rule.Body, err = b.ruleList()
	case AtRuleDeclarations:
		inRule := b.inRule
		b.inRule = false
		rule.Body, err = b.declarations()
		b.inRule = inRule
	default:
		rule.Tokens = b.rawBlock()
		err = b.checkTokens(rule.Tokens, g.span)
	}
	b.leave()
	if err != nil {
		return nil, err
	}
	rule.Span = b.closeSpan(rule.Span)
	return []Node{rule}, nil
}

// atRuleKind mirrors how the engine picks grammar for at-rule blocks.
func atRuleKind(name string) AtRuleKind {
	name = strings.TrimPrefix(name, "@")
	if strings.HasPrefix(name, "-") {
		if i := strings.IndexByte(name[1:], '-'); i >= 0 {
			name = name[i+2:]
		}
	}
	switch name {
	case "font-face", "page":
		return AtRuleDeclarations
	case "document", "keyframes", "layer", "media", "supports":
		return AtRuleRules
	}
	return AtRuleRaw
}

func (b *builder) styleRule(g grammar) ([]Node, error) {
	prelude := trimWhitespace(b.values())
	if err := b.checkTokens(prelude, g.span); err != nil {
		return nil, err
	}
	rule := &StyleRule{Prelude: prelude, Span: g.span}

	if err := b.enter(g.span); err != nil {
		return nil, err
	}
	inRule := b.inRule
	b.inRule = true
	body, err := b.declarations()
	b.inRule = inRule
	b.leave()
	if err != nil {
		return nil, err
	}
	rule.Body = body
	rule.Span = b.closeSpan(rule.Span)
	return []Node{rule}, nil
}

func (b *builder) declaration(g grammar) ([]Node, error) {
	tokens := b.values()
	if hasBlock(tokens) {
		// "a:hover { ... }" reads as a declaration named "a"
		chunk := make([]Token, 0, len(tokens)+2)
		chunk = append(chunk, Token{Type: css.IdentToken, Data: g.data}, Token{Type: css.ColonToken, Data: ":"})
		chunk = append(chunk, tokens...)
		return b.nestedRules(chunk, g.span)
	}
	value, important := splitImportant(tokens)
	if err := b.checkTokens(value, g.span); err != nil {
		return nil, err
	}
	return []Node{&Declaration{Property: g.data, Value: value, Important: important, Span: g.span}}, nil
}

func (b *builder) customProperty(g grammar) ([]Node, error) {
	var raw string
	if values := b.parser.Values(); len(values) > 0 {
		raw = string(values[0].Data)
	}
	value, important := splitImportant(tokenize(raw))
	if err := b.checkTokens(value, g.span); err != nil {
		return nil, err
	}
	return []Node{&Declaration{Property: g.data, Value: value, Important: important, Custom: true, Span: g.span}}, nil
}
