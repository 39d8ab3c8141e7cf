package css

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// copyTokens detaches tokens from the engine buffers, which are reused
// between grammar calls.
func copyTokens(values []css.Token) []Token {
	tokens := make([]Token, 0, len(values))
	for _, v := range values {
		tokens = append(tokens, Token{Type: v.TokenType, Data: string(v.Data)})
	}
	return tokens
}

// tokenize runs the engine lexer over raw text. Custom property values come
// from the grammar parser as a single opaque token.
func tokenize(raw string) []Token {
	var tokens []Token
	l := css.NewLexer(parse.NewInputString(raw))
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return tokens
		}
		tokens = append(tokens, Token{Type: tt, Data: string(data)})
	}
}

// hasBlock reports whether tokens contain a {} block.
func hasBlock(tokens []Token) bool {
	for _, t := range tokens {
		if t.Type == css.LeftBraceToken {
			return true
		}
	}
	return false
}

// trimWhitespace drops leading and trailing whitespace tokens.
func trimWhitespace(tokens []Token) []Token {
	for len(tokens) > 0 && tokens[0].Type == css.WhitespaceToken {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].Type == css.WhitespaceToken {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// splitImportant removes trailing "!important" from declaration value.
func splitImportant(tokens []Token) ([]Token, bool) {
	tokens = trimWhitespace(tokens)
	n := len(tokens)
	if n < 2 {
		return tokens, false
	}
	last := tokens[n-1]
	if last.Type != css.IdentToken || !strings.EqualFold(last.Data, "important") {
		return tokens, false
	}
	rest := trimWhitespace(tokens[:n-1])
	if len(rest) == 0 {
		return tokens, false
	}
	if bang := rest[len(rest)-1]; bang.Type != css.DelimToken || bang.Data != "!" {
		return tokens, false
	}
	return trimWhitespace(rest[:len(rest)-1]), true
}

// URLValue returns the address carried by a url or string token: quotes are
// removed and CSS escapes decoded.
func URLValue(t Token) string {
	switch t.Type {
	case css.StringToken:
		return stringValue(t.Data)
	case css.URLToken:
		i := strings.IndexByte(t.Data, '(')
		if i < 0 {
			return ""
		}
		s := strings.TrimSuffix(t.Data[i+1:], ")")
		s = strings.Trim(s, " \t\n\r\f")
		if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
			return stringValue(s)
		}
		return unescape(s)
	}
	return ""
}

// stringValue unquotes string token text. Closing quote may be missing when
// the string ran into the end of input.
func stringValue(s string) string {
	if len(s) == 0 || (s[0] != '"' && s[0] != '\'') {
		return unescape(s)
	}
	return decode(s[1:], int(s[0]))
}

// unescape decodes CSS escape sequences.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return decode(s, -1)
}

// decode decodes escapes in s stopping at the first unescaped delim (when
// delim is not negative).
func decode(s string, delim int) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		if int(s[i]) == delim {
			break
		}
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch c := s[i]; {
		case c == '\n' || c == '\f':
			// escaped newline is a line continuation inside strings
			i++
		case c == '\r':
			i++
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case isHexDigit(c):
			j := i
			for j < len(s) && j-i < 6 && isHexDigit(s[j]) {
				j++
			}
			cp, _ := strconv.ParseUint(s[i:j], 16, 32)
			r := rune(cp)
			if r == 0 || (r >= 0xD800 && r <= 0xDFFF) || r > unicode.MaxRune {
				r = utf8.RuneError
			}
			sb.WriteRune(r)
			i = j
			if i < len(s) {
				switch s[i] {
				case ' ', '\t', '\n', '\f':
					i++
				case '\r':
					i++
					if i < len(s) && s[i] == '\n' {
						i++
					}
				}
			}
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			sb.WriteString(s[i : i+size])
			i += size
		}
	}
	return sb.String()
}

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// quoteString returns s as a double quoted CSS string.
func quoteString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\a `)
		case r < 0x20 || r == 0x7F:
			sb.WriteString(`\` + strconv.FormatInt(int64(r), 16) + ` `)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
