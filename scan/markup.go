package scan

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// fragment is a piece of css found in markup document.
type fragment struct {
	name   string
	text   string
	inline bool
}

// markupFragments returns content of <style> elements and style attributes in
// document order. Style elements are named "<name>#style-N" and attributes
// "<name>#inline-N", both counted from 1.
func markupFragments(text, name string) ([]fragment, error) {
	var (
		frags   []fragment
		styles  int
		inlines int
		inStyle bool
	)

	z := html.NewTokenizer(strings.NewReader(text))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("unable to tokenize markup: %w", err)
			}
			return frags, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tag, hasAttr := z.TagName()
			isStyle := string(tag) == "style"
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) != "style" {
					continue
				}
				inlines++
				frags = append(frags, fragment{
					name:   fmt.Sprintf("%s#inline-%d", name, inlines),
					text:   string(val),
					inline: true,
				})
			}
			if isStyle && tt == html.StartTagToken {
				styles++
				frags = append(frags, fragment{name: fmt.Sprintf("%s#style-%d", name, styles)})
				inStyle = true
			}

		case html.TextToken:
			if inStyle {
				frags[len(frags)-1].text += string(z.Text())
			}

		case html.EndTagToken:
			if tag, _ := z.TagName(); string(tag) == "style" && inStyle {
				last := &frags[len(frags)-1]
				last.text = unwrapCDATA(last.text)
				inStyle = false
			}
		}
	}
}

// unwrapCDATA removes CDATA section markers xhtml documents may wrap style
// content into.
func unwrapCDATA(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "<![CDATA[") || !strings.HasSuffix(trimmed, "]]>") {
		return text
	}
	return strings.TrimSuffix(strings.TrimPrefix(trimmed, "<![CDATA["), "]]>")
}
