// Package markup turns the HTML bodies of questions and answers into
// terminal-friendly plain text.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Tags to skip (non-content)
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
}

// ToText parses an HTML fragment and returns its readable text.
// Paragraph breaks survive as blank lines and <pre> blocks keep their layout.
func ToText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var buf textBuf
	var extract func(n *html.Node, pre bool)

	extract = func(n *html.Node, pre bool) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.ElementNode && n.Data == "pre" {
			pre = true
		}

		if n.Type == html.TextNode {
			if pre {
				buf.raw(n.Data)
			} else {
				buf.text(n.Data)
			}
		}

		if n.Type == html.ElementNode && n.Data == "li" {
			buf.newline()
			buf.raw("- ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c, pre)
		}

		// Add newlines after block elements
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "pre", "blockquote", "h1", "h2", "h3", "h4", "h5", "h6":
				buf.blankLine()
			case "div", "li", "br", "ul", "ol", "hr":
				buf.newline()
			}
		}
	}

	extract(doc, false)

	out := string(buf.b)
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

type textBuf struct {
	b []byte
}

func (t *textBuf) last() byte {
	if len(t.b) == 0 {
		return '\n'
	}
	return t.b[len(t.b)-1]
}

// text appends inline text with runs of whitespace collapsed to one space
func (t *textBuf) text(s string) {
	words := strings.Fields(s)
	if len(words) == 0 {
		if s != "" {
			t.space()
		}
		return
	}
	if isSpace(s[0]) {
		t.space()
	}
	t.b = append(t.b, strings.Join(words, " ")...)
	if isSpace(s[len(s)-1]) {
		t.space()
	}
}

func (t *textBuf) raw(s string) {
	t.b = append(t.b, s...)
}

func (t *textBuf) space() {
	if c := t.last(); c != ' ' && c != '\n' {
		t.b = append(t.b, ' ')
	}
}

func (t *textBuf) newline() {
	for len(t.b) > 0 && t.b[len(t.b)-1] == ' ' {
		t.b = t.b[:len(t.b)-1]
	}
	if t.last() != '\n' {
		t.b = append(t.b, '\n')
	}
}

func (t *textBuf) blankLine() {
	t.newline()
	if len(t.b) > 0 {
		t.b = append(t.b, '\n')
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
