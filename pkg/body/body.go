// Package body flattens message parts into plain text for extraction.
package body

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// Text returns the text of msg. Plain text parts come first in message
// order, followed by the visible text of HTML parts. Parts of other media
// types are ignored. Invalid UTF-8 sequences are dropped.
func Text(msg *api.RawMessage) string {
	var plain, markup []string
	for _, p := range msg.Parts {
		switch p.ContentType {
		case "text/plain":
			plain = append(plain, string(p.Body))
		case "text/html":
			markup = append(markup, HTMLText(p.Body))
		}
	}

	text := strings.Join(append(plain, markup...), "\n")
	return strings.ToValidUTF8(text, "")
}

// HTMLText strips markup from an HTML document. Adjacent text nodes are
// separated by a space and block elements start a new line. Script and
// style contents are dropped.
func HTMLText(doc []byte) string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a read error; either way the document ends here.
			return tidy(b.String())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if isBlock(a) {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(string(z.Text()))
			b.WriteByte(' ')
		}
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Tr, atom.Li, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Body, atom.Title, atom.Hr:
		return true
	}
	return false
}

// tidy collapses runs of whitespace inside lines and drops blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
