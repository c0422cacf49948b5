// Package cardtext turns the HTML stored in Anki note fields into plain text
// suitable for chat messages.
package cardtext

import (
	"strings"

	"golang.org/x/net/html"
)

type state int

const (
	reading state = iota
	skipping
)

// Content is the plain-text rendering of one field.
type Content struct {
	Text   string
	Images []string
}

// Parse walks the HTML in s. It drops <style> and <script> bodies, unwraps
// inline markup such as <b>, turns <br> and block boundaries into spaces, and
// collects the src of every <img>.
func Parse(s string) Content {
	var c Content
	if s == "" {
		return c
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	current := reading
	depth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is usable.
			c.Text = collapse(b.String())
			return c
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "style", "script":
				if tt == html.StartTagToken {
					current = skipping
					depth++
				}
			case "img":
				if src := attr(tok, "src"); src != "" {
					c.Images = append(c.Images, src)
				}
			case "br", "div", "p", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.Data {
			case "style", "script":
				if depth > 0 {
					depth--
				}
				if depth == 0 {
					current = reading
				}
			case "div", "p", "li":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if current == reading {
				b.Write(z.Text())
			}
		}
	}
}

// Text is shorthand for Parse(s).Text.
func Text(s string) string {
	return Parse(s).Text
}

// Images is shorthand for Parse(s).Images.
func Images(s string) []string {
	return Parse(s).Images
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
