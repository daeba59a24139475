package tokenizer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// invisible lists elements whose text never reaches the rendered page.
var invisible = map[string]struct{}{
	"style":  {},
	"script": {},
	"head":   {},
	"title":  {},
	"meta":   {},
}

// LooksLikeHTML reports whether raw should go through ExtractText.
func LooksLikeHTML(raw string) bool {
	prefix := raw
	if len(prefix) > 4096 {
		prefix = prefix[:4096]
	}
	lower := strings.ToLower(prefix)
	return strings.Contains(lower, "<!doctype html") || strings.Contains(lower, "<html")
}

// ExtractText returns the visible text of an HTML page, one space between
// text nodes. Anything before a <!DOCTYPE is treated as transport headers
// and dropped.
func ExtractText(raw string) (string, error) {
	if i := strings.Index(raw, "<!DOCTYPE"); i > 0 {
		raw = raw[i:]
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			return
		case html.ElementNode:
			if _, skip := invisible[n.Data]; skip {
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " "), nil
}
