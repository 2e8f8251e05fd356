package parser

import (
	"strings"

	"patchsage/internal/util"

	"golang.org/x/net/html"
)

var interestingTags = map[string]bool{
	"h1":    true,
	"h2":    true,
	"h3":    true,
	"p":     true,
	"li":    true,
	"time":  true,
	"title": true,
}

type ancestry struct {
	inArticle  bool
	inMain     bool
	inListItem bool
}

// collect walks the DOM in document order and captures every
// interesting element together with its normalized text content and
// the ancestry flags the section builder scopes on.
func collect(root *html.Node) parsedHTML {
	doc := parsedHTML{}
	walk(root, ancestry{}, &doc)
	return doc
}

func walk(n *html.Node, a ancestry, doc *parsedHTML) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "article":
			a.inArticle = true
		case "main":
			a.inMain = true
		case "meta":
			doc.metas = append(doc.metas, attrMap(n))
		}

		if interestingTags[n.Data] {
			event := elementEvent{
				tag:        n.Data,
				attrs:      attrMap(n),
				text:       elementText(n),
				inArticle:  a.inArticle,
				inMain:     a.inMain,
				inListItem: a.inListItem,
			}
			doc.events = append(doc.events, event)
			if n.Data == "title" && doc.title == "" {
				doc.title = event.text
			}
			// Children of a list item are still walked so nested list
			// items flatten into their own events.
			if n.Data == "li" {
				a.inListItem = true
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, a, doc)
	}
}

func attrMap(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attr))
	for _, attr := range n.Attr {
		attrs[attr.Key] = attr.Val
	}
	return attrs
}

// elementText returns the whitespace-normalized text of a node's
// subtree. For list items, nested lists are excluded so each bullet
// contributes exactly one change without duplicating its sub-bullets.
func elementText(n *html.Node) string {
	var b strings.Builder
	collectText(n, n.Data == "li", &b)
	return util.NormalizeSpace(b.String())
}

func collectText(n *html.Node, skipNestedLists bool, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteByte(' ')
			b.WriteString(c.Data)
			continue
		}
		if c.Type != html.ElementNode {
			continue
		}
		if skipNestedLists && (c.Data == "ul" || c.Data == "ol") {
			continue
		}
		collectText(c, skipNestedLists, b)
	}
}
