package mail

import (
	"strings"

	"golang.org/x/net/html"
)

// Non-visible elements whose text is dropped.
var skipTags = map[string]bool{
	"head": true, "script": true, "style": true,
	"noscript": true, "template": true,
}

// htmlToText reduces markup to its visible text. Text nodes are joined as
// they appear with no separator added, and entities are decoded. Input that
// is not markup comes back as its own text.
func htmlToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var sb strings.Builder
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return sb.String()
}
