package htmldoc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns the positional XPath of an element node, e.g.
// /html/body/div[2]/span. Sibling indexes are only emitted when more than one
// sibling shares the tag.
func XPath(n *html.Node) string {
	if n == nil || n.Type == html.DocumentNode {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		parts = append(parts, step(cur))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func step(n *html.Node) string {
	name := strings.ToLower(n.Data)
	switch name {
	case "html", "head", "body":
		return name
	}
	if n.Parent == nil {
		return name
	}
	idx, total := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != name {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", name, idx)
	}
	return name
}
