// Package htmldoc implements locator.Document over parsed HTML snapshots.
// It lets the caption pipeline run without Chrome: saved meeting pages are
// replayed frame by frame. Element identity is the element's id attribute when
// it has one and its XPath otherwise. An XPath identity only stays stable
// across frames while the node keeps its position among its siblings.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/locator"
)

// Document is an immutable parsed HTML page.
type Document struct {
	root *html.Node

	mu    sync.Mutex
	sels  map[string]cascadia.Selector
	paths map[*html.Node]string
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{
		root:  root,
		sels:  make(map[string]cascadia.Selector),
		paths: make(map[*html.Node]string),
	}, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// QueryAll implements locator.Document.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]locator.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	nodes := sel.MatchAll(d.root)
	out := make([]locator.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{node: n, id: d.identity(n)})
	}
	return out, nil
}

func (d *Document) compile(selector string) (cascadia.Selector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sel, ok := d.sels[selector]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: compile %q: %w", selector, err)
	}
	d.sels[selector] = sel
	return sel, nil
}

func (d *Document) identity(n *html.Node) caption.NodeID {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" && a.Val != "" {
			return caption.NodeID("id:" + a.Val)
		}
	}
	return caption.NodeID(d.xpath(n))
}

func (d *Document) xpath(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.paths[n]; ok {
		return p
	}
	p := XPath(n)
	d.paths[n] = p
	return p
}

type element struct {
	node *html.Node
	id   caption.NodeID
}

func (e *element) Identity() caption.NodeID { return e.id }

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		collectText(&b, c)
	}
	return strings.TrimSpace(b.String()), nil
}

// collectText approximates innerText: text nodes are concatenated, script and
// style content is skipped, block boundaries inside the element become spaces.
func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		case "br", "div", "p", "li":
			b.WriteByte(' ')
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}
