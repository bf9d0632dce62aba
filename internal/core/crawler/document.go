package crawler

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Anchor is a hyperlink found in a page.
type Anchor struct {
	Text string
	Href string
}

// DocumentQuery is the read-only view strategies need of a parsed page.
type DocumentQuery interface {
	Anchors() []Anchor
	Text() string
}

// DocumentParser turns a page body into a DocumentQuery.
type DocumentParser func(r io.Reader) (DocumentQuery, error)

type htmlDocument struct {
	root *html.Node
}

// ParseHTML parses an HTML page.
func ParseHTML(r io.Reader) (DocumentQuery, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &htmlDocument{root: root}, nil
}

func (d *htmlDocument) Anchors() []Anchor {
	var anchors []Anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			anchors = append(anchors, Anchor{
				Text: collapseSpace(nodeText(n)),
				Href: strings.TrimSpace(attr(n, "href")),
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return anchors
}

func (d *htmlDocument) Text() string {
	return collapseSpace(nodeText(d.root))
}

func nodeText(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FindLink returns the absolute URL of the first anchor whose text contains
// formName, ignoring case. Anchors without a usable http(s) href are skipped.
func FindLink(doc DocumentQuery, base string, formName string) (string, bool) {
	if doc == nil {
		return "", false
	}
	needle := strings.ToLower(strings.TrimSpace(formName))
	if needle == "" {
		return "", false
	}
	for _, anchor := range doc.Anchors() {
		if anchor.Href == "" || !strings.Contains(strings.ToLower(anchor.Text), needle) {
			continue
		}
		if link, ok := ResolveHref(base, anchor.Href); ok {
			return link, true
		}
	}
	return "", false
}

// ResolveHref turns an href into an absolute http(s) URL relative to base.
// Other schemes (javascript:, mailto:) are rejected.
func ResolveHref(base string, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		ref = baseURL.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	if ref.Host == "" {
		return "", false
	}
	return ref.String(), true
}

func isHTML(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return contentType == "" || strings.Contains(contentType, "html")
}
