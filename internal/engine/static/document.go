// Package static provides a goquery-backed dom.Document for HTML snapshots.
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/law-makers/cartelera/internal/engine/dom"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
)

// Document is a parsed HTML page
type Document struct {
	url string
	doc *goquery.Document
}

// Parse builds a Document from raw HTML. pageURL is used to resolve src/href.
func Parse(pageURL, raw string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{url: pageURL, doc: goquery.NewDocumentFromNode(root)}, nil
}

// URL returns the page URL
func (d *Document) URL() string {
	return d.url
}

// Query returns the first element matching selector
func (d *Document) Query(_ context.Context, selector string) (dom.Element, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return &Element{sel: sel, base: d.url}, true
}

// QueryAll returns every element matching selector in document order
func (d *Document) QueryAll(_ context.Context, selector string) []dom.Element {
	var out []dom.Element
	for _, el := range d.Find(selector) {
		out = append(out, el)
	}
	return out
}

// HTML returns the serialised document
func (d *Document) HTML(context.Context) (string, error) {
	return d.doc.Html()
}

// Find returns matches as concrete elements for nested walks
func (d *Document) Find(selector string) []*Element {
	return wrap(d.doc.Find(selector), d.url)
}

// Element wraps a single goquery selection
type Element struct {
	sel  *goquery.Selection
	base string
}

// Text returns the normalised text; script bodies are returned verbatim
func (e *Element) Text() string {
	if goquery.NodeName(e.sel) == "script" {
		return e.sel.Text()
	}
	return dom.NormalizeSpace(e.sel.Text())
}

// Attr returns an attribute value with src/href resolved against the page URL
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return "", false
	}
	if (name == "src" || name == "href") && e.base != "" && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
		v = urlutil.ResolveURL(e.base, v)
	}
	return v, true
}

// Find returns descendants matching selector
func (e *Element) Find(selector string) []*Element {
	return wrap(e.sel.Find(selector), e.base)
}

// Next returns the following element sibling, or nil
func (e *Element) Next() *Element {
	n := e.sel.Next()
	if n.Length() == 0 {
		return nil
	}
	return &Element{sel: n, base: e.base}
}

// OuterHTML returns the element's markup
func (e *Element) OuterHTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}

func wrap(sel *goquery.Selection, base string) []*Element {
	out := make([]*Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{sel: s, base: base})
	})
	return out
}
