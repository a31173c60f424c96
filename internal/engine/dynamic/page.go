package dynamic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine/dom"
)

// Page is the document currently loaded in the session's tab. It is only
// valid while the caller holds the session lock.
type Page struct {
	s   *Session
	url string
}

// Element is a snapshot of a matched node, addressable again by selector
// and index for render captures.
type Element struct {
	selector string
	index    int
	text     string
	script   bool
	attrs    map[string]string
}

type nodeInfo struct {
	Text   string            `json:"text"`
	Script bool              `json:"script"`
	Attrs  map[string]string `json:"attrs"`
}

const queryScript = `(function(sel) {
  var out = [], nodes;
  try { nodes = document.querySelectorAll(sel); } catch (e) { return out; }
  for (var i = 0; i < nodes.length; i++) {
    var e = nodes[i], a = {};
    for (var j = 0; j < e.attributes.length; j++) { a[e.attributes[j].name] = e.attributes[j].value; }
    if (typeof e.src === 'string' && e.src) { a.src = e.src; }
    if (typeof e.href === 'string' && e.href) { a.href = e.href; }
    var script = e.tagName === 'SCRIPT';
    out.push({text: script ? e.textContent : (e.innerText || e.textContent || ''), script: script, attrs: a});
  }
  return out;
})`

// URL returns the loaded URL
func (p *Page) URL() string { return p.url }

// Query returns the first match for selector
func (p *Page) Query(ctx context.Context, selector string) (dom.Element, bool) {
	all := p.QueryAll(ctx, selector)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// QueryAll returns every match for selector
func (p *Page) QueryAll(ctx context.Context, selector string) []dom.Element {
	var nodes []nodeInfo
	if err := p.s.Evaluate(ctx, queryScript, &nodes, selector); err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("Query failed")
		return nil
	}
	out := make([]dom.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &Element{selector: selector, index: i, text: n.Text, script: n.Script, attrs: n.Attrs}
	}
	return out
}

// HTML returns the serialized document
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.s.run(ctx, p.s.opts.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", p.url, err)
	}
	return html, nil
}

// Text returns the element's rendered text; script bodies are returned as-is
func (e *Element) Text() string {
	if e.script {
		return e.text
	}
	return dom.NormalizeSpace(e.text)
}

// Attr returns an attribute value
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) jsPath() string {
	sel, _ := json.Marshal(e.selector)
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", sel, e.index)
}
