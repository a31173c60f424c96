// Package dom defines the read-only document view shared by the live browser
// session and the static HTML backend.
package dom

import (
	"context"
	"strings"
)

// Element is a matched node
type Element interface {
	// Text returns the whitespace-normalised text content
	Text() string
	// Attr returns an attribute value; src and href are absolute
	Attr(name string) (string, bool)
}

// Document is a loaded page that can be queried with CSS selectors.
// Queries never fail: an invalid or unmatched selector yields no elements.
type Document interface {
	URL() string
	Query(ctx context.Context, selector string) (Element, bool)
	QueryAll(ctx context.Context, selector string) []Element
	HTML(ctx context.Context) (string, error)
}

// NormalizeSpace collapses whitespace runs and trims the result
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
