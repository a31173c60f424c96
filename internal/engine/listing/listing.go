// Package listing reads the catalog page into item references.
package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine"
	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/engine/extract"
	"github.com/law-makers/cartelera/internal/engine/imaging"
	"github.com/law-makers/cartelera/internal/engine/static"
	textutil "github.com/law-makers/cartelera/internal/utils/text"
	"github.com/law-makers/cartelera/pkg/models"
)

// Navigator is the subset of the session the listing needs
type Navigator interface {
	Lock()
	Unlock()
	Load(ctx context.Context, url string) (dom.Document, error)
	DismissConsent(ctx context.Context) bool
}

// Entry is one catalog item and its thumbnail source, if any
type Entry struct {
	Ref      models.ItemReference
	ImageURL string
}

// Collect loads catalogURL and returns its items in page order, without
// duplicate URLs. max > 0 truncates the result.
func Collect(ctx context.Context, nav Navigator, x *extract.Extractor, catalogURL string, max int) ([]Entry, error) {
	raw, err := snapshot(ctx, nav, catalogURL)
	if err != nil {
		return nil, err
	}
	doc, err := static.Parse(catalogURL, raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	entries := Parse(doc, x.Table())
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	log.Info().Str("url", catalogURL).Int("items", len(entries)).Msg("Catalog listed")
	return entries, nil
}

func snapshot(ctx context.Context, nav Navigator, url string) (string, error) {
	nav.Lock()
	defer nav.Unlock()

	doc, err := nav.Load(ctx, url)
	if err != nil {
		if engine.CodeOf(err) == "" {
			err = engine.NavigationFailure(url, err)
		}
		return "", err
	}
	nav.DismissConsent(ctx)
	return doc.HTML(ctx)
}

// Parse extracts entries from a catalog document
func Parse(doc *static.Document, t extract.Table) []Entry {
	var items []*static.Element
	for _, sel := range t.ListingItem {
		if items = doc.Find(sel); len(items) > 0 {
			break
		}
	}
	if len(items) == 0 {
		log.Warn().Strs("selectors", t.ListingItem).Msg("No catalog items matched")
		return []Entry{}
	}

	seen := map[string]bool{}
	out := []Entry{}
	for _, item := range items {
		link := firstAttr(item, t.ListingLink, "href")
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		title := firstText(item, t.ListingTitle)
		if title == "" {
			title = textutil.TitleFromSlug(link)
		}
		image := firstAttr(item, t.ListingImage, "src", "data-src")
		if strings.HasPrefix(image, "data:") && !strings.HasPrefix(image, "data:image/") {
			image = ""
		}
		out = append(out, Entry{
			Ref:      models.ItemReference{Title: title, URL: link},
			ImageURL: image,
		})
	}
	return out
}

func firstAttr(item *static.Element, chain extract.Chain, attrs ...string) string {
	for _, sel := range chain {
		for _, el := range item.Find(sel) {
			for _, a := range attrs {
				if v, ok := el.Attr(a); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
	}
	return ""
}

func firstText(item *static.Element, chain extract.Chain) string {
	for _, sel := range chain {
		for _, el := range item.Find(sel) {
			if t := el.Text(); t != "" {
				return t
			}
		}
	}
	return ""
}

// References strips entries down to their item references
func References(entries []Entry) []models.ItemReference {
	out := make([]models.ItemReference, len(entries))
	for i, e := range entries {
		out[i] = e.Ref
	}
	return out
}

// Acquirer fetches an image by URL
type Acquirer interface {
	Acquire(ctx context.Context, src imaging.Source, title string) (*string, error)
}

// FetchThumbnails downloads each entry's listing image and records its local
// path on the reference. Failures leave the path nil.
func FetchThumbnails(ctx context.Context, acq Acquirer, entries []Entry) int {
	fetched := 0
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		e := &entries[i]
		if e.ImageURL == "" {
			continue
		}
		path, err := acq.Acquire(ctx, imaging.Source{URL: e.ImageURL}, e.Ref.Title)
		if err != nil {
			log.Warn().Err(err).Str("title", e.Ref.Title).Msg("Listing image not acquired")
			continue
		}
		e.Ref.LocalImagePath = path
		fetched++
	}
	return fetched
}
