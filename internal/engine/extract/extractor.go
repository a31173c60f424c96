// Package extract maps a loaded page onto an ExtractedRecord using ordered
// selector fallback chains. Missing markup degrades a field to
// models.Unavailable; it never fails the record.
package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine/dom"
	textutil "github.com/law-makers/cartelera/internal/utils/text"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
	"github.com/law-makers/cartelera/pkg/models"
)

// Extractor applies a selector Table to documents
type Extractor struct {
	table Table
}

// New creates an Extractor for table
func New(table Table) *Extractor {
	return &Extractor{table: table}
}

// Table returns the selector table in use
func (x *Extractor) Table() Table {
	return x.table
}

// Field returns the text of the first element, in chain order, whose text is
// non-empty. It returns models.Unavailable when nothing matches.
func (x *Extractor) Field(ctx context.Context, doc dom.Document, field string, chain Chain) string {
	for _, selector := range chain {
		for _, el := range doc.QueryAll(ctx, selector) {
			if text := el.Text(); text != "" {
				return text
			}
		}
	}
	degraded(field, chain)
	return models.Unavailable
}

// FieldList returns the non-empty texts of the first selector in chain that
// yields any. The result is never nil.
func (x *Extractor) FieldList(ctx context.Context, doc dom.Document, field string, chain Chain) []string {
	for _, selector := range chain {
		var values []string
		for _, el := range doc.QueryAll(ctx, selector) {
			if text := el.Text(); text != "" {
				values = append(values, text)
			}
		}
		if len(values) > 0 {
			return values
		}
	}
	degraded(field, chain)
	return []string{}
}

// First returns the first element matched by any selector in chain
func (x *Extractor) First(ctx context.Context, doc dom.Document, chain Chain) (dom.Element, bool) {
	for _, selector := range chain {
		if el, ok := doc.Query(ctx, selector); ok {
			return el, true
		}
	}
	return nil, false
}

// PosterURL returns the poster source URL, preferring src over lazy-load
// attributes, or "" when the page exposes none.
func (x *Extractor) PosterURL(ctx context.Context, doc dom.Document) string {
	for _, selector := range x.table.Poster {
		for _, el := range doc.QueryAll(ctx, selector) {
			for _, attr := range []string{"src", "data-src"} {
				if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
	}
	return ""
}

// Record extracts every markup-backed field of item's detail page.
// Sessions, poster path and scrapedAt are filled in by the caller.
func (x *Extractor) Record(ctx context.Context, doc dom.Document, item models.ItemReference) *models.ExtractedRecord {
	t := x.table
	rec := &models.ExtractedRecord{
		Title:          item.Title,
		URL:            item.URL,
		LocalImagePath: item.LocalImagePath,
		PageTitle:      x.Field(ctx, doc, "title", t.Title),
		Duration:       x.Field(ctx, doc, "duration", t.Duration),
		ReleaseDate:    x.Field(ctx, doc, "release_date", t.ReleaseDate),
		Genres:         x.FieldList(ctx, doc, "genres", t.Genres),
		Classification: x.Field(ctx, doc, "classification", t.Classification),
		Directors:      x.Field(ctx, doc, "directors", t.Directors),
		Cast:           splitCast(x.FieldList(ctx, doc, "cast", t.Cast)),
		Synopsis:       x.Field(ctx, doc, "synopsis", t.Synopsis),
		PosterURL:      models.Unavailable,
		Sessions:       []models.CinemaShowtimes{},
	}

	if rec.Title == "" {
		rec.Title = fallbackTitle(rec.PageTitle, item.URL)
	}

	if id, ok := ScanScripts(ctx, doc, t.ScriptKeys); ok {
		rec.FilmID = id
	} else if seg := urlutil.LastSegment(item.URL); seg != "" {
		rec.FilmID = seg
	} else {
		rec.FilmID = models.Unavailable
	}

	if src := x.PosterURL(ctx, doc); src != "" {
		rec.PosterURL = src
	}
	return rec
}

func fallbackTitle(pageTitle, url string) string {
	if pageTitle != "" && pageTitle != models.Unavailable {
		return pageTitle
	}
	if t := textutil.TitleFromSlug(url); t != "" {
		return t
	}
	return models.Unavailable
}

// splitCast expands a single comma-joined credit line into names
func splitCast(values []string) []string {
	if len(values) != 1 || !strings.Contains(values[0], ",") {
		return values
	}
	out := []string{}
	for _, name := range strings.Split(values[0], ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func degraded(field string, chain Chain) {
	log.Debug().
		Str("field", field).
		Strs("selectors", chain).
		Msg("Field unavailable, no selector matched")
}
