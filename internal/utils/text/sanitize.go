// Package textutil holds the title normalisation rules shared by record,
// index and image filenames.
package textutil

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	urlutil "github.com/law-makers/cartelera/internal/utils/url"
)

// FallbackName is used when a title sanitises to nothing
const FallbackName = "untitled"

// SanitizeTitle maps a title onto a filesystem-safe base name.
// Characters other than letters, digits, underscore, hyphen and whitespace are
// dropped, the result is trimmed and whitespace runs become a single "_".
func SanitizeTitle(title string) string {
	title = norm.NFC.String(title)

	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	safe := strings.Join(strings.Fields(b.String()), "_")
	if safe == "" {
		return FallbackName
	}
	return safe
}

// TitleFromSlug derives a readable title from the last path segment of an
// item URL, e.g. ".../peliculas/dune-parte-dos" -> "Dune Parte Dos".
func TitleFromSlug(rawURL string) string {
	slug := urlutil.LastSegment(rawURL)
	if slug == "" {
		return ""
	}
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	return cases.Title(language.Spanish).String(strings.Join(words, " "))
}
