package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Chain is an ordered list of CSS selectors tried until one yields a value
type Chain []string

// Table holds the selector chains for every logical field. It is data, not
// code: markup drift is handled by editing the table.
type Table struct {
	Title          Chain
	Duration       Chain
	ReleaseDate    Chain
	Genres         Chain
	Classification Chain
	Directors      Chain
	Cast           Chain
	Synopsis       Chain
	Poster         Chain
	Consent        Chain

	ListingItem  Chain
	ListingLink  Chain
	ListingTitle Chain
	ListingImage Chain

	// Showtime selectors may be comma-joined selector groups
	ShowtimeContainer string
	ShowtimeVenue     string
	ShowtimeDate      string
	ShowtimeButton    string
	ShowtimeTime      string
	ShowtimeFormat    string

	// ScriptKeys are identifier keys searched for in inline scripts
	ScriptKeys []string
}

// DefaultTable returns the selectors for the current catalog markup, newest
// class names first and legacy ones after.
func DefaultTable() Table {
	return Table{
		Title:          Chain{".v-film-title__text", ".film-title", "h1"},
		Duration:       Chain{".v-film-runtime .v-display-text-part", ".film-runtime", ".duration"},
		ReleaseDate:    Chain{".v-film-release-date .v-display-text-part", ".release-date", ".film-release-date"},
		Genres:         Chain{".v-film-genres__list .v-description-list-item__description", ".film-genres span", ".genres"},
		Classification: Chain{".v-film-classification-description .v-description-list-item__description", ".film-classification", ".rating"},
		Directors:      Chain{".v-film-directors .v-display-text-part", ".film-directors", ".directors"},
		Cast:           Chain{".v-film-actors .v-display-text-part", ".film-actors", ".actors"},
		Synopsis:       Chain{".v-film-synopsis .v-display-text-part", ".film-synopsis", ".synopsis"},
		Poster:         Chain{".v-film-image__img img", ".film-poster img", ".movie-poster img"},
		Consent:        Chain{"#onetrust-accept-btn-handler", "button[aria-label='Aceptar']"},

		ListingItem:  Chain{"li.v-film-list-film", ".v-film-list-film", ".film-list-item", ".v-film-grid__item", ".movie-container"},
		ListingLink:  Chain{".v-film-list-film__info a", "a", ".film-title a", ".movie-title a"},
		ListingTitle: Chain{".v-film-list-film__info h3", "h3", ".film-title", ".movie-title"},
		ListingImage: Chain{".v-film-list-film__thumbnail img", "img", ".film-poster img", ".movie-poster img"},

		ShowtimeContainer: ".v-cinema-showtime-list__item, .cinema-container",
		ShowtimeVenue:     ".v-cinema-showtime-list__cinema-name, .cinema-name",
		ShowtimeDate:      ".v-showtime-list__date, .date",
		ShowtimeButton:    ".v-showtime-button, .showtime",
		ShowtimeTime:      ".v-showtime-button__time, .time",
		ShowtimeFormat:    ".v-showtime-button__attributes, .format",

		ScriptKeys: []string{"filmId", "movieId"},
	}
}

func (t *Table) chains() map[string]*Chain {
	return map[string]*Chain{
		"title":          &t.Title,
		"duration":       &t.Duration,
		"release_date":   &t.ReleaseDate,
		"genres":         &t.Genres,
		"classification": &t.Classification,
		"directors":      &t.Directors,
		"cast":           &t.Cast,
		"synopsis":       &t.Synopsis,
		"poster":         &t.Poster,
		"consent":        &t.Consent,
		"listing_item":   &t.ListingItem,
		"listing_link":   &t.ListingLink,
		"listing_title":  &t.ListingTitle,
		"listing_image":  &t.ListingImage,
	}
}

func (t *Table) groups() map[string]*string {
	return map[string]*string{
		"showtime_container": &t.ShowtimeContainer,
		"showtime_venue":     &t.ShowtimeVenue,
		"showtime_date":      &t.ShowtimeDate,
		"showtime_button":    &t.ShowtimeButton,
		"showtime_time":      &t.ShowtimeTime,
		"showtime_format":    &t.ShowtimeFormat,
	}
}

// WithOverrides returns a copy of t with the named chains replaced.
// Showtime keys take their selectors joined into one group; "script_keys"
// replaces ScriptKeys.
func (t Table) WithOverrides(overrides map[string][]string) (Table, error) {
	out := t
	out.ScriptKeys = append([]string(nil), t.ScriptKeys...)
	chains := out.chains()
	groups := out.groups()

	for key, selectors := range overrides {
		if len(selectors) == 0 {
			continue
		}
		switch {
		case key == "script_keys":
			out.ScriptKeys = append([]string(nil), selectors...)
		case chains[key] != nil:
			*chains[key] = append(Chain(nil), selectors...)
		case groups[key] != nil:
			*groups[key] = strings.Join(selectors, ", ")
		default:
			return t, fmt.Errorf("unknown selector field %q (known: %s)", key, strings.Join(FieldNames(), ", "))
		}
	}
	return out, nil
}

// FieldNames lists the keys accepted by WithOverrides
func FieldNames() []string {
	var t Table
	names := []string{"script_keys"}
	for k := range t.chains() {
		names = append(names, k)
	}
	for k := range t.groups() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
