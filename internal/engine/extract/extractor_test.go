package extract

import (
	"context"
	"reflect"
	"testing"

	"github.com/law-makers/cartelera/internal/engine/static"
	"github.com/law-makers/cartelera/pkg/models"
)

const detailPage = `<html><head>
<script src="/bundle.js"></script>
<script>window.dataLayer = []; var page = {"filmId": "HO00001234", "name": "dune"};</script>
</head><body>
<h1 class="v-film-title__text">Dune: Parte Dos</h1>
<div class="v-film-runtime"><span class="v-display-text-part">166 min</span></div>
<div class="film-release-date">01/03/2024</div>
<ul class="v-film-genres__list">
  <li><span class="v-description-list-item__description">Ciencia ficción</span></li>
  <li><span class="v-description-list-item__description">Aventura</span></li>
</ul>
<div class="v-film-actors"><span class="v-display-text-part">Timothée Chalamet, Zendaya ,Rebecca Ferguson</span></div>
<div class="synopsis">  Paul Atreides se une a los Fremen.  </div>
<div class="v-film-image__img"><img src="/media/dune.jpg?width=300"></div>
<div class="v-cinema-showtime-list__item">
  <h3 class="v-cinema-showtime-list__cinema-name">Cinesa Diagonal</h3>
  <span class="v-showtime-list__date">Hoy</span>
  <div>
    <a class="v-showtime-button" href="/compra/1"><span class="v-showtime-button__time">18:00</span><span class="v-showtime-button__attributes">VOSE</span></a>
    <a class="v-showtime-button" href="/compra/2"><span class="v-showtime-button__time">21:30</span></a>
  </div>
  <span class="v-showtime-list__date">Mañana</span>
  <div><a class="v-showtime-button"><span class="v-showtime-button__time">17:00</span></a></div>
</div>
<div class="cinema-container"><span class="cinema-name">Cinesa Heron City</span></div>
</body></html>`

func parse(t *testing.T, url, raw string) *static.Document {
	t.Helper()
	doc, err := static.Parse(url, raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestFieldFallbackDefault(t *testing.T) {
	doc := parse(t, "", `<html><body><p>nothing here</p></body></html>`)
	x := New(DefaultTable())

	got := x.Field(context.Background(), doc, "duration", Chain{".a", ".b", "#c"})
	if got != models.Unavailable {
		t.Errorf("Expected %q, got %q", models.Unavailable, got)
	}

	list := x.FieldList(context.Background(), doc, "genres", Chain{".a"})
	if list == nil || len(list) != 0 {
		t.Errorf("Expected empty non-nil list, got %#v", list)
	}
}

func TestFieldFirstNonEmptyWins(t *testing.T) {
	doc := parse(t, "", `<div class="a">  </div><div class="b">second</div><div class="c">third</div>`)
	x := New(DefaultTable())

	if got := x.Field(context.Background(), doc, "f", Chain{".a", ".b", ".c"}); got != "second" {
		t.Errorf("Expected second, got %q", got)
	}
	if got := x.Field(context.Background(), doc, "f", Chain{".c", ".b"}); got != "third" {
		t.Errorf("Chain order not respected, got %q", got)
	}
}

func TestFieldListUsesFirstProducingSelector(t *testing.T) {
	doc := parse(t, "", `<span class="g">Drama</span><span class="g">Thriller</span><i class="h">Other</i>`)
	x := New(DefaultTable())

	got := x.FieldList(context.Background(), doc, "genres", Chain{".missing", ".g", ".h"})
	want := []string{"Drama", "Thriller"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRecord(t *testing.T) {
	url := "https://www.cinesa.es/peliculas/dune-parte-dos/"
	doc := parse(t, url, detailPage)
	x := New(DefaultTable())

	rec := x.Record(context.Background(), doc, models.ItemReference{Title: "Dune: Parte Dos", URL: url})

	checks := map[string][2]string{
		"pageTitle":      {rec.PageTitle, "Dune: Parte Dos"},
		"duration":       {rec.Duration, "166 min"},
		"releaseDate":    {rec.ReleaseDate, "01/03/2024"},
		"classification": {rec.Classification, models.Unavailable},
		"directors":      {rec.Directors, models.Unavailable},
		"synopsis":       {rec.Synopsis, "Paul Atreides se une a los Fremen."},
		"filmId":         {rec.FilmID, "HO00001234"},
		"posterUrl":      {rec.PosterURL, "https://www.cinesa.es/media/dune.jpg?width=300"},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}

	if !reflect.DeepEqual(rec.Genres, []string{"Ciencia ficción", "Aventura"}) {
		t.Errorf("Genres = %v", rec.Genres)
	}
	if !reflect.DeepEqual(rec.Cast, []string{"Timothée Chalamet", "Zendaya", "Rebecca Ferguson"}) {
		t.Errorf("Cast = %v", rec.Cast)
	}
	if rec.Sessions == nil {
		t.Error("Expected non-nil sessions")
	}
}

func TestRecordTitleFallbacks(t *testing.T) {
	x := New(DefaultTable())
	ctx := context.Background()

	withH1 := parse(t, "https://x/peliculas/a/", `<h1>Page Title</h1>`)
	if rec := x.Record(ctx, withH1, models.ItemReference{URL: "https://x/peliculas/a/"}); rec.Title != "Page Title" {
		t.Errorf("Expected page title, got %q", rec.Title)
	}

	bare := parse(t, "https://x/peliculas/la-sociedad-de-la-nieve/", `<p></p>`)
	rec := x.Record(ctx, bare, models.ItemReference{URL: "https://x/peliculas/la-sociedad-de-la-nieve/"})
	if rec.Title != "La Sociedad De La Nieve" {
		t.Errorf("Expected slug title, got %q", rec.Title)
	}
	if rec.FilmID != "la-sociedad-de-la-nieve" {
		t.Errorf("Expected URL segment as film id, got %q", rec.FilmID)
	}
	if rec.PosterURL != models.Unavailable {
		t.Errorf("Expected unavailable poster URL, got %q", rec.PosterURL)
	}
}

func TestShowtimes(t *testing.T) {
	doc := parse(t, "https://www.cinesa.es/peliculas/dune/", detailPage)
	x := New(DefaultTable())

	got := x.Showtimes(doc)
	if len(got) != 2 {
		t.Fatalf("Expected 2 venues, got %d", len(got))
	}

	first := got[0]
	if first.VenueName != "Cinesa Diagonal" {
		t.Errorf("Venue = %q", first.VenueName)
	}
	want := []models.Showing{
		{Date: "Hoy", Time: "18:00", Format: "VOSE", PurchaseURL: "https://www.cinesa.es/compra/1"},
		{Date: "Hoy", Time: "21:30", Format: models.Unavailable, PurchaseURL: "https://www.cinesa.es/compra/2"},
		{Date: "Mañana", Time: "17:00", Format: models.Unavailable, PurchaseURL: models.Unavailable},
	}
	if !reflect.DeepEqual(first.Showings, want) {
		t.Errorf("Showings = %+v", first.Showings)
	}

	if got[1].VenueName != "Cinesa Heron City" || len(got[1].Showings) != 0 {
		t.Errorf("Second venue = %+v", got[1])
	}
}

func TestWithOverrides(t *testing.T) {
	table, err := DefaultTable().WithOverrides(map[string][]string{
		"duration":        {".runtime"},
		"showtime_button": {".btn", ".slot"},
		"script_keys":     {"id"},
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	if !reflect.DeepEqual(table.Duration, Chain{".runtime"}) {
		t.Errorf("Duration = %v", table.Duration)
	}
	if table.ShowtimeButton != ".btn, .slot" {
		t.Errorf("ShowtimeButton = %q", table.ShowtimeButton)
	}
	if !reflect.DeepEqual(table.ScriptKeys, []string{"id"}) {
		t.Errorf("ScriptKeys = %v", table.ScriptKeys)
	}
	if DefaultTable().Duration[0] == ".runtime" {
		t.Error("Override leaked into defaults")
	}

	if _, err := DefaultTable().WithOverrides(map[string][]string{"nope": {"x"}}); err == nil {
		t.Error("Expected error for unknown field")
	}
}
