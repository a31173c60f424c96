package static

import (
	"context"
	"strings"
	"testing"
)

const page = `<html><body>
<h1>  Dune:
  Part Two </h1>
<img class="poster" src="/img/dune.jpg">
<a class="buy" href="compra?id=1">Buy</a>
<ul><li>a</li><li>b</li></ul>
<script>var x = {"filmId": "HO123"};</script>
</body></html>`

func TestQueryAndText(t *testing.T) {
	doc, err := Parse("https://www.cinesa.es/peliculas/dune/", page)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx := context.Background()

	h1, ok := doc.Query(ctx, "h1")
	if !ok {
		t.Fatal("Expected h1 match")
	}
	if h1.Text() != "Dune: Part Two" {
		t.Errorf("Text = %q", h1.Text())
	}

	if _, ok := doc.Query(ctx, ".missing"); ok {
		t.Error("Expected no match for .missing")
	}
	if got := doc.QueryAll(ctx, "li"); len(got) != 2 {
		t.Errorf("Expected 2 li, got %d", len(got))
	}
}

func TestAttrResolvesLinks(t *testing.T) {
	doc, _ := Parse("https://www.cinesa.es/peliculas/dune/", page)
	ctx := context.Background()

	img, _ := doc.Query(ctx, "img.poster")
	if src, _ := img.Attr("src"); src != "https://www.cinesa.es/img/dune.jpg" {
		t.Errorf("src = %q", src)
	}
	a, _ := doc.Query(ctx, "a.buy")
	if href, _ := a.Attr("href"); href != "https://www.cinesa.es/peliculas/dune/compra?id=1" {
		t.Errorf("href = %q", href)
	}
	if _, ok := a.Attr("title"); ok {
		t.Error("Expected missing attribute to report false")
	}
}

func TestScriptTextVerbatim(t *testing.T) {
	doc, _ := Parse("", page)
	s, ok := doc.Query(context.Background(), "script")
	if !ok {
		t.Fatal("Expected script match")
	}
	if !strings.Contains(s.Text(), `"filmId": "HO123"`) {
		t.Errorf("Script text = %q", s.Text())
	}
}

func TestInvalidSelectorMatchesNothing(t *testing.T) {
	doc, _ := Parse("", page)
	if got := doc.QueryAll(context.Background(), "[[["); len(got) != 0 {
		t.Errorf("Expected no matches for invalid selector, got %d", len(got))
	}
}

func TestNextSibling(t *testing.T) {
	doc, _ := Parse("", `<div><span class="d">Hoy</span><div class="btns"><a>18:00</a></div></div>`)
	dates := doc.Find(".d")
	if len(dates) != 1 {
		t.Fatalf("Expected one date, got %d", len(dates))
	}
	next := dates[0].Next()
	if next == nil || len(next.Find("a")) != 1 {
		t.Fatal("Expected sibling with one button")
	}
	if dates[0].Next().Next() != nil {
		t.Error("Expected no further sibling")
	}
}
