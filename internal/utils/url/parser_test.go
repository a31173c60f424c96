package urlutil

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://www.cinesa.es/peliculas/"
	if got := ResolveURL(base, "/peliculas/dune/"); got != "https://www.cinesa.es/peliculas/dune/" {
		t.Errorf("root-relative: got %s", got)
	}
	if got := ResolveURL(base, "https://cdn.example.com/a.jpg"); got != "https://cdn.example.com/a.jpg" {
		t.Errorf("absolute: got %s", got)
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example.com/p/poster.PNG?width=300": ".png",
		"https://cdn.example.com/p/poster":               "",
		"https://cdn.example.com/p/poster.jpeg":          ".jpeg",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUpgradeWidth(t *testing.T) {
	in := "https://img.moviexchange.com/poster.jpg?width=300&v=2"
	want := "https://img.moviexchange.com/poster.jpg?v=2&width=900"
	if got := UpgradeWidth(in, 900); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	plain := "https://cdn.example.com/poster.jpg"
	if got := UpgradeWidth(plain, 900); got != plain {
		t.Errorf("URL without width changed: %s", got)
	}
}

func TestItemURL(t *testing.T) {
	if got := ItemURL("https://www.cinesa.es", "/peliculas/", "dune"); got != "https://www.cinesa.es/peliculas/dune/" {
		t.Errorf("slug: got %s", got)
	}
	full := "https://www.cinesa.es/peliculas/dune/"
	if got := ItemURL("https://www.cinesa.es", "peliculas", full); got != full {
		t.Errorf("absolute: got %s", got)
	}
}
