package extract

import (
	"context"
	"testing"
)

func TestScanScriptsPattern(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"json", `var a = {"filmId": "HO0001"};`, "HO0001"},
		{"unquoted key", `init({filmId: 'HO0002'})`, "HO0002"},
		{"second key", `var b = {"movieId":"M-77"};`, "M-77"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, "", "<script>"+tt.script+"</script>")
			got, ok := ScanScripts(context.Background(), doc, []string{"filmId", "movieId"})
			if !ok || got != tt.want {
				t.Errorf("ScanScripts = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestScanScriptsEvaluatesAssignments(t *testing.T) {
	doc := parse(t, "", `<script>
var state = {};
state.film = {};
state.film.filmId = ["HO", "42"].join("");
document.querySelector("#x").remove();
</script>`)

	got, ok := ScanScripts(context.Background(), doc, []string{"filmId"})
	if !ok || got != "HO42" {
		t.Errorf("ScanScripts = %q, %v; want HO42", got, ok)
	}
}

func TestScanScriptsNumericValue(t *testing.T) {
	doc := parse(t, "", `<script>window.filmId = 1000 + 234;</script>`)

	got, ok := ScanScripts(context.Background(), doc, []string{"filmId"})
	if !ok || got != "1234" {
		t.Errorf("ScanScripts = %q, %v; want 1234", got, ok)
	}
}

func TestScanScriptsAbsent(t *testing.T) {
	doc := parse(t, "", `<script src="/app.js"></script><script>var x = 1;</script>`)
	if got, ok := ScanScripts(context.Background(), doc, []string{"filmId"}); ok {
		t.Errorf("Expected no match, got %q", got)
	}
}

func TestScanScriptsRunawayScript(t *testing.T) {
	doc := parse(t, "", `<script>var filmId; while (true) {}</script>`)
	if got, ok := ScanScripts(context.Background(), doc, []string{"filmId"}); ok {
		t.Errorf("Expected no match, got %q", got)
	}
}
