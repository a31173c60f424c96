package persist

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/law-makers/cartelera/internal/utils/fileutil"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
	"github.com/law-makers/cartelera/pkg/models"
)

var recordTemplate = template.Must(template.New("record").Funcs(template.FuncMap{
	"known": func(s string) bool { return s != "" && s != models.Unavailable },
	"join":  func(v []string) string { return strings.Join(v, ", ") },
}).Parse(`<h1>{{.Title}}</h1>
{{with .Poster}}<p><img src="{{.}}" alt="poster"></p>{{end}}
<ul>
{{if known .Duration}}<li><strong>Duration:</strong> {{.Duration}}</li>{{end}}
{{if known .ReleaseDate}}<li><strong>Release:</strong> {{.ReleaseDate}}</li>{{end}}
{{if .Genres}}<li><strong>Genres:</strong> {{join .Genres}}</li>{{end}}
{{if known .Classification}}<li><strong>Rating:</strong> {{.Classification}}</li>{{end}}
{{if known .Directors}}<li><strong>Director:</strong> {{.Directors}}</li>{{end}}
{{if .Cast}}<li><strong>Cast:</strong> {{join .Cast}}</li>{{end}}
<li><a href="{{.URL}}">{{.URL}}</a></li>
</ul>
{{if known .Synopsis}}<h2>Synopsis</h2><p>{{.Synopsis}}</p>{{end}}
{{if .Sessions}}<h2>Showtimes</h2>{{end}}
{{range .Sessions}}<h3>{{.VenueName}}</h3>
<ul>{{range .Showings}}<li>{{.Date}} {{.Time}}{{if known .Format}} ({{.Format}}){{end}}{{if known .PurchaseURL}} <a href="{{.PurchaseURL}}">tickets</a>{{end}}</li>{{end}}</ul>
{{end}}`))

type markdownView struct {
	*models.ExtractedRecord
	Poster string
}

func (w *Writer) writeMarkdown(rec *models.ExtractedRecord, path string) error {
	view := markdownView{ExtractedRecord: rec}
	if p := rec.ImageLocator(); p != nil {
		if rel, err := filepath.Rel(filepath.Dir(path), *p); err == nil {
			view.Poster = filepath.ToSlash(rel)
		}
	}
	out, err := renderMarkdown(view, rec.URL)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, []byte(out), 0o644)
}

// renderMarkdown renders the record view as GitHub-flavored Markdown with
// links resolved against pageURL.
func renderMarkdown(view markdownView, pageURL string) (string, error) {
	var buf bytes.Buffer
	if err := recordTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render record: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	converter.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			href, exists := selec.Attr("href")
			if !exists {
				return nil
			}
			str := fmt.Sprintf("[%s](%s)", selec.Text(), urlutil.ResolveURL(pageURL, href))
			return &str
		},
	})

	cleaned, err := cleanHTML(buf.String())
	if err != nil {
		return "", err
	}
	return converter.ConvertString(cleaned)
}

// cleanHTML drops every attribute except link and image targets
func cleanHTML(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, svg, form").Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Nodes[0]
		var kept []html.Attribute
		for _, attr := range node.Attr {
			switch {
			case node.Data == "a" && (attr.Key == "href" || attr.Key == "title"):
				kept = append(kept, attr)
			case node.Data == "img" && (attr.Key == "src" || attr.Key == "alt"):
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
