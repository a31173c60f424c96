package extract

import (
	"github.com/law-makers/cartelera/internal/engine/static"
	"github.com/law-makers/cartelera/pkg/models"
)

// Showtimes walks the venue containers of a page snapshot. Each date
// element's showings are the buttons inside its next sibling.
func (x *Extractor) Showtimes(doc *static.Document) []models.CinemaShowtimes {
	t := x.table
	out := []models.CinemaShowtimes{}

	for _, container := range doc.Find(t.ShowtimeContainer) {
		venue := firstText(container.Find(t.ShowtimeVenue))
		showings := []models.Showing{}

		for _, dateEl := range container.Find(t.ShowtimeDate) {
			date := textOr(dateEl.Text())
			sibling := dateEl.Next()
			if sibling == nil {
				continue
			}
			for _, button := range sibling.Find(t.ShowtimeButton) {
				showings = append(showings, models.Showing{
					Date:        date,
					Time:        firstText(button.Find(t.ShowtimeTime)),
					Format:      firstText(button.Find(t.ShowtimeFormat)),
					PurchaseURL: purchaseURL(button),
				})
			}
		}

		out = append(out, models.CinemaShowtimes{VenueName: venue, Showings: showings})
	}
	return out
}

func purchaseURL(button *static.Element) string {
	if href, ok := button.Attr("href"); ok && href != "" {
		return href
	}
	for _, a := range button.Find("a[href]") {
		if href, _ := a.Attr("href"); href != "" {
			return href
		}
	}
	return models.Unavailable
}

func firstText(els []*static.Element) string {
	for _, el := range els {
		if text := el.Text(); text != "" {
			return text
		}
	}
	return models.Unavailable
}

func textOr(s string) string {
	if s == "" {
		return models.Unavailable
	}
	return s
}
