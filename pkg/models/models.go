package models

import "time"

// Unavailable marks a field whose value could not be found on the page.
const Unavailable = "unavailable"

// ItemReference is a single catalog entry submitted to the engine
type ItemReference struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	LocalImagePath *string `json:"localImagePath"`
}

// Showing is one bookable screening
type Showing struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Format      string `json:"format"`
	PurchaseURL string `json:"purchaseUrl"`
}

// CinemaShowtimes groups the showings of one venue
type CinemaShowtimes struct {
	VenueName string    `json:"venueName"`
	Showings  []Showing `json:"showings"`
}

// ExtractedRecord is the enriched detail record for an item.
// String fields hold Unavailable when the page did not expose them.
type ExtractedRecord struct {
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	LocalImagePath  *string           `json:"localImagePath"`
	FilmID          string            `json:"filmId"`
	PageTitle       string            `json:"pageTitle"`
	Duration        string            `json:"duration"`
	ReleaseDate     string            `json:"releaseDate"`
	Genres          []string          `json:"genres"`
	Classification  string            `json:"classification"`
	Directors       string            `json:"directors"`
	Cast            []string          `json:"cast"`
	Synopsis        string            `json:"synopsis"`
	PosterURL       string            `json:"posterUrl"`
	PosterLocalPath *string           `json:"posterLocalPath"`
	Sessions        []CinemaShowtimes `json:"sessions"`
	ScrapedAt       time.Time         `json:"scrapedAt"`
}

// Reference returns the identifying subset of the record
func (r *ExtractedRecord) Reference() ItemReference {
	return ItemReference{Title: r.Title, URL: r.URL, LocalImagePath: r.LocalImagePath}
}

// ImageLocator returns the best local image for the record: the detail poster
// when one was acquired, otherwise the listing thumbnail.
func (r *ExtractedRecord) ImageLocator() *string {
	if r.PosterLocalPath != nil {
		return r.PosterLocalPath
	}
	return r.LocalImagePath
}

// IndexEntry is the projection of a record written to the aggregate index
type IndexEntry struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	ImageLocator *string `json:"imageLocator"`
}

// IndexEntryFromRecord projects a record onto its index entry
func IndexEntryFromRecord(r *ExtractedRecord) IndexEntry {
	return IndexEntry{Title: r.Title, URL: r.URL, ImageLocator: r.ImageLocator()}
}

// IndexEntryFromReference projects a listing reference onto an index entry
func IndexEntryFromReference(ref ItemReference) IndexEntry {
	return IndexEntry{Title: ref.Title, URL: ref.URL, ImageLocator: ref.LocalImagePath}
}

// OutcomeStatus tags an Outcome
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailure OutcomeStatus = "failure"
)

// Outcome is the result of processing one ItemReference.
// Record is set for successes; Err and Reason for failures. A persistence
// failure keeps the extracted Record for diagnostics.
type Outcome struct {
	Status     OutcomeStatus
	Item       ItemReference
	Record     *ExtractedRecord
	RecordPath string
	Err        error
	Reason     string
	At         time.Time
}

// Success builds a successful outcome
func Success(item ItemReference, rec *ExtractedRecord, path string, at time.Time) Outcome {
	return Outcome{Status: StatusSuccess, Item: item, Record: rec, RecordPath: path, At: at}
}

// Failure builds a failed outcome
func Failure(item ItemReference, err error, at time.Time) Outcome {
	o := Outcome{Status: StatusFailure, Item: item, Err: err, At: at}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

// Succeeded reports whether the outcome carries a persisted record
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// FailureRecord is written for items that could not be processed
type FailureRecord struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	ScrapedAt time.Time `json:"scrapedAt"`
}
