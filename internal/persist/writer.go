// Package persist writes detail records, failure records and the aggregate
// index under an output root. Every file is written whole through a
// temp-then-rename so readers never observe a partial artifact.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/utils/fileutil"
	textutil "github.com/law-makers/cartelera/internal/utils/text"
	"github.com/law-makers/cartelera/pkg/models"
)

const (
	RecordsDirName = "detail-records"
	ImagesDirName  = "images"
	lockName       = ".lock"
	failureSuffix  = "_error"

	// ListingIndexSuffix marks the index written from the catalog listing
	ListingIndexSuffix = "_listing"
)

// ErrLocked is returned by Lock when another run holds the output root
var ErrLocked = errors.New("output directory is in use by another run")

// Options configures a Writer
type Options struct {
	Root     string
	Markdown bool
	Now      func() time.Time
}

// Writer owns the output root layout
type Writer struct {
	root     string
	records  string
	images   string
	markdown bool
	now      func() time.Time
	lock     *flock.Flock
}

// New creates the output layout under opts.Root
func New(opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("output root is empty")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Writer{
		root:     opts.Root,
		records:  filepath.Join(opts.Root, RecordsDirName),
		images:   filepath.Join(opts.Root, ImagesDirName),
		markdown: opts.Markdown,
		now:      opts.Now,
	}
	for _, dir := range []string{w.records, w.images} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	w.lock = flock.New(filepath.Join(opts.Root, lockName))
	return w, nil
}

// Root returns the output root
func (w *Writer) Root() string { return w.root }

// RecordsDir returns the detail-record directory
func (w *Writer) RecordsDir() string { return w.records }

// ImagesDir returns the image directory
func (w *Writer) ImagesDir() string { return w.images }

// Lock takes an exclusive advisory lock on the output root
func (w *Writer) Lock() error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output root: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the output root
func (w *Writer) Unlock() error {
	return w.lock.Unlock()
}

// RecordPath is the deterministic path of a record for title on day at
func (w *Writer) RecordPath(title string, at time.Time) string {
	return filepath.Join(w.records, textutil.SanitizeTitle(title)+"_"+at.Format("20060102")+".json")
}

func (w *Writer) failurePath(title string, at time.Time) string {
	return filepath.Join(w.records, textutil.SanitizeTitle(title)+"_"+at.Format("20060102")+failureSuffix+".json")
}

// WriteRecord serializes rec under its title and processing date. Writing
// the same record twice yields the same file.
func (w *Writer) WriteRecord(rec *models.ExtractedRecord) (string, error) {
	if rec == nil {
		return "", errors.New("nil record")
	}
	at := rec.ScrapedAt
	if at.IsZero() {
		at = w.now()
	}
	path := w.RecordPath(rec.Title, at)

	data, err := encode(rec)
	if err != nil {
		return "", fmt.Errorf("encode record %q: %w", rec.Title, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write record %q: %w", rec.Title, err)
	}

	if w.markdown {
		if err := w.writeMarkdown(rec, strings.TrimSuffix(path, ".json")+".md"); err != nil {
			log.Warn().Err(err).Str("title", rec.Title).Msg("Markdown sidecar not written")
		}
	}

	log.Debug().Str("path", path).Msg("Record written")
	return path, nil
}

// WriteFailure leaves an audit record for an item that could not be
// processed. It never uses a success record's name.
func (w *Writer) WriteFailure(item models.ItemReference, cause error, at time.Time) (string, error) {
	title := item.Title
	if title == "" {
		title = textutil.TitleFromSlug(item.URL)
	}
	fr := models.FailureRecord{Title: title, URL: item.URL, ScrapedAt: at}
	if cause != nil {
		fr.Error = cause.Error()
	}

	data, err := encode(fr)
	if err != nil {
		return "", fmt.Errorf("encode failure record: %w", err)
	}
	path := w.failurePath(title, at)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write failure record: %w", err)
	}
	return path, nil
}

// WriteIndex writes the aggregate index for a batch, named by the current
// timestamp.
func (w *Writer) WriteIndex(entries []models.IndexEntry) (string, error) {
	return w.writeIndex(entries, "")
}

// WriteListingIndex writes the index of a catalog listing. Its name carries a
// _listing suffix so a batch index written in the same second never
// replaces it.
func (w *Writer) WriteListingIndex(entries []models.IndexEntry) (string, error) {
	return w.writeIndex(entries, ListingIndexSuffix)
}

func (w *Writer) writeIndex(entries []models.IndexEntry, suffix string) (string, error) {
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	data, err := encode(entries)
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}
	path := filepath.Join(w.root, "index_"+w.now().Format("20060102_150405")+suffix+".json")
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	log.Info().Str("path", path).Int("entries", len(entries)).Msg("Index written")
	return path, nil
}

// IndexFromRecords projects records onto index entries
func IndexFromRecords(recs []*models.ExtractedRecord) []models.IndexEntry {
	out := make([]models.IndexEntry, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, models.IndexEntryFromRecord(r))
		}
	}
	return out
}

// IndexFromReferences projects listing references onto index entries
func IndexFromReferences(refs []models.ItemReference) []models.IndexEntry {
	out := make([]models.IndexEntry, 0, len(refs))
	for _, r := range refs {
		out = append(out, models.IndexEntryFromReference(r))
	}
	return out
}

// LoadRecords reads every detail record in dir, skipping failure records
// and files that do not decode.
func LoadRecords(dir string) ([]*models.ExtractedRecord, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*models.ExtractedRecord
	for _, p := range paths {
		if strings.HasSuffix(p, failureSuffix+".json") {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var rec models.ExtractedRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.URL == "" {
			log.Warn().Str("path", p).Msg("Skipping file that is not a detail record")
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
