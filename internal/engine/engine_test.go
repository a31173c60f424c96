package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/engine/imaging"
	"github.com/law-makers/cartelera/internal/engine/static"
	"github.com/law-makers/cartelera/internal/identity"
	"github.com/law-makers/cartelera/pkg/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func detailHTML(title string, poster bool) string {
	img := ""
	if poster {
		img = `<div class="v-film-image__img"><img src="https://cdn.example.com/p/` + title + `.jpg?width=300"></div>`
	}
	return `<html><head><title>` + title + ` | Cines</title></head><body>
<h1 class="v-film-title__text">` + title + `</h1>
<div class="v-film-runtime"><span class="v-display-text-part">120 min</span></div>
` + img + `
<div class="v-cinema-showtime-list__item">
  <h3 class="v-cinema-showtime-list__cinema-name">Cinesa Diagonal</h3>
  <span class="v-showtime-list__date">Hoy</span>
  <div><a class="v-showtime-button" href="/compra/1"><span class="v-showtime-button__time">18:00</span></a></div>
</div>
</body></html>`
}

// fakeNav serves static pages and records lock violations
type fakeNav struct {
	mu         sync.Mutex
	pages      map[string]string
	current    string
	loads      atomic.Int32
	violations atomic.Int32
	identities atomic.Int32
	status     map[string]int64
}

func newFakeNav(pages map[string]string) *fakeNav {
	return &fakeNav{pages: pages, status: map[string]int64{}}
}

func (f *fakeNav) Lock()   { f.mu.Lock() }
func (f *fakeNav) Unlock() { f.mu.Unlock() }

func (f *fakeNav) checkHeld() {
	if f.mu.TryLock() {
		f.violations.Add(1)
		f.mu.Unlock()
	}
}

func (f *fakeNav) SetIdentity(context.Context, identity.Identity) error {
	f.checkHeld()
	f.identities.Add(1)
	return nil
}

func (f *fakeNav) Load(ctx context.Context, url string) (dom.Document, error) {
	f.checkHeld()
	f.loads.Add(1)
	time.Sleep(time.Millisecond)
	if st, ok := f.status[url]; ok {
		return nil, NewEngineError(ErrCodeNavigationError, fmt.Sprintf("HTTP %d", st), nil).WithDetail("status", st)
	}
	raw, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	f.current = url
	return static.Parse(url, raw)
}

func (f *fakeNav) DismissConsent(context.Context) bool {
	f.checkHeld()
	return false
}

func (f *fakeNav) CurrentURL() string { return f.current }

func (f *fakeNav) CanvasDataURL(context.Context, dom.Element) (string, error) {
	f.checkHeld()
	return "", errors.New("no canvas")
}

func (f *fakeNav) CaptureRegion(context.Context, dom.Element) ([]byte, error) {
	f.checkHeld()
	return nil, errors.New("no screenshot")
}

type memWriter struct {
	mu       sync.Mutex
	records  []*models.ExtractedRecord
	failures []models.ItemReference
	err      error
}

func (w *memWriter) WriteRecord(rec *models.ExtractedRecord) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.records = append(w.records, rec)
	return "/out/" + rec.Title + ".json", nil
}

func (w *memWriter) WriteFailure(item models.ItemReference, _ error, _ time.Time) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = append(w.failures, item)
	return "/out/" + item.Title + "_error.json", nil
}

// fakeImages optionally exercises the live element path
type fakeImages struct {
	mu      sync.Mutex
	sources []imaging.Source
	live    bool
	liveSrc string
	err     error
	panics  bool
}

func (f *fakeImages) Acquire(ctx context.Context, src imaging.Source, title string) (*string, error) {
	if f.panics {
		panic("decoder exploded")
	}
	f.mu.Lock()
	f.sources = append(f.sources, src)
	f.mu.Unlock()
	if f.live {
		err := src.Live.WithElement(ctx, func(_ context.Context, el dom.Element, _ imaging.Renderer) error {
			v, _ := el.Attr("src")
			f.mu.Lock()
			f.liveSrc = v
			f.mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	p := "/images/" + title + ".jpg"
	return &p, nil
}

func newTestEngine(t *testing.T, nav *fakeNav, w *memWriter, img *fakeImages) *Engine {
	t.Helper()
	opts := Options{
		Navigator: nav,
		Writer:    w,
		Now:       func() time.Time { return fixedNow },
	}
	if img != nil {
		opts.Images = img
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRequiresNavigatorAndWriter(t *testing.T) {
	if _, err := New(Options{Writer: &memWriter{}}); err == nil {
		t.Error("expected error without navigator")
	}
	if _, err := New(Options{Navigator: newFakeNav(nil)}); err == nil {
		t.Error("expected error without writer")
	}
}

func TestProcessItemSuccess(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true)})
	w := &memWriter{}
	img := &fakeImages{}
	e := newTestEngine(t, nav, w, img)

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Dune", URL: url})

	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	rec := out.Record
	if rec.Duration != "120 min" {
		t.Errorf("Duration = %q", rec.Duration)
	}
	if len(rec.Sessions) != 1 || rec.Sessions[0].VenueName != "Cinesa Diagonal" {
		t.Errorf("Sessions = %+v", rec.Sessions)
	}
	if rec.PosterLocalPath == nil || *rec.PosterLocalPath != "/images/Dune.jpg" {
		t.Errorf("PosterLocalPath = %v", rec.PosterLocalPath)
	}
	if !rec.ScrapedAt.Equal(fixedNow) {
		t.Errorf("ScrapedAt = %v", rec.ScrapedAt)
	}
	if out.RecordPath != "/out/Dune.json" {
		t.Errorf("RecordPath = %q", out.RecordPath)
	}
	if len(img.sources) != 1 || !strings.HasPrefix(img.sources[0].URL, "https://cdn.example.com/p/Dune.jpg") {
		t.Errorf("image source = %+v", img.sources)
	}
	if nav.violations.Load() != 0 {
		t.Errorf("%d navigator calls without the lock", nav.violations.Load())
	}
	if nav.identities.Load() != 1 {
		t.Errorf("identity applied %d times", nav.identities.Load())
	}
}

func TestProcessItemNavigationFailure(t *testing.T) {
	nav := newFakeNav(map[string]string{})
	w := &memWriter{}
	e := newTestEngine(t, nav, w, nil)

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Gone", URL: "https://cines.example.com/peliculas/gone"})

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if CodeOf(out.Err) != ErrCodeNavigationError {
		t.Errorf("code = %q", CodeOf(out.Err))
	}
	if out.Reason == "" {
		t.Error("failure should carry a reason")
	}
	if len(w.failures) != 1 {
		t.Errorf("failure records = %d", len(w.failures))
	}
	if !nav.mu.TryLock() {
		t.Fatal("lock not released after failure")
	}
	nav.mu.Unlock()
}

type countingIdentities struct {
	drawn   atomic.Int32
	blocked atomic.Int32
	healthy atomic.Int32
}

func (c *countingIdentities) Next() identity.Identity {
	c.drawn.Add(1)
	return identity.Identity{UserAgent: "test-agent"}
}

func (c *countingIdentities) MarkBlocked(identity.Identity) { c.blocked.Add(1) }
func (c *countingIdentities) MarkHealthy(identity.Identity) { c.healthy.Add(1) }

type countingPacer struct {
	delays atomic.Int32
}

func (p *countingPacer) Delay(context.Context, time.Duration, time.Duration) { p.delays.Add(1) }

func TestProcessItemBlockedStatusMarksIdentity(t *testing.T) {
	url := "https://cines.example.com/peliculas/blocked"
	nav := newFakeNav(map[string]string{})
	nav.status[url] = 429
	ids := &countingIdentities{}
	e, err := New(Options{Navigator: nav, Writer: &memWriter{}, Identities: ids})
	if err != nil {
		t.Fatal(err)
	}

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Blocked", URL: url})
	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if ids.blocked.Load() != 1 {
		t.Errorf("MarkBlocked called %d times", ids.blocked.Load())
	}
}

func TestProcessItemPersistenceFailureKeepsRecord(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true)})
	w := &memWriter{err: errors.New("disk full")}
	e := newTestEngine(t, nav, w, nil)

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Dune", URL: url})

	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if CodeOf(out.Err) != ErrCodePersistence {
		t.Errorf("code = %q", CodeOf(out.Err))
	}
	if out.Record == nil || out.Record.Title != "Dune" {
		t.Errorf("record not kept: %+v", out.Record)
	}
}

func TestProcessItemImageFailureStillSucceeds(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true)})
	e := newTestEngine(t, nav, &memWriter{}, &fakeImages{err: errors.New("403")})

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Dune", URL: url})

	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if out.Record.PosterLocalPath != nil {
		t.Errorf("PosterLocalPath = %v, want nil", *out.Record.PosterLocalPath)
	}
}

func TestProcessItemPanicRecovered(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true)})
	e := newTestEngine(t, nav, &memWriter{}, &fakeImages{panics: true})

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Dune", URL: url})

	if CodeOf(out.Err) != ErrCodePanic {
		t.Fatalf("code = %q", CodeOf(out.Err))
	}
	if !nav.mu.TryLock() {
		t.Fatal("lock not released after panic")
	}
	nav.mu.Unlock()
}

func TestProcessItemWithoutPosterURLUsesHeldPage(t *testing.T) {
	url := "https://cines.example.com/peliculas/lazy"
	page := strings.Replace(detailHTML("Lazy", false), "</body>",
		`<div class="v-film-image__img"><img data-lazy="1"></div></body>`, 1)
	nav := newFakeNav(map[string]string{url: page})
	img := &fakeImages{live: true}
	e := newTestEngine(t, nav, &memWriter{}, img)

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Lazy", URL: url})

	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if out.Record.PosterURL != models.Unavailable {
		t.Errorf("PosterURL = %q", out.Record.PosterURL)
	}
	if img.sources[0].URL != "" {
		t.Errorf("direct URL should be empty, got %q", img.sources[0].URL)
	}
	if nav.loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", nav.loads.Load())
	}
}

func TestPosterHandleReloadsAfterNavigationAway(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	other := "https://cines.example.com/peliculas/other"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true), other: detailHTML("Other", true)})
	ids := &countingIdentities{}
	pacer := &countingPacer{}
	e, err := New(Options{Navigator: nav, Writer: &memWriter{}, Identities: ids, Pacer: pacer})
	if err != nil {
		t.Fatal(err)
	}

	nav.Lock()
	doc, err := nav.Load(context.Background(), other)
	nav.Unlock()
	if err != nil {
		t.Fatal(err)
	}

	h := &posterHandle{e: e, url: url, doc: doc}
	var got string
	err = h.WithElement(context.Background(), func(_ context.Context, el dom.Element, _ imaging.Renderer) error {
		got, _ = el.Attr("src")
		return nil
	})
	if err != nil {
		t.Fatalf("WithElement: %v", err)
	}
	if !strings.Contains(got, "/p/Dune.jpg") {
		t.Errorf("poster src = %q, want Dune poster", got)
	}
	if nav.loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", nav.loads.Load())
	}
	// the reload of the item page is paced and carries a fresh identity
	if pacer.delays.Load() != 1 || ids.drawn.Load() != 1 || nav.identities.Load() != 1 {
		t.Errorf("reload: delays=%d drawn=%d applied=%d, want 1 each",
			pacer.delays.Load(), ids.drawn.Load(), nav.identities.Load())
	}
	if ids.healthy.Load() != 1 {
		t.Errorf("healthy = %d, want 1", ids.healthy.Load())
	}
	if nav.violations.Load() != 0 {
		t.Errorf("%d calls without lock", nav.violations.Load())
	}
}

// movingImages fails the direct fetch after another task took the tab,
// forcing the render path to reload the item page.
type movingImages struct {
	nav   *fakeNav
	other string
}

func (m *movingImages) Acquire(ctx context.Context, src imaging.Source, title string) (*string, error) {
	m.nav.Lock()
	m.nav.current = m.other
	m.nav.Unlock()
	err := src.Live.WithElement(ctx, func(context.Context, dom.Element, imaging.Renderer) error { return nil })
	if err != nil {
		return nil, err
	}
	p := "/images/" + title + ".jpg"
	return &p, nil
}

func TestProcessItemRenderReloadIsPacedPerNavigation(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	other := "https://cines.example.com/peliculas/other"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true)})
	ids := &countingIdentities{}
	pacer := &countingPacer{}
	e, err := New(Options{
		Navigator:  nav,
		Writer:     &memWriter{},
		Images:     &movingImages{nav: nav, other: other},
		Identities: ids,
		Pacer:      pacer,
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatal(err)
	}

	out := e.ProcessItem(context.Background(), models.ItemReference{Title: "Dune", URL: url})
	if !out.Succeeded() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	loads := nav.loads.Load()
	if loads != 2 {
		t.Fatalf("loads = %d, want 2", loads)
	}
	if pacer.delays.Load() != loads || ids.drawn.Load() != loads || nav.identities.Load() != loads {
		t.Errorf("loads=%d delays=%d drawn=%d applied=%d, want equal",
			loads, pacer.delays.Load(), ids.drawn.Load(), nav.identities.Load())
	}
}

func TestRenderReloadBlockedStatusMarksIdentity(t *testing.T) {
	url := "https://cines.example.com/peliculas/dune"
	other := "https://cines.example.com/peliculas/other"
	nav := newFakeNav(map[string]string{url: detailHTML("Dune", true), other: detailHTML("Other", true)})
	ids := &countingIdentities{}
	e, err := New(Options{Navigator: nav, Writer: &memWriter{}, Identities: ids})
	if err != nil {
		t.Fatal(err)
	}

	nav.Lock()
	doc, _ := nav.Load(context.Background(), other)
	nav.status[url] = 429
	nav.Unlock()

	h := &posterHandle{e: e, url: url, doc: doc}
	err = h.WithElement(context.Background(), func(context.Context, dom.Element, imaging.Renderer) error { return nil })
	if err == nil {
		t.Fatal("expected the reload to fail")
	}
	if ids.blocked.Load() != 1 {
		t.Errorf("blocked = %d, want 1", ids.blocked.Load())
	}
}
