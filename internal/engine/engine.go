// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/engine/extract"
	"github.com/law-makers/cartelera/internal/engine/imaging"
	"github.com/law-makers/cartelera/internal/engine/static"
	"github.com/law-makers/cartelera/internal/identity"
	"github.com/law-makers/cartelera/internal/reqctx"
	"github.com/law-makers/cartelera/pkg/models"
)

// Navigator is the single shared page-loading session. Lock and Unlock
// bracket every use; only the holder may call the other methods.
type Navigator interface {
	Lock()
	Unlock()
	SetIdentity(ctx context.Context, id identity.Identity) error
	Load(ctx context.Context, url string) (dom.Document, error)
	DismissConsent(ctx context.Context) bool
	CurrentURL() string
	imaging.Renderer
}

// Writer persists per-item results
type Writer interface {
	WriteRecord(rec *models.ExtractedRecord) (string, error)
	WriteFailure(item models.ItemReference, cause error, at time.Time) (string, error)
}

// ImageAcquirer obtains a poster and returns its local path
type ImageAcquirer interface {
	Acquire(ctx context.Context, src imaging.Source, title string) (*string, error)
}

// IdentitySource supplies the signature for each page load
type IdentitySource interface {
	Next() identity.Identity
	MarkBlocked(identity.Identity)
	MarkHealthy(identity.Identity)
}

// Pacer waits a randomized interval
type Pacer interface {
	Delay(ctx context.Context, min, max time.Duration)
}

// Options configures an Engine
type Options struct {
	Navigator  Navigator
	Extractor  *extract.Extractor
	Writer     Writer
	Images     ImageAcquirer
	Identities IdentitySource
	Pacer      Pacer
	MinDelay   time.Duration
	MaxDelay   time.Duration
	// SubmitStagger spaces out task submission in RunBatch
	SubmitStagger time.Duration
	// OnOutcome, if set, is called once per item as results arrive
	OnOutcome func(models.Outcome)
	Now       func() time.Time
}

// DefaultSubmitStagger is the pause between batch submissions
const DefaultSubmitStagger = 500 * time.Millisecond

// Engine turns item references into persisted detail records
type Engine struct {
	opts Options
}

type noPacer struct{}

func (noPacer) Delay(context.Context, time.Duration, time.Duration) {}

// New validates opts and returns an Engine
func New(opts Options) (*Engine, error) {
	if opts.Navigator == nil {
		return nil, errors.New("engine: navigator is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("engine: writer is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(extract.DefaultTable())
	}
	if opts.Identities == nil {
		opts.Identities = identity.NewRotator(nil, nil)
	}
	if opts.Pacer == nil {
		opts.Pacer = noPacer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}, nil
}

// ProcessItem navigates to the item's detail page, extracts its record,
// acquires the poster and persists the result. It never panics and always
// returns exactly one Outcome.
func (e *Engine) ProcessItem(ctx context.Context, item models.ItemReference) (out models.Outcome) {
	ctx = reqctx.WithTask(ctx, item.URL)
	logger := log.With().Str("task", reqctx.TaskID(ctx)).Str("url", item.URL).Logger()
	ctx = logger.WithContext(ctx)

	nav := e.opts.Navigator
	locked := false
	unlock := func() {
		if locked {
			locked = false
			nav.Unlock()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err := NewEngineError(ErrCodePanic, fmt.Sprint(r), nil)
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Task panicked")
			out = e.fail(ctx, item, err)
		}
	}()
	defer unlock()

	start := e.opts.Now()
	logger.Debug().Str("title", item.Title).Msg("Processing item")

	nav.Lock()
	locked = true
	doc, err := e.navigate(ctx, item.URL)
	if err != nil {
		unlock()
		logger.Error().Err(err).Msg("Navigation failed")
		return e.fail(ctx, item, err)
	}

	rec := e.opts.Extractor.Record(ctx, doc, item)
	if raw, err := doc.HTML(ctx); err != nil {
		logger.Debug().Err(err).Msg("No HTML snapshot, showtimes skipped")
	} else if snap, err := static.Parse(item.URL, raw); err != nil {
		logger.Debug().Err(err).Msg("Snapshot not parseable, showtimes skipped")
	} else {
		rec.Sessions = e.opts.Extractor.Showtimes(snap)
	}

	poster := &posterHandle{e: e, url: item.URL, doc: doc}
	if rec.PosterURL == models.Unavailable {
		// Render strategies are the only option; keep the page we hold.
		poster.held = true
		e.acquirePoster(ctx, logger, rec, poster)
		poster.held = false
		unlock()
	} else {
		unlock()
		e.acquirePoster(ctx, logger, rec, poster)
	}

	rec.ScrapedAt = e.opts.Now()
	path, err := e.opts.Writer.WriteRecord(rec)
	if err != nil {
		err = NewEngineError(ErrCodePersistence, "record not written", err).WithDetail("title", rec.Title)
		logger.Error().Err(err).Msg("Persist failed")
		failure := models.Failure(item, err, rec.ScrapedAt)
		failure.Record = rec
		return failure
	}

	logger.Info().
		Str("title", rec.Title).
		Int("venues", len(rec.Sessions)).
		Bool("poster", rec.PosterLocalPath != nil).
		Dur("elapsed", e.opts.Now().Sub(start)).
		Msg("Item processed")
	return models.Success(item, rec, path, rec.ScrapedAt)
}

func (e *Engine) acquirePoster(ctx context.Context, logger zerolog.Logger, rec *models.ExtractedRecord, h *posterHandle) {
	if e.opts.Images == nil {
		return
	}
	src := imaging.Source{Live: h}
	if rec.PosterURL != models.Unavailable {
		src.URL = rec.PosterURL
	}
	path, err := e.opts.Images.Acquire(ctx, src, rec.Title)
	if err != nil {
		logger.Warn().
			Err(NewEngineError(ErrCodeImageAcquisition, "poster not acquired", err)).
			Msg("Continuing without poster")
		return
	}
	rec.PosterLocalPath = path
}

// navigate paces, applies a fresh identity and loads url. The caller holds
// the navigation lock. Identities refused with 403/429 are parked.
func (e *Engine) navigate(ctx context.Context, url string) (dom.Document, error) {
	nav := e.opts.Navigator
	e.opts.Pacer.Delay(ctx, e.opts.MinDelay, e.opts.MaxDelay)

	id := e.opts.Identities.Next()
	if err := nav.SetIdentity(ctx, id); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Identity not applied")
	}

	doc, err := nav.Load(ctx, url)
	if err != nil {
		if CodeOf(err) == "" {
			err = NavigationFailure(url, err)
		}
		if blocked(err) {
			e.opts.Identities.MarkBlocked(id)
		}
		return nil, err
	}
	e.opts.Identities.MarkHealthy(id)
	nav.DismissConsent(ctx)
	return doc, nil
}

// fail builds a failure outcome and leaves a best-effort error record
func (e *Engine) fail(ctx context.Context, item models.ItemReference, err error) models.Outcome {
	at := e.opts.Now()
	if _, werr := e.opts.Writer.WriteFailure(item, err, at); werr != nil {
		zerolog.Ctx(ctx).Warn().Err(werr).Msg("Failure record not written")
	}
	return models.Failure(item, err, at)
}

func blocked(err error) bool {
	var ee *EngineError
	if !errors.As(err, &ee) {
		return false
	}
	switch status := ee.Details["status"].(type) {
	case int64:
		return status == 403 || status == 429
	case int:
		return status == 403 || status == 429
	}
	return false
}

// posterHandle exposes the item's poster element to render strategies.
// When held is false it takes the navigation lock itself and reloads the
// item page if another task has navigated away.
type posterHandle struct {
	e    *Engine
	url  string
	doc  dom.Document
	held bool
}

func (h *posterHandle) WithElement(ctx context.Context, fn func(context.Context, dom.Element, imaging.Renderer) error) error {
	nav := h.e.opts.Navigator
	if !h.held {
		nav.Lock()
		defer nav.Unlock()
		if nav.CurrentURL() != h.url {
			doc, err := h.e.navigate(ctx, h.url)
			if err != nil {
				return err
			}
			h.doc = doc
		}
	}
	el, ok := h.e.opts.Extractor.First(ctx, h.doc, h.e.opts.Extractor.Table().Poster)
	if !ok {
		return ErrNoPoster
	}
	return fn(ctx, el, nav)
}
