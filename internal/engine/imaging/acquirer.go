// Package imaging acquires poster images through an ordered list of
// strategies and stores them under deterministic, title-derived names.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/identity"
	"github.com/law-makers/cartelera/internal/ratelimit"
	"github.com/law-makers/cartelera/internal/retry"
	"github.com/law-makers/cartelera/internal/utils/fileutil"
	textutil "github.com/law-makers/cartelera/internal/utils/text"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
)

// DefaultExt is used when the source URL carries no usable extension
const DefaultExt = ".jpg"

// ErrExhausted is returned when every strategy failed or was not applicable
var ErrExhausted = errors.New("all image acquisition strategies failed")

var knownExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// Renderer performs in-page captures of a live element
type Renderer interface {
	// CanvasDataURL draws the element onto a canvas and returns its data URL
	CanvasDataURL(ctx context.Context, el dom.Element) (string, error)
	// CaptureRegion screenshots the on-screen region of the element as PNG
	CaptureRegion(ctx context.Context, el dom.Element) ([]byte, error)
}

// LiveElement gives render strategies access to the poster element of the
// item's page, holding the navigation lock for the duration of fn.
type LiveElement interface {
	WithElement(ctx context.Context, fn func(ctx context.Context, el dom.Element, r Renderer) error) error
}

// Source describes where a poster can be obtained from. Either field may be
// empty.
type Source struct {
	URL  string
	Live LiveElement
}

// IdentitySource supplies identities for direct fetches
type IdentitySource interface {
	Next() identity.Identity
	MarkBlocked(identity.Identity)
	MarkHealthy(identity.Identity)
}

// Pacer delays before an image retrieval
type Pacer interface {
	Delay(ctx context.Context, min, max time.Duration)
}

// Options configures an Acquirer
type Options struct {
	Dir         string
	Client      *http.Client
	Identities  IdentitySource
	Pacer       Pacer
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Limiter     ratelimit.RateLimiter
	Retry       retry.Config
	Quality     int
	PosterWidth int
	MaxBytes    int64
}

// Acquirer runs the strategy list for a title
type Acquirer struct {
	opts       Options
	strategies []strategy
}

// New creates an Acquirer with the direct, canvas and region strategies
func New(opts Options) *Acquirer {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Identities == nil {
		opts.Identities = identity.NewRotator(nil, nil)
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Acquirer{
		opts:       opts,
		strategies: []strategy{directFetch{}, canvasCapture{}, regionCapture{}},
	}
}

// Dir returns the image directory
func (a *Acquirer) Dir() string {
	return a.opts.Dir
}

// Target returns the deterministic path for title and a source URL
func (a *Acquirer) Target(title, sourceURL string) string {
	return filepath.Join(a.opts.Dir, textutil.SanitizeTitle(title)+storedExt(extFor(sourceURL)))
}

// Existing returns a previously stored image for title, if any
func (a *Acquirer) Existing(title, sourceURL string) (string, bool) {
	target := a.Target(title, sourceURL)
	if fileutil.Exists(target) {
		return target, true
	}
	matches, _ := filepath.Glob(filepath.Join(a.opts.Dir, textutil.SanitizeTitle(title)+".*"))
	for _, m := range matches {
		if knownExts[filepath.Ext(m)] && fileutil.Exists(m) {
			return m, true
		}
	}
	return "", false
}

// Acquire returns the local path of title's poster. An image stored by an
// earlier call is returned without fetching. Otherwise the strategies run in
// order and the first success is compressed and written atomically. A nil
// path with an error wrapping ErrExhausted means no strategy succeeded.
func (a *Acquirer) Acquire(ctx context.Context, src Source, title string) (*string, error) {
	if path, ok := a.Existing(title, src.URL); ok {
		log.Debug().Str("title", title).Str("path", path).Msg("Image already stored")
		return &path, nil
	}

	var errs []error
	for _, s := range a.strategies {
		data, ext, err := s.acquire(ctx, a, src)
		if errors.Is(err, errNotApplicable) {
			continue
		}
		if err != nil {
			log.Debug().Err(err).Str("strategy", s.name()).Str("title", title).Msg("Image strategy failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name(), err))
			continue
		}

		path, err := a.store(title, data, ext)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("strategy", s.name()).
			Str("path", path).
			Int("bytes", len(data)).
			Msg("Image stored")
		return &path, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no image source", ErrExhausted)
	}
	return nil, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

// store re-encodes data and writes it under the title. PNG stays PNG;
// every other format becomes JPEG. If the bytes cannot be decoded they are
// kept under their source extension.
func (a *Acquirer) store(title string, data []byte, ext string) (string, error) {
	target := storedExt(ext)
	compressed, err := Compress(data, target, a.opts.Quality)
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Image compression failed, keeping original bytes")
		compressed, target = data, ext
	}
	path := filepath.Join(a.opts.Dir, textutil.SanitizeTitle(title)+target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, compressed, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func storedExt(ext string) string {
	if ext == ".png" {
		return ext
	}
	return DefaultExt
}

func extFor(sourceURL string) string {
	if ext := urlutil.Extension(sourceURL); knownExts[ext] {
		return ext
	}
	return DefaultExt
}
