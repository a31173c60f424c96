// Package dynamic drives a single headless Chrome tab through chromedp. The
// tab is shared by every worker; callers serialize access with Lock/Unlock.
package dynamic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/engine"
	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/identity"
)

// Options configures the browser session
type Options struct {
	Headless          bool
	ChromePath        string
	Proxy             string
	UserAgent         string
	NavigationTimeout time.Duration
	// Consent is tried in order; the first visible match is clicked
	Consent     []string
	ConsentWait time.Duration
}

// Session is a live browser tab
type Session struct {
	opts Options

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	ctx         context.Context

	mainFrame cdp.FrameID

	mu         sync.Mutex
	currentURL string
	status     atomic.Int64
}

// NewSession launches the browser and opens the shared tab
func NewSession(opts Options) (*Session, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.ConsentWait <= 0 {
		opts.ConsentWait = time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1366, 900),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	}
	if path := FindChrome(opts.ChromePath); path != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
		log.Debug().Str("path", path).Str("version", ChromeVersion(path)).Msg("Using Chrome")
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		opts:        opts,
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		ctx:         tabCtx,
	}

	// The first Run starts the browser and must use the tab context itself;
	// cancelling a derived context here would close the tab.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", engine.ErrBrowserNotFound, err)
	}
	// The main frame of a page target shares the target's id
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.mainFrame = cdp.FrameID(c.Target.TargetID)
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	log.Info().Bool("headless", opts.Headless).Msg("Browser session started")
	return s, nil
}

// onEvent records the status of the first main-frame document response
// after a navigation. Redirect hops do not surface as responseReceived.
func (s *Session) onEvent(ev interface{}) {
	if status, ok := documentStatus(ev, s.mainFrame); ok {
		s.status.CompareAndSwap(0, status)
	}
}

// documentStatus extracts the HTTP status of a document response in
// mainFrame. Iframe documents and other resources are ignored. An empty
// mainFrame accepts any frame.
func documentStatus(ev interface{}, mainFrame cdp.FrameID) (int64, bool) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return 0, false
	}
	if mainFrame != "" && e.FrameID != mainFrame {
		return 0, false
	}
	return e.Response.Status, true
}

// Lock acquires exclusive use of the tab
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the tab
func (s *Session) Unlock() { s.mu.Unlock() }

// CurrentURL is the URL of the last successful Load. Callers hold the lock.
func (s *Session) CurrentURL() string { return s.currentURL }

// run executes actions on the tab, bounded by timeout and by the caller's ctx
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// SetIdentity applies the signature to subsequent page loads
func (s *Session) SetIdentity(ctx context.Context, id identity.Identity) error {
	if id.UserAgent == "" {
		return nil
	}
	lang := id.Headers()["Accept-Language"]
	return s.run(ctx, s.opts.NavigationTimeout,
		emulation.SetUserAgentOverride(id.UserAgent).WithAcceptLanguage(lang),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}),
	)
}

// Load navigates the tab and waits for the body to be ready
func (s *Session) Load(ctx context.Context, url string) (dom.Document, error) {
	s.status.Store(0)
	start := time.Now()

	err := s.run(ctx, s.opts.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, engine.NavigationFailure(url, err)
	}
	if status := s.status.Load(); status >= 400 {
		return nil, engine.NewEngineError(engine.ErrCodeNavigationError, fmt.Sprintf("HTTP %d", status), nil).
			WithDetail("url", url).
			WithDetail("status", status)
	}

	s.currentURL = url
	log.Debug().Str("url", url).Dur("elapsed", time.Since(start)).Msg("Page loaded")
	return &Page{s: s, url: url}, nil
}

const consentScript = `(function(sels) {
  for (var i = 0; i < sels.length; i++) {
    var b;
    try { b = document.querySelector(sels[i]); } catch (e) { continue; }
    if (b) { b.click(); return true; }
  }
  return false;
})`

// DismissConsent clicks the first matching consent control, if any
func (s *Session) DismissConsent(ctx context.Context) bool {
	if len(s.opts.Consent) == 0 {
		return false
	}
	var clicked bool
	if err := s.Evaluate(ctx, consentScript, &clicked, s.opts.Consent); err != nil {
		log.Debug().Err(err).Msg("Consent check failed")
		return false
	}
	if clicked {
		log.Debug().Str("url", s.currentURL).Msg("Consent banner dismissed")
		_ = s.run(ctx, s.opts.ConsentWait+time.Second, chromedp.Sleep(s.opts.ConsentWait))
	}
	return clicked
}

// Evaluate calls the JavaScript function fn with JSON-encoded args and
// decodes its return value into res.
func (s *Session) Evaluate(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	expr := "(" + fn + ")(" + strings.Join(encoded, ",") + ")"
	return s.run(ctx, s.opts.NavigationTimeout, chromedp.Evaluate(expr, res))
}

const canvasScript = `(function(sel, idx) {
  var img = document.querySelectorAll(sel)[idx];
  if (!img) { throw new Error('element gone'); }
  img.scrollIntoView({block: 'center'});
  var w = img.naturalWidth || img.width, h = img.naturalHeight || img.height;
  if (!w || !h) { throw new Error('element has no size'); }
  var c = document.createElement('canvas');
  c.width = w; c.height = h;
  c.getContext('2d').drawImage(img, 0, 0, w, h);
  return c.toDataURL('image/jpeg', 0.92);
})`

// CanvasDataURL draws el onto a canvas in the page. Tainted canvases make
// toDataURL throw, which surfaces as an error here.
func (s *Session) CanvasDataURL(ctx context.Context, el dom.Element) (string, error) {
	e, ok := el.(*Element)
	if !ok {
		return "", engine.ErrNotLiveElement
	}
	var dataURL string
	if err := s.Evaluate(ctx, canvasScript, &dataURL, e.selector, e.index); err != nil {
		return "", fmt.Errorf("canvas capture: %w", err)
	}
	return dataURL, nil
}

// CaptureRegion screenshots el's bounding box
func (s *Session) CaptureRegion(ctx context.Context, el dom.Element) ([]byte, error) {
	e, ok := el.(*Element)
	if !ok {
		return nil, engine.ErrNotLiveElement
	}
	path := e.jsPath()
	var buf []byte
	err := s.run(ctx, s.opts.NavigationTimeout,
		chromedp.ScrollIntoView(path, chromedp.ByJSPath),
		chromedp.Screenshot(path, &buf, chromedp.ByJSPath),
	)
	if err != nil {
		return nil, fmt.Errorf("region capture: %w", err)
	}
	return buf, nil
}

// Close shuts the tab and the browser process
func (s *Session) Close() error {
	s.tabCancel()
	s.allocCancel()
	log.Debug().Msg("Browser session closed")
	return nil
}
