// Package app wires configuration into the long-lived collaborators shared by
// every command.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/cartelera/internal/config"
	"github.com/law-makers/cartelera/internal/engine"
	"github.com/law-makers/cartelera/internal/engine/dynamic"
	"github.com/law-makers/cartelera/internal/engine/extract"
	"github.com/law-makers/cartelera/internal/engine/imaging"
	"github.com/law-makers/cartelera/internal/identity"
	"github.com/law-makers/cartelera/internal/pacing"
	"github.com/law-makers/cartelera/internal/persist"
	"github.com/law-makers/cartelera/internal/ratelimit"
	"github.com/law-makers/cartelera/internal/retry"
	"github.com/law-makers/cartelera/internal/store"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
	"github.com/law-makers/cartelera/pkg/models"
)

// Application holds all application dependencies and manages their lifecycle.
//
// The browser session and the database are opened on first use so that
// commands which need neither stay cheap.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Extractor   *extract.Extractor
	Identities  *identity.Rotator
	Pacer       *pacing.Pacer
	RateLimiter ratelimit.RateLimiter
	HTTPClient  *http.Client
	Writer      *persist.Writer
	Posters     *imaging.Acquirer
	Thumbnails  *imaging.Acquirer

	mu      sync.Mutex
	session *dynamic.Session
	db      *store.Store

	startTime time.Time
}

// New creates and initializes a new Application from cfg
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := ConfigureLogging(cfg)

	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}

	writer, err := persist.New(persist.Options{Root: cfg.OutputDir, Markdown: cfg.Markdown})
	if err != nil {
		return nil, err
	}

	rotator := identity.NewRotator(identity.FromUserAgents(cfg.UserAgents), nil)
	pacer := pacing.New(nil)
	limiter := ratelimit.NewDomainLimiter(cfg.ImageRPS, cfg.ImageBurst)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ImageRetries

	imgOpts := imaging.Options{
		Dir:         writer.ImagesDir(),
		Client:      httpClient,
		Identities:  rotator,
		Pacer:       pacer,
		MinDelay:    cfg.ImageMinDelay,
		MaxDelay:    cfg.ImageMaxDelay,
		Limiter:     limiter,
		Retry:       retryCfg,
		Quality:     cfg.ImageQuality,
		PosterWidth: cfg.PosterWidth,
	}
	posters := imaging.New(imgOpts)
	imgOpts.Dir = filepath.Join(writer.ImagesDir(), "listing")
	imgOpts.PosterWidth = 0
	thumbnails := imaging.New(imgOpts)

	a := &Application{
		Config:      cfg,
		Logger:      &logger,
		Extractor:   extract.New(table),
		Identities:  rotator,
		Pacer:       pacer,
		RateLimiter: limiter,
		HTTPClient:  httpClient,
		Writer:      writer,
		Posters:     posters,
		Thumbnails:  thumbnails,
		startTime:   time.Now(),
	}

	logger.Debug().
		Str("output", cfg.OutputDir).
		Int("identities", rotator.Size()).
		Strs("sources", cfg.Sources).
		Msg("Application initialized")
	return a, nil
}

// ConfigureLogging sets the global zerolog level and writer from cfg.
// Console output stays at warn unless -v is given so the progress bar owns
// the terminal; JSON output keeps info events.
func ConfigureLogging(cfg *config.Config) zerolog.Logger {
	level := zerolog.WarnLevel
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = zerolog.DebugLevel
	case "error":
		level = zerolog.ErrorLevel
	case "warn":
		level = zerolog.WarnLevel
	default:
		if cfg.JSONLog {
			level = zerolog.InfoLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if cfg.JSONLog {
		w = os.Stderr
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// Session lazily starts the browser session
func (a *Application) Session() (*dynamic.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return a.session, nil
	}

	cfg := a.Config
	ua := ""
	if len(cfg.UserAgents) > 0 {
		ua = cfg.UserAgents[0]
	}
	a.Logger.Debug().Msg("Starting browser session on demand")
	s, err := dynamic.NewSession(dynamic.Options{
		Headless:          cfg.Headless,
		ChromePath:        cfg.ChromePath,
		Proxy:             cfg.Proxy,
		UserAgent:         ua,
		NavigationTimeout: cfg.NavigationTimeout,
		Consent:           a.Extractor.Table().Consent,
	})
	if err != nil {
		return nil, err
	}
	a.session = s
	return s, nil
}

// Engine builds a scheduler over the shared session. onOutcome may be nil.
func (a *Application) Engine(onOutcome func(models.Outcome)) (*engine.Engine, error) {
	s, err := a.Session()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Navigator:     s,
		Extractor:     a.Extractor,
		Writer:        a.Writer,
		Images:        a.Posters,
		Identities:    a.Identities,
		Pacer:         a.Pacer,
		MinDelay:      a.Config.MinDelay,
		MaxDelay:      a.Config.MaxDelay,
		SubmitStagger: a.Config.SubmitStagger,
		OnOutcome:     onOutcome,
	})
}

// Store lazily opens the database sink. It returns nil when none is configured.
func (a *Application) Store(ctx context.Context) (*store.Store, error) {
	if !a.Config.Database.Enabled() {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(ctx, a.Config.Database.Driver, a.Config.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// ItemURL turns a URL or bare slug into an item page URL
func (a *Application) ItemURL(target string) string {
	return urlutil.ItemURL(a.Config.BaseURL, a.Config.ItemPath, target)
}

// Close shuts down the browser, the database and idle HTTP connections.
// Errors are logged and do not stop the remaining steps.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser session")
		}
		a.session = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing database")
		}
		a.db = nil
	}
	a.HTTPClient.CloseIdleConnections()

	a.Logger.Debug().Dur("uptime", time.Since(a.startTime)).Msg("Application shutdown complete")
	return nil
}
