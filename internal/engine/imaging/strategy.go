package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/law-makers/cartelera/internal/engine/dom"
	"github.com/law-makers/cartelera/internal/identity"
	"github.com/law-makers/cartelera/internal/retry"
	urlutil "github.com/law-makers/cartelera/internal/utils/url"
)

var errNotApplicable = errors.New("strategy not applicable")

// strategy is one way of obtaining poster bytes. acquire returns the bytes
// and the file extension they should be stored under.
type strategy interface {
	name() string
	acquire(ctx context.Context, a *Acquirer, src Source) ([]byte, string, error)
}

// directFetch downloads the poster URL with a rotated identity
type directFetch struct{}

func (directFetch) name() string { return "direct" }

func (directFetch) acquire(ctx context.Context, a *Acquirer, src Source) ([]byte, string, error) {
	if src.URL == "" {
		return nil, "", errNotApplicable
	}
	if strings.HasPrefix(src.URL, "data:") {
		return decodeDataURL(src.URL)
	}

	target := urlutil.UpgradeWidth(src.URL, a.opts.PosterWidth)
	if a.opts.Pacer != nil {
		a.opts.Pacer.Delay(ctx, a.opts.MinDelay, a.opts.MaxDelay)
	}

	var data []byte
	err := retry.WithRetry(ctx, a.opts.Retry, func() error {
		if a.opts.Limiter != nil {
			if err := a.opts.Limiter.Wait(ctx, target); err != nil {
				return retry.Permanent(err)
			}
		}
		id := a.opts.Identities.Next()
		body, err := a.fetch(ctx, target, id)
		if err != nil {
			var httpErr retry.HTTPError
			if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusForbidden || httpErr.StatusCode == http.StatusTooManyRequests) {
				a.opts.Identities.MarkBlocked(id)
			}
			return err
		}
		a.opts.Identities.MarkHealthy(id)
		data = body
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, extFor(src.URL), nil
}

func (a *Acquirer) fetch(ctx context.Context, target string, id identity.Identity) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	for k, v := range id.Headers() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Del("Sec-Fetch-User")
	req.Header.Del("Upgrade-Insecure-Requests")

	resp, err := a.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpErr := retry.NewHTTPError(resp.StatusCode, resp.Status, target)
		httpErr.RetryAfter = retry.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, httpErr
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		return nil, retry.Permanent(fmt.Errorf("unexpected content type %q", ct))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > a.opts.MaxBytes {
		return nil, retry.Permanent(fmt.Errorf("image larger than %d bytes", a.opts.MaxBytes))
	}
	if len(body) == 0 {
		return nil, retry.Permanent(errors.New("empty response body"))
	}
	return body, nil
}

// canvasCapture draws the live element onto a canvas in the page
type canvasCapture struct{}

func (canvasCapture) name() string { return "canvas" }

func (canvasCapture) acquire(ctx context.Context, _ *Acquirer, src Source) ([]byte, string, error) {
	if src.Live == nil {
		return nil, "", errNotApplicable
	}
	var dataURL string
	err := src.Live.WithElement(ctx, func(ctx context.Context, el dom.Element, r Renderer) error {
		var err error
		dataURL, err = r.CanvasDataURL(ctx, el)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return decodeDataURL(dataURL)
}

// regionCapture screenshots the element's on-screen region
type regionCapture struct{}

func (regionCapture) name() string { return "region" }

func (regionCapture) acquire(ctx context.Context, _ *Acquirer, src Source) ([]byte, string, error) {
	if src.Live == nil {
		return nil, "", errNotApplicable
	}
	var data []byte
	err := src.Live.WithElement(ctx, func(ctx context.Context, el dom.Element, r Renderer) error {
		var err error
		data, err = r.CaptureRegion(ctx, el)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty screenshot")
	}
	// chromedp screenshots are PNG
	return data, ".png", nil
}

// decodeDataURL decodes an inline data:image payload
func decodeDataURL(s string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasPrefix(s, "data:") {
		return nil, "", errors.New("malformed data URL")
	}
	mediaType, params, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("data URL is not an image: %q", mediaType)
	}

	var data []byte
	var err error
	if strings.Contains(params, "base64") {
		data, err = base64.StdEncoding.DecodeString(payload)
	} else {
		var unescaped string
		unescaped, err = url.PathUnescape(payload)
		data = []byte(unescaped)
	}
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty data URL")
	}

	ext := "." + strings.TrimPrefix(mediaType, "image/")
	if ext == ".jpeg" {
		ext = DefaultExt
	}
	if !knownExts[ext] {
		ext = DefaultExt
	}
	return data, ext, nil
}
