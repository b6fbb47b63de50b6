package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/models"
	"github.com/ysmood/gson"
)

// Page is a browser tab. It satisfies engine.Page and the drivers' page
// surface. Methods bind ctx to the underlying rod page per call.
type Page struct {
	page            *rod.Page
	router          *rod.HijackRouter
	navTimeout      time.Duration
	selectorTimeout time.Duration
	challenge       []string
}

// HasElement reports whether selector matches now, without waiting.
func (p *Page) HasElement(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

// Navigate loads rawURL and waits for the DOM to settle.
//
// WaitRequestIdle uses the Fetch domain, which conflicts with
// HijackRequests, so a stable DOM is the readiness signal.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	rp := p.page.Context(navCtx)
	if err := rp.Navigate(rawURL); err != nil {
		return categorizeError(err, "navigation to "+rawURL+" failed")
	}
	if err := rp.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return categorizeError(err, "page did not settle: "+rawURL)
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to read page HTML")
	}
	return html, nil
}

// URL returns the current location, or "" when it cannot be read.
func (p *Page) URL(ctx context.Context) string {
	return evalStringOrEmpty(p.page.Context(ctx), `() => window.location.href`)
}

// Eval runs a JS function and returns its result as a string.
func (p *Page) Eval(ctx context.Context, js string, args ...any) (string, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Screenshot resizes the viewport and writes a full-page PNG to path.
func (p *Page) Screenshot(ctx context.Context, width, height int, path string) error {
	rp := p.page.Context(ctx)
	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            width < 768,
	}); err != nil {
		return fmt.Errorf("set viewport %dx%d: %w", width, height, err)
	}
	_ = rp.WaitDOMStable(300*time.Millisecond, 0.1)

	img, err := rp.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return categorizeError(err, "screenshot failed")
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// Close stops request interception and closes the tab.
func (p *Page) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
		p.router = nil
	}
	return p.page.Close()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so status events
// and the API can tell timeouts from other navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
