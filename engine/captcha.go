package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/use-agent/harvest/metrics"
)

// Page is the part of a browser page the engine core needs. The rod-backed
// implementation lives in package scraper.
type Page interface {
	// HasElement reports whether selector currently matches anything. It
	// must return promptly and never wait for the element to appear.
	HasElement(ctx context.Context, selector string) (bool, error)
}

// CaptchaState is a detected anti-bot challenge. Page stays open while the
// state is pending so the same navigation context (cookies, storage) is used
// after the user clears the challenge.
type CaptchaState struct {
	Detected bool
	Page     Page
	Marker   string
	Scope    string
	Since    time.Time
}

// CheckpointConfig tunes challenge detection.
type CheckpointConfig struct {
	// Markers are CSS selectors of known challenge containers.
	Markers []string

	// PollTimeout bounds how long Check keeps looking after a navigation.
	PollTimeout time.Duration

	// PollInterval is the pause between marker sweeps.
	PollInterval time.Duration
}

// DefaultCaptchaMarkers covers reCAPTCHA, hCaptcha, Cloudflare and Google's
// "unusual traffic" interstitial.
var DefaultCaptchaMarkers = []string{
	`iframe[src*="recaptcha"]`,
	`div.g-recaptcha`,
	`#captcha-form`,
	`form[action*="sorry"]`,
	`iframe[src*="hcaptcha"]`,
	`#challenge-form`,
	`iframe[src*="challenges.cloudflare.com"]`,
}

// Checkpoint suspends a run while a challenge is on screen and resumes it on
// an explicit external confirmation.
type Checkpoint struct {
	cfg      CheckpointConfig
	token    *Token
	reporter *Reporter

	// suspend serialises suspensions: at most one pending challenge.
	suspend sync.Mutex

	mu      sync.Mutex
	pending *CaptchaState
	resume  chan struct{}
}

// NewCheckpoint creates a Checkpoint bound to a batch's token and reporter.
func NewCheckpoint(cfg CheckpointConfig, token *Token, reporter *Reporter) *Checkpoint {
	if len(cfg.Markers) == 0 {
		cfg.Markers = DefaultCaptchaMarkers
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 3 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Checkpoint{
		cfg:      cfg,
		token:    token,
		reporter: reporter,
		resume:   make(chan struct{}, 1),
	}
}

// Check sweeps the markers until one matches or PollTimeout elapses.
func (c *Checkpoint) Check(ctx context.Context, page Page) CaptchaState {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	for {
		for _, marker := range c.cfg.Markers {
			found, err := page.HasElement(ctx, marker)
			if err == nil && found {
				return CaptchaState{Detected: true, Page: page, Marker: marker, Since: time.Now()}
			}
		}
		if !time.Now().Before(deadline) {
			return CaptchaState{Page: page}
		}
		if err := c.token.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return CaptchaState{Page: page}
		}
	}
}

// Guard runs after a navigation. It returns nil once no challenge is
// present, suspending for as many confirm/re-check rounds as it takes.
// It returns ErrStopped or the context error if the run is abandoned while
// suspended. The page is never closed or re-navigated here.
func (c *Checkpoint) Guard(ctx context.Context, page Page, scope string) error {
	for {
		st := c.Check(ctx, page)
		if c.token.IsStopRequested() {
			return ErrStopped
		}
		if !st.Detected {
			return nil
		}
		st.Scope = scope

		metrics.Captchas.Inc()
		c.reporter.UserActionRequired(fmt.Sprintf(
			"CAPTCHA detected while scraping %s (%s). Solve it in the browser window, then confirm to continue.",
			scope, st.Marker))
		c.reporter.Statusf("paused: waiting for CAPTCHA confirmation on %s", scope)

		if err := c.await(ctx, st); err != nil {
			return err
		}
		c.reporter.Statusf("CAPTCHA confirmed, re-checking %s on the same page", scope)
	}
}

func (c *Checkpoint) await(ctx context.Context, st CaptchaState) error {
	c.suspend.Lock()
	defer c.suspend.Unlock()

	c.mu.Lock()
	select {
	case <-c.resume: // drop a confirmation nobody was waiting for
	default:
	}
	c.pending = &st
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	select {
	case <-c.resume:
		return nil
	case <-c.token.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume is the confirmCaptchaResolved entry point. It reports whether a
// suspended run was waiting.
func (c *Checkpoint) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	select {
	case c.resume <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the parked challenge, if any.
func (c *Checkpoint) Pending() (CaptchaState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return CaptchaState{}, false
	}
	return *c.pending, true
}
