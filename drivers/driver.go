// Package drivers implements the four scraping modes on top of the engine
// primitives. Every driver catches per-target failures itself: it reports
// them and moves on, so Run only returns fatal errors.
package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/enrich"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/models"
)

// Page is the browser tab surface the drivers use. *scraper.Page
// implements it.
type Page interface {
	engine.Page
	Navigate(ctx context.Context, rawURL string) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	ScrollElement(ctx context.Context, selector string) (bool, error)
	ScrollToBottom(ctx context.Context) error
	// URL is the current location after redirects, "" when unknown.
	URL(ctx context.Context) string
	AcceptConsent(ctx context.Context) bool
	Screenshot(ctx context.Context, width, height int, path string) error
	Eval(ctx context.Context, js string, args ...any) (string, error)
	Close() error
}

// Browser is one open session.
type Browser interface {
	// NewPage opens a tab; block enables resource blocking.
	NewPage(ctx context.Context, block bool) (Page, error)
	Close() error
}

// Launcher opens sessions.
type Launcher interface {
	Open(ctx context.Context, cfg models.SessionConfig) (Browser, error)
}

// HTTPGetter is the outbound HTTP surface. *fetch.Client implements it.
type HTTPGetter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
	Download(ctx context.Context, rawURL, path string) (int64, error)
}

// SiteEnricher adds contact data to maps listings.
type SiteEnricher interface {
	Enrich(ctx context.Context, website string) (enrich.SiteInfo, error)
}

// PerformanceAuditor scores a page 0-100.
type PerformanceAuditor interface {
	Score(ctx context.Context, pageURL string) (int, error)
}

// ArchiveLookup reports a domain's archive history.
type ArchiveLookup interface {
	Lookup(ctx context.Context, domain string) (enrich.ArchiveInfo, error)
}

// Options are the resolved per-batch settings.
type Options struct {
	Session       models.SessionConfig
	MaxRecords    int
	MaxIterations int
	Settle        time.Duration
	Enrich        bool
	Related       bool
	Performance   bool
	Archive       bool
	DownloadMedia bool
	Language      string
}

// Env is everything a driver run needs. Collaborators that an option does
// not request may be nil.
type Env struct {
	Token      *engine.Token
	Reporter   *engine.Reporter
	Checkpoint *engine.Checkpoint
	Launcher   Launcher
	HTTP       HTTPGetter
	Options    Options

	// OutputDir is the mode folder of the batch.
	OutputDir string

	// Collector, when set, receives every validated record as soon as its
	// target finishes, so the caller keeps them even if Run never returns.
	Collector *engine.Collector[models.Record]

	Sites     SiteEnricher
	PageSpeed PerformanceAuditor
	Archive   ArchiveLookup
	DNS       Resolver
	TLS       TLSProber
}

// Driver runs one mode over resolved targets.
type Driver interface {
	Mode() models.Mode
	Run(ctx context.Context, env *Env, targets []models.Target) ([]models.Record, error)
}

// New returns the driver for mode.
func New(mode models.Mode) (Driver, error) {
	switch mode {
	case models.ModeMaps:
		return &Maps{}, nil
	case models.ModeDNS:
		return &DNS{}, nil
	case models.ModeFAQ:
		return &FAQ{}, nil
	case models.ModeBackup:
		return &Backup{}, nil
	default:
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown mode %q", mode), nil)
	}
}

// targetFunc scrapes one target and returns its records. Records gathered
// before an error are still returned.
type targetFunc func(ctx context.Context, t models.Target) ([]models.Record, error)

// sequential runs fn over targets one at a time, stopping at the first
// target boundary after a stop request. Target errors are reported and
// skipped.
func sequential(ctx context.Context, env *Env, mode models.Mode, targets []models.Target, fn targetFunc) []models.Record {
	var out []models.Record
	for i, t := range targets {
		if env.Token.IsStopRequested() {
			env.Reporter.Statusf("stop requested, skipping %d remaining target(s)", len(targets)-i)
			break
		}
		if ctx.Err() != nil {
			break
		}
		env.Reporter.Statusf("[%d/%d] %s: %s", i+1, len(targets), mode, t.Value)

		recs, err := fn(ctx, t)
		recs = valid(env, recs)
		out = append(out, recs...)
		switch {
		case err == nil:
			env.Reporter.Statusf("%s: %d record(s) from %s", mode, len(recs), t.Value)
		case errors.Is(err, engine.ErrStopped):
		default:
			env.Reporter.Failure(fmt.Sprintf("%s target %q", mode, t.Value), err)
		}
	}
	return out
}

// valid drops records that fail validation, reporting each.
func valid(env *Env, recs []models.Record) []models.Record {
	out := recs[:0]
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			env.Reporter.Failure("record "+r.ID(), err)
			continue
		}
		out = append(out, r)
	}
	if env.Collector != nil {
		env.Collector.Add(out...)
	}
	return out
}

// withPage opens a session and a tab, runs fn, and releases both on every
// exit path.
func withPage(ctx context.Context, env *Env, block bool, fn func(Page) ([]models.Record, error)) ([]models.Record, error) {
	browser, err := env.Launcher.Open(ctx, env.Options.Session)
	if err != nil {
		return nil, err
	}
	defer browser.Close()

	page, err := browser.NewPage(ctx, block)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	return fn(page)
}

// open navigates, clears the consent wall and passes the CAPTCHA guard.
func open(ctx context.Context, env *Env, page Page, rawURL, scope string) error {
	if err := page.Navigate(ctx, rawURL); err != nil {
		return err
	}
	if env.Token.IsStopRequested() {
		return engine.ErrStopped
	}
	if page.AcceptConsent(ctx) {
		if err := env.Token.Sleep(ctx, env.Options.Settle); err != nil {
			return err
		}
	}
	return env.Checkpoint.Guard(ctx, page, scope)
}

// asRecords widens a typed slice to the Record interface.
func asRecords[R models.Record](in []R) []models.Record {
	out := make([]models.Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// loopConfig derives a LoopConfig from the batch options.
func loopConfig(opts Options, scope string) engine.LoopConfig {
	return engine.LoopConfig{
		MaxRecords:    opts.MaxRecords,
		MaxIterations: opts.MaxIterations,
		Settle:        opts.Settle,
		Scope:         scope,
	}
}
