// Package batch owns the lifecycle of one scraping batch at a time: it
// resolves targets, runs the mode driver, deduplicates, persists and
// reports, and is the outermost catch for everything below it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/drivers"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
	"github.com/use-agent/harvest/targets"
)

// Batch states as reported by Current.
const (
	StateIdle           = "idle"
	StateRunning        = "running"
	StateWaitingCaptcha = "waiting_captcha"
	StateCompleted      = "completed"
	StateInterrupted    = "interrupted"
	StateFailed         = "failed"
)

// HTTP is the outbound client surface: page probes, downloads and sitemap
// fetches. *fetch.Client implements it.
type HTTP interface {
	drivers.HTTPGetter
	targets.Fetcher
}

// Deps are the collaborators of a Controller. Optional ones may be nil;
// options that need a missing collaborator are rejected at Start.
type Deps struct {
	Launcher  drivers.Launcher
	HTTP      HTTP
	Sites     drivers.SiteEnricher
	PageSpeed drivers.PerformanceAuditor
	Archive   drivers.ArchiveLookup
	DNS       drivers.Resolver
	TLS       drivers.TLSProber

	// NewDriver picks the driver for a mode. Defaults to drivers.New.
	NewDriver func(models.Mode) (drivers.Driver, error)

	// Notify, when set, receives the final snapshot of every batch.
	Notify func(models.BatchStatusResponse)
}

// Controller runs at most one batch at a time.
type Controller struct {
	cfg        *config.Config
	deps       Deps
	token      *engine.Token
	reporter   *engine.Reporter
	checkpoint *engine.Checkpoint
	resolver   *targets.Resolver

	mu      sync.Mutex
	current *run
}

// run is the state of one batch.
type run struct {
	id        string
	mode      models.Mode
	state     string
	targets   int
	collector *engine.Collector[models.Record]
	report    *models.ScrapeReport
	done      chan struct{}
}

// plan is a validated StartRequest.
type plan struct {
	req       models.StartRequest
	mode      models.Mode
	input     targets.Input
	persister *store.Persister
	driver    drivers.Driver
	options   drivers.Options
}

// New creates a Controller. The configured CAPTCHA markers must all be
// valid CSS selectors.
func New(cfg *config.Config, reporter *engine.Reporter, deps Deps) (*Controller, error) {
	if err := cleaner.ValidateSelectors(cfg.Captcha.Markers); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid captcha marker", err)
	}
	if reporter == nil {
		reporter = engine.NewReporter(nil)
	}
	if deps.NewDriver == nil {
		deps.NewDriver = drivers.New
	}

	token := engine.NewToken()
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		token:    token,
		reporter: reporter,
		checkpoint: engine.NewCheckpoint(engine.CheckpointConfig{
			Markers:      cfg.Captcha.Markers,
			PollTimeout:  cfg.Captcha.PollTimeout,
			PollInterval: cfg.Captcha.PollInterval,
		}, token, reporter),
		resolver: targets.NewResolver(deps.HTTP),
	}, nil
}

// Reporter returns the event source of this controller.
func (c *Controller) Reporter() *engine.Reporter { return c.reporter }

// Start validates req and runs the batch in the background. It returns the
// batch id, or an error when a batch is already running or req is invalid.
// A rejected request produces exactly one status event.
func (c *Controller) Start(ctx context.Context, req models.StartRequest) (string, error) {
	r, p, err := c.begin(req)
	if err != nil {
		return "", err
	}
	go c.execute(context.WithoutCancel(ctx), r, p)
	return r.id, nil
}

// Run executes a batch synchronously and returns its finalized report.
func (c *Controller) Run(ctx context.Context, req models.StartRequest) (*models.ScrapeReport, error) {
	r, p, err := c.begin(req)
	if err != nil {
		return nil, err
	}
	c.execute(ctx, r, p)
	return r.report, nil
}

// Stop requests cooperative cancellation of the running batch. It reports
// whether a batch was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.finished() {
		return false
	}
	c.token.RequestStop()
	c.reporter.Status("stop requested, finishing the current step")
	return true
}

// ConfirmCaptchaResolved resumes a run suspended on a CAPTCHA. It reports
// whether a run was waiting.
func (c *Controller) ConfirmCaptchaResolved() bool {
	return c.checkpoint.Resume()
}

// Wait blocks until the current batch, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Running reports whether a batch is in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.finished()
}

// Current returns a snapshot of the current or last batch.
func (c *Controller) Current() models.BatchStatusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.current
	if r == nil {
		return models.BatchStatusResponse{State: StateIdle}
	}

	_, pending := c.checkpoint.Pending()
	s := models.BatchStatusResponse{
		BatchID:        r.id,
		Mode:           r.mode,
		State:          r.state,
		Targets:        r.targets,
		Records:        r.collector.Len(),
		StartedAt:      r.report.StartedAt,
		CaptchaPending: pending,
	}
	if r.state == StateRunning {
		s.Errors = c.reporter.Failures()
		if pending {
			s.State = StateWaitingCaptcha
		}
		return s
	}
	s.Records = len(r.report.Records)
	s.Duplicates = r.report.Duplicates
	s.Errors = r.report.Errors
	s.OutputPath = r.report.OutputPath
	s.FinishedAt = r.report.FinishedAt
	return s
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// begin validates req, claims the controller and resets the shared token
// and log view. Everything a batch emits comes after this.
func (c *Controller) begin(req models.StartRequest) (*run, plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.finished() {
		err := models.NewScrapeError(models.ErrCodeBatchRunning, "a batch is already running", nil)
		c.reporter.Failure("start batch", err)
		return nil, plan{}, err
	}
	p, err := c.validate(req)
	if err != nil {
		c.reporter.Failure("start batch", err)
		return nil, plan{}, err
	}

	c.token.Reset()
	c.reporter.ResetLogs()

	r := &run{
		id:        uuid.NewString(),
		mode:      p.mode,
		state:     StateRunning,
		collector: engine.NewCollector[models.Record](),
		done:      make(chan struct{}),
	}
	r.report = models.NewScrapeReport(r.id, p.mode)
	c.current = r
	return r, p, nil
}

func (c *Controller) validate(req models.StartRequest) (plan, error) {
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		return plan{}, err
	}
	p := plan{req: req, mode: mode, input: targets.DefaultInput(mode)}
	switch in := targets.Input(req.Input); in {
	case "":
	case targets.InputQuery, targets.InputDomain, targets.InputURLs, targets.InputSitemap:
		p.input = in
	default:
		return plan{}, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown input type %q", req.Input), nil)
	}
	if len(targets.Split(req.Targets)) == 0 {
		return plan{}, models.NewScrapeError(models.ErrCodeInvalidInput, "no targets given", nil)
	}
	if p.input == targets.InputSitemap && c.deps.HTTP == nil {
		return plan{}, models.NewScrapeError(models.ErrCodeInvalidInput, "sitemap input needs an http client", nil)
	}

	format := c.cfg.Output.Format
	if req.Options.OutputFormat != "" {
		format = req.Options.OutputFormat
	}
	if p.persister, err = store.New(c.cfg.Output.BaseDir, format); err != nil {
		return plan{}, err
	}
	if p.driver, err = c.deps.NewDriver(mode); err != nil {
		return plan{}, err
	}
	if d, ok := p.driver.(*drivers.DNS); ok && d.Concurrency == 0 {
		d.Concurrency = c.cfg.DNS.Concurrency
	}

	o := req.Options
	if o.Performance && c.deps.PageSpeed == nil {
		return plan{}, models.NewScrapeError(models.ErrCodeMissingCredential,
			"performance audits require HARVEST_PAGESPEED_KEY", nil)
	}
	if mode != models.ModeDNS && c.deps.Launcher == nil {
		return plan{}, models.NewScrapeError(models.ErrCodeInvalidInput, "no browser launcher configured", nil)
	}

	sc := models.SessionConfig{Headless: c.cfg.Browser.Headless, Proxy: c.cfg.Browser.Proxy}
	if o.Headless != nil {
		sc.Headless = *o.Headless
	}
	if o.Proxy != "" {
		sc.Proxy = o.Proxy
	}
	maxRecords := c.cfg.Scraper.MaxRecords
	if o.MaxRecords > 0 {
		maxRecords = o.MaxRecords
	}
	p.options = drivers.Options{
		Session:       sc,
		MaxRecords:    maxRecords,
		MaxIterations: c.cfg.Scraper.MaxIterations,
		Settle:        c.cfg.Scraper.Settle,
		Enrich:        o.Enrich,
		Related:       o.Related,
		Performance:   o.Performance,
		Archive:       o.Archive,
		DownloadMedia: o.DownloadMedia,
		Language:      o.Language,
	}
	return p, nil
}

// execute is the batch body: resolve, drive, dedup, persist, report. The
// report is persisted on every path, including a driver panic.
func (c *Controller) execute(ctx context.Context, r *run, p plan) {
	defer close(r.done)
	log := slog.With("batch", r.id, "mode", r.mode)
	log.Info("batch started", "targets", p.req.Targets)
	c.reporter.Statusf("batch started: mode %s", r.mode)

	fatal := c.drive(ctx, r, p)

	records, removed := engine.Dedup(r.collector.Records())
	interrupted := c.token.IsStopRequested() || ctx.Err() != nil
	r.report.Finalize(records, removed, interrupted)
	if removed > 0 {
		c.reporter.Statusf("removed %d duplicate record(s)", removed)
	}

	state := StateCompleted
	switch {
	case fatal != nil:
		state = StateFailed
	case interrupted:
		state = StateInterrupted
	}

	// Results are saved even when the run's context was cancelled.
	if _, err := p.persister.Persist(context.WithoutCancel(ctx), r.report); err != nil {
		c.reporter.Failure("save results", err)
		state = StateFailed
	}
	r.report.Errors = c.reporter.Failures()

	c.mu.Lock()
	r.state = state
	c.mu.Unlock()

	metrics.Batches.WithLabelValues(string(r.mode), state).Inc()
	metrics.Records.WithLabelValues(string(r.mode)).Add(float64(len(records)))
	metrics.Duplicates.Add(float64(removed))

	elapsed := r.report.FinishedAt.Sub(r.report.StartedAt).Round(time.Second)
	if r.report.OutputPath != "" {
		c.reporter.Statusf("batch %s: %d record(s) saved to %s in %s", state, len(records), r.report.OutputPath, elapsed)
	} else {
		c.reporter.Statusf("batch %s: %d record(s), nothing saved", state, len(records))
	}
	log.Info("batch finished", "state", state, "records", len(records),
		"duplicates", removed, "errors", r.report.Errors, "output", r.report.OutputPath)

	if c.deps.Notify != nil {
		c.deps.Notify(c.Current())
	}
}

// drive resolves targets and runs the driver. It returns the error that
// made the batch fail, if any; per-target problems are reported by the
// driver and never returned.
func (c *Controller) drive(ctx context.Context, r *run, p plan) (fatal error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("batch panic", "batch", r.id, "panic", v, "stack", string(debug.Stack()))
			fatal = models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("panic: %v", v), nil)
			c.reporter.Failure("batch", fatal)
		}
	}()

	tgts, err := c.resolver.Resolve(ctx, p.req.Targets, p.input)
	if err != nil {
		c.reporter.Failure("resolve targets", err)
		if len(tgts) == 0 {
			return err
		}
	}
	c.mu.Lock()
	r.targets = len(tgts)
	c.mu.Unlock()
	c.reporter.Statusf("resolved %d target(s)", len(tgts))

	env := &drivers.Env{
		Token:      c.token,
		Reporter:   c.reporter,
		Checkpoint: c.checkpoint,
		Launcher:   c.deps.Launcher,
		HTTP:       c.deps.HTTP,
		Options:    p.options,
		OutputDir:  p.persister.ModeDir(p.mode),
		Collector:  r.collector,
		PageSpeed:  c.deps.PageSpeed,
		Archive:    c.deps.Archive,
		DNS:        c.deps.DNS,
		TLS:        c.deps.TLS,
	}
	if p.options.Enrich {
		env.Sites = c.deps.Sites
	}

	if _, err := p.driver.Run(ctx, env, tgts); err != nil && !errors.Is(err, engine.ErrStopped) {
		c.reporter.Failure(string(p.mode)+" driver", err)
		return err
	}
	return nil
}
