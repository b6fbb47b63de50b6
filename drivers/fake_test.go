package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/models"
)

// fakeWeb is the scripted web a fakeLauncher serves.
type fakeWeb struct {
	// pages maps a URL to the HTML rendered after navigating to it.
	pages map[string]string
	// navErr fails navigation to a URL.
	navErr map[string]error
	// clicks maps a selector to the HTML shown after clicking it.
	clicks map[string]string
	// details maps a card aria-label to the detail panel appended to the
	// page after clicking that card.
	details map[string]string
	// scrolls replace the page body on successive feed scrolls.
	scrolls []string
	// finals maps a URL to the location reported after navigating to it.
	finals map[string]string
	// evalErr fails every Eval.
	evalErr error
}

type fakeLauncher struct {
	web *fakeWeb

	mu     sync.Mutex
	opened int
	closed int
	cfgs   []models.SessionConfig
	last   *fakePage
	// onClick is installed on every new page.
	onClick func(selector string)
}

func (l *fakeLauncher) Open(_ context.Context, cfg models.SessionConfig) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened++
	l.cfgs = append(l.cfgs, cfg)
	return &fakeBrowser{l: l}, nil
}

func (l *fakeLauncher) counts() (opened, closed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened, l.closed
}

type fakeBrowser struct {
	l    *fakeLauncher
	once sync.Once
}

func (b *fakeBrowser) NewPage(context.Context, bool) (Page, error) {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	p := &fakePage{web: b.l.web, onClick: b.l.onClick}
	b.l.last = p
	return p, nil
}

func (l *fakeLauncher) lastPage() *fakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (b *fakeBrowser) Close() error {
	b.once.Do(func() {
		b.l.mu.Lock()
		b.l.closed++
		b.l.mu.Unlock()
	})
	return nil
}

// fakePage renders scripted HTML and evaluates selectors against it. The
// document is base followed by the open detail panel.
type fakePage struct {
	web     *fakeWeb
	mu      sync.Mutex
	url     string
	base    string
	detail  string
	scrolls int
	bottom  int
	onClick func(selector string)
}

var cardLabel = regexp.MustCompile(`^a\.hfpxzc\[aria-label="(.*)"\]$`)

func (p *fakePage) current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base + p.detail
}

func (p *fakePage) setBase(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = html
}

func (p *fakePage) has(selector string) bool {
	doc, err := parseHTML(p.current())
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func (p *fakePage) HasElement(_ context.Context, selector string) (bool, error) {
	return p.has(selector), nil
}

func (p *fakePage) Navigate(_ context.Context, rawURL string) error {
	if err := p.web.navErr[rawURL]; err != nil {
		return err
	}
	html, ok := p.web.pages[rawURL]
	if !ok {
		return fmt.Errorf("no scripted page for %s", rawURL)
	}
	p.mu.Lock()
	p.url, p.base, p.detail = rawURL, html, ""
	p.mu.Unlock()
	return nil
}

func (p *fakePage) URL(context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if final, ok := p.web.finals[p.url]; ok {
		return final
	}
	return p.url
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bottom++
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.current(), nil }

func (p *fakePage) Click(_ context.Context, selector string) error {
	if !p.has(selector) {
		return fmt.Errorf("element %q not found", selector)
	}
	p.mu.Lock()
	if next, ok := p.web.clicks[selector]; ok {
		p.base, p.detail = next, ""
	}
	if m := cardLabel.FindStringSubmatch(selector); m != nil {
		p.detail = p.web.details[m[1]]
	}
	p.mu.Unlock()
	if p.onClick != nil {
		p.onClick(selector)
	}
	return nil
}

func (p *fakePage) WaitVisible(_ context.Context, selector string) error {
	if !p.has(selector) {
		return models.NewScrapeError(models.ErrCodeTimeout, "element did not appear", context.DeadlineExceeded)
	}
	return nil
}

func (p *fakePage) ScrollElement(_ context.Context, selector string) (bool, error) {
	if !p.has(selector) {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scrolls < len(p.web.scrolls) {
		p.base = p.web.scrolls[p.scrolls]
		p.scrolls++
	}
	return true, nil
}

func (p *fakePage) AcceptConsent(context.Context) bool { return false }

func (p *fakePage) Screenshot(_ context.Context, width, height int, path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("PNG %dx%d", width, height)), 0o644)
}

func (p *fakePage) Eval(context.Context, string, ...any) (string, error) {
	if p.web.evalErr != nil {
		return "", p.web.evalErr
	}
	return "200", nil
}

func (p *fakePage) Close() error { return nil }

// fakeHTTP serves scripted responses.
type fakeHTTP struct {
	mu        sync.Mutex
	responses map[string]*fetch.Response
	downloads []string
	// failDownloads fails downloads of these URLs.
	failDownloads map[string]error
}

func (h *fakeHTTP) Get(_ context.Context, rawURL string) (*fetch.Response, error) {
	if r, ok := h.responses[rawURL]; ok {
		return r, nil
	}
	return nil, errors.New("connection refused")
}

func (h *fakeHTTP) Download(_ context.Context, rawURL, path string) (int64, error) {
	h.mu.Lock()
	h.downloads = append(h.downloads, rawURL)
	h.mu.Unlock()
	if err := h.failDownloads[rawURL]; err != nil {
		return 0, err
	}
	return 4, os.WriteFile(path, []byte("DATA"), 0o644)
}

func htmlResponse(finalURL, body string, header http.Header) *fetch.Response {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return &fetch.Response{StatusCode: 200, Header: header, Body: []byte(body), FinalURL: finalURL}
}

// testEnv wires an Env around launcher with instant settles and a quick
// CAPTCHA check.
func testEnv(t *testing.T, l Launcher) (*Env, *eventLog) {
	t.Helper()
	tok := engine.NewToken()
	rep := engine.NewReporter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ch, cancel := rep.Subscribe(1024)
	log := &eventLog{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			log.add(ev)
		}
	}()
	t.Cleanup(func() { cancel(); <-done })

	cp := engine.NewCheckpoint(engine.CheckpointConfig{
		Markers:      []string{"#captcha-form"},
		PollTimeout:  time.Millisecond,
		PollInterval: time.Millisecond,
	}, tok, rep)

	return &Env{
		Token:      tok,
		Reporter:   rep,
		Checkpoint: cp,
		Launcher:   l,
		OutputDir:  t.TempDir(),
		Options:    Options{MaxIterations: 20},
	}, log
}

type eventLog struct {
	mu     sync.Mutex
	events []engine.Event
}

func (l *eventLog) add(ev engine.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// matching returns the messages containing substr.
func (l *eventLog) matching(substr string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		if strings.Contains(ev.Message, substr) {
			out = append(out, ev.Message)
		}
	}
	return out
}

// waitMatching polls until substr was seen n times.
func (l *eventLog) waitMatching(t *testing.T, substr string, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := l.matching(substr); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d event(s) containing %q; have %v", n, substr, l.matching(""))
	return nil
}
