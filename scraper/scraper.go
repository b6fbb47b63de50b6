// Package scraper launches and drives the browser sessions the mode drivers
// scrape with.
package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/metrics"
	"github.com/use-agent/harvest/models"
)

// launchFlag is one Chromium command-line switch. An empty value means a
// bare switch.
type launchFlag struct {
	name  string
	value string
}

// launchFlags returns the session's switches, proxy first. Rod sorts all
// switches when it formats the command line, and Chromium does not depend
// on their order, so the order here only matters for readability.
func launchFlags(sc models.SessionConfig) []launchFlag {
	var fl []launchFlag
	if sc.Proxy != "" {
		fl = append(fl, launchFlag{"proxy-server", sc.Proxy})
	}
	fl = append(fl,
		launchFlag{"user-agent", fetch.UserAgent},
		launchFlag{"disable-blink-features", "AutomationControlled"},
		launchFlag{"disable-features", "AudioServiceOutOfProcess,TranslateUI"},
		launchFlag{"disable-ipc-flooding-protection", ""},
		launchFlag{"disable-popup-blocking", ""},
		launchFlag{"disable-renderer-backgrounding", ""},
		launchFlag{"disable-background-timer-throttling", ""},
		launchFlag{"disable-backgrounding-occluded-windows", ""},
		launchFlag{"disable-component-update", ""},
		launchFlag{"disable-default-apps", ""},
		launchFlag{"disable-dev-shm-usage", ""},
		launchFlag{"disable-extensions", ""},
		launchFlag{"no-first-run", ""},
		launchFlag{"lang", "en-US"},
		launchFlag{"window-size", "1920,1080"},
	)
	return fl
}

// SessionManager opens browser sessions configured from BrowserConfig.
// It is safe for concurrent use.
type SessionManager struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	// challenge lists selectors the overlay stripper must leave in place.
	challenge []string
}

// NewSessionManager creates a SessionManager. captchaMarkers are kept out
// of overlay removal so a challenge survives until it is detected.
func NewSessionManager(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, captchaMarkers []string) *SessionManager {
	return &SessionManager{
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		challenge:  challengeSelectors(captchaMarkers),
	}
}

// Session is one launched browser. Close is idempotent and safe to call from
// any goroutine.
type Session struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	challenge  []string
	closeOnce  sync.Once
}

// Open launches a browser for one target. A launch failure is a
// BROWSER_LAUNCH ScrapeError scoped to that target.
func (m *SessionManager) Open(ctx context.Context, sc models.SessionConfig) (*Session, error) {
	l := m.newLauncher(ctx, sc)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL, "headless", sc.Headless, "proxy", sc.Proxy != "")

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to connect to browser", err)
	}
	metrics.Sessions.Inc()

	return &Session{
		browser:    browser,
		launcher:   l,
		browserCfg: m.browserCfg,
		scraperCfg: m.scraperCfg,
		challenge:  m.challenge,
	}, nil
}

// newLauncher configures, but does not start, the browser process.
func (m *SessionManager) newLauncher(ctx context.Context, sc models.SessionConfig) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(sc.Headless).
		NoSandbox(m.browserCfg.NoSandbox)

	if m.browserCfg.BrowserBin != "" {
		l = l.Bin(m.browserCfg.BrowserBin)
	}

	for _, f := range launchFlags(sc) {
		if f.value == "" {
			l.Set(flags.Flag(f.name))
		} else {
			l.Set(flags.Flag(f.name), f.value)
		}
	}
	l.Delete(flags.Flag("enable-automation"))
	return l
}

// NewPage opens a tab with stealth patches, the spoofed user agent, an
// English Accept-Language header and a desktop viewport. Resource blocking
// is installed when block is true.
func (s *Session) NewPage(ctx context.Context, block bool) (*Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to open tab", err)
	}

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}
	_ = proto.NetworkSetUserAgentOverride{
		UserAgent:      fetch.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}.Call(page)
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1920, Height: 1080, DeviceScaleFactor: 1,
	})

	p := &Page{
		page:            page,
		navTimeout:      s.scraperCfg.NavigationTimeout,
		selectorTimeout: s.scraperCfg.SelectorTimeout,
		challenge:       s.challenge,
	}
	if block {
		p.router = setupHijack(page, s.browserCfg.BlockedResourceTypes, s.browserCfg.BlockAds)
	}
	return p, nil
}

// Close kills the browser process. Only the first call has an effect.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		metrics.Sessions.Dec()
		done := make(chan error, 1)
		go func() { done <- s.browser.Close() }()
		select {
		case err = <-done:
		case <-time.After(5 * time.Second):
			slog.Warn("browser close timed out, killing process")
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return err
}
