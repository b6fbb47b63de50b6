package scraper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func TestLaunchFlags_ProxyFirst(t *testing.T) {
	fl := launchFlags(models.SessionConfig{Proxy: "http://10.0.0.1:3128"})
	if fl[0].name != "proxy-server" || fl[0].value != "http://10.0.0.1:3128" {
		t.Fatalf("first flag = %+v, want proxy-server", fl[0])
	}

	var sawUA, sawBlink bool
	for _, f := range fl {
		switch f.name {
		case "user-agent":
			sawUA = true
		case "disable-blink-features":
			sawBlink = f.value == "AutomationControlled"
		}
	}
	if !sawUA || !sawBlink {
		t.Errorf("missing anti-detection flags: ua=%v blink=%v", sawUA, sawBlink)
	}
}

func TestNewLauncher_CommandLine(t *testing.T) {
	m := NewSessionManager(config.BrowserConfig{NoSandbox: true}, config.ScraperConfig{}, nil)
	args := m.newLauncher(context.Background(), models.SessionConfig{Headless: true, Proxy: "http://10.0.0.1:3128"}).FormatArgs()

	for _, want := range []string{
		"--proxy-server=http://10.0.0.1:3128",
		"--disable-blink-features=AutomationControlled",
		"--no-sandbox",
		"--no-first-run",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("command line lacks %q: %v", want, args)
		}
	}
	for _, a := range args {
		if strings.HasPrefix(a, "--enable-automation") {
			t.Errorf("command line still has %q", a)
		}
	}
}

func TestChallengeSelectors(t *testing.T) {
	got := challengeSelectors([]string{"#captcha-form", `iframe[src*="recaptcha"]`, ""})
	want := append(slices.Clone(builtinChallenge), "#captcha-form")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selectors mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchFlags_NoProxy(t *testing.T) {
	for _, f := range launchFlags(models.SessionConfig{}) {
		if f.name == "proxy-server" {
			t.Fatal("proxy-server set without a proxy")
		}
	}
}

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"WWW.Google-Analytics.com", true},
		{"example.com", false},
		{"maps.google.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTrackerHost(tt.host); got != tt.want {
			t.Errorf("isTrackerHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), models.ErrCodeTimeout},
		{context.Canceled, models.ErrCodeTimeout},
		{errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		se := categorizeError(tt.err, "nav")
		if se.Code != tt.code {
			t.Errorf("categorizeError(%v).Code = %s, want %s", tt.err, se.Code, tt.code)
		}
		if !errors.Is(se, tt.err) {
			t.Errorf("categorizeError(%v) does not wrap the cause", tt.err)
		}
	}
}
