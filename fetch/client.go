// Package fetch performs the engine's outbound HTTP: sitemap downloads,
// website enrichment crawls, DNS-mode HTTP probes and media downloads. It
// presents a Chrome TLS fingerprint so plain requests look like the browser
// sessions the drivers run.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// UserAgent is the spoofed Chrome user agent shared with browser sessions.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// http.Transport cannot speak h2 over a utls conn, so never offer it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// Options configures a Client.
type Options struct {
	// Proxy is an http(s) proxy URL applied to every request.
	Proxy string

	// Timeout bounds a whole request including the body read.
	Timeout time.Duration // default: 15s

	// RatePerSecond and Burst throttle outbound requests. 0 disables throttling.
	RatePerSecond float64
	Burst         int

	// MaxBody caps how many bytes of a response Get reads.
	MaxBody int64 // default: 10 MB

	// MaxDownload caps a single Download. DownloadTimeout bounds it.
	MaxDownload     int64         // default: 500 MB
	DownloadTimeout time.Duration // default: 5m
}

// ErrTooLarge is returned when a body exceeds the configured cap.
var ErrTooLarge = errors.New("fetch: response body too large")

// Client is safe for concurrent use.
type Client struct {
	http        *http.Client
	download    *http.Client
	limiter     *rate.Limiter
	maxBody     int64
	maxDownload int64
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 10 << 20
	}
	if opts.MaxDownload <= 0 {
		opts.MaxDownload = 500 << 20
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 5 * time.Minute
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChrome(ctx, network, addr)
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}
	c := &Client{
		http: &http.Client{
			Transport:     transport,
			Timeout:       opts.Timeout,
			CheckRedirect: checkRedirect,
		},
		download: &http.Client{
			Transport:     transport,
			Timeout:       opts.DownloadTimeout,
			CheckRedirect: checkRedirect,
		},
		maxBody:     opts.MaxBody,
		maxDownload: opts.MaxDownload,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

// Get performs a browser-like GET and reads the body. HTTP error statuses are
// not errors here; callers inspect StatusCode. A body larger than MaxBody is
// an ErrTooLarge error.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.do(ctx, c.http, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, c.maxBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// do sends the GET after waiting for the rate limiter. The caller closes
// the body.
func (c *Client) do(ctx context.Context, hc *http.Client, rawURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", rawURL, err)
	}
	return resp, nil
}

// Body fetches rawURL and returns its body, failing on HTTP error statuses.
func (c *Client) Body(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch: HTTP %d for %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// Download streams rawURL's body to path and returns the number of bytes
// written. On any failure, including a body over MaxDownload, the partial
// file is removed.
func (c *Client) Download(ctx context.Context, rawURL, path string) (n int64, err error) {
	resp, err := c.do(ctx, c.download, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("fetch: HTTP %d for %s", resp.StatusCode, rawURL)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("fetch: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("fetch: write %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
			n = 0
		}
	}()

	n, err = io.Copy(f, io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return n, fmt.Errorf("fetch: download %s: %w", rawURL, err)
	}
	if n > c.maxDownload {
		return n, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, c.maxDownload)
	}
	return n, nil
}

// IsHTML reports whether a Content-Type header looks like HTML.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// Title extracts the first <title> text from raw HTML bytes.
func Title(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// dialChrome establishes a TLS connection using the Chrome fingerprint.
func dialChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
