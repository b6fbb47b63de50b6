// Package targets turns raw user input into the ordered list of targets a
// batch works through.
package targets

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/harvest/models"
)

// Input says how the raw target string is interpreted.
type Input string

const (
	InputQuery   Input = "query"
	InputDomain  Input = "domain"
	InputURLs    Input = "urls"
	InputSitemap Input = "sitemap"
)

// DefaultInput is the interpretation a mode uses when the caller gives none.
func DefaultInput(mode models.Mode) Input {
	switch mode {
	case models.ModeDNS:
		return InputDomain
	case models.ModeBackup:
		return InputSitemap
	default:
		return InputQuery
	}
}

// Fetcher downloads a sitemap document.
type Fetcher interface {
	Body(ctx context.Context, rawURL string) ([]byte, error)
}

// maxSitemapDepth bounds index → index recursion.
const maxSitemapDepth = 5

// Resolver expands raw input into targets.
type Resolver struct {
	fetcher Fetcher
}

// NewResolver creates a Resolver. fetcher may be nil when sitemap input is
// never used.
func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Split breaks a comma-separated list into trimmed, non-empty entries,
// preserving order and duplicates.
func Split(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve interprets raw according to in. For sitemap input a single entry
// ending in .xml is expanded recursively; any other sitemap input is a flat
// URL list.
//
// A sitemap that fails to download or parse yields a *models.ResolutionError
// (joined when there are several); targets resolved from sibling sitemaps
// are still returned alongside it.
func (r *Resolver) Resolve(ctx context.Context, raw string, in Input) ([]models.Target, error) {
	entries := Split(raw)
	if len(entries) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no targets given", nil)
	}

	switch in {
	case InputQuery:
		return wrap(entries, models.KindQuery, identity), nil
	case InputDomain:
		return wrap(entries, models.KindDomain, NormalizeDomain), nil
	case InputURLs:
		return wrap(entries, models.KindURL, identity), nil
	case InputSitemap:
		if len(entries) == 1 && IsSitemapURL(entries[0]) {
			return r.expandRoot(ctx, entries[0])
		}
		return wrap(entries, models.KindURL, identity), nil
	default:
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown input type %q", in), nil)
	}
}

// IsSitemapURL reports whether s names an XML sitemap (query and fragment ignored).
func IsSitemapURL(s string) bool {
	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(p)
	return strings.HasSuffix(p, ".xml") || strings.HasSuffix(p, ".xml.gz")
}

// NormalizeDomain reduces a URL or host to a lowercase bare hostname.
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func identity(s string) string { return s }

func wrap(entries []string, kind models.TargetKind, norm func(string) string) []models.Target {
	out := make([]models.Target, len(entries))
	for i, e := range entries {
		out[i] = models.Target{Kind: kind, Value: norm(e)}
	}
	return out
}

func (r *Resolver) expandRoot(ctx context.Context, sitemapURL string) ([]models.Target, error) {
	if r.fetcher == nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "sitemap input without a fetcher", nil)
	}
	var (
		out  []models.Target
		errs []error
	)
	r.expand(ctx, sitemapURL, 0, make(map[string]struct{}), &out, &errs)
	slog.Debug("sitemap expanded", "sitemap", sitemapURL, "targets", len(out), "errors", len(errs))
	return out, errors.Join(errs...)
}

// sitemapDoc covers both <sitemapindex> and <urlset> roots.
type sitemapDoc struct {
	XMLName  xml.Name
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Loc string `xml:"loc"`
}

func (r *Resolver) expand(ctx context.Context, sitemapURL string, depth int, visited map[string]struct{}, out *[]models.Target, errs *[]error) {
	if _, ok := visited[sitemapURL]; ok {
		return
	}
	visited[sitemapURL] = struct{}{}

	if depth > maxSitemapDepth {
		*errs = append(*errs, &models.ResolutionError{Sitemap: sitemapURL, Err: errors.New("sitemap nesting too deep")})
		return
	}
	if err := ctx.Err(); err != nil {
		*errs = append(*errs, &models.ResolutionError{Sitemap: sitemapURL, Err: err})
		return
	}

	body, err := r.fetcher.Body(ctx, sitemapURL)
	if err != nil {
		*errs = append(*errs, &models.ResolutionError{Sitemap: sitemapURL, Err: err})
		return
	}
	body, err = gunzipIfNeeded(body)
	if err != nil {
		*errs = append(*errs, &models.ResolutionError{Sitemap: sitemapURL, Err: err})
		return
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		*errs = append(*errs, &models.ResolutionError{Sitemap: sitemapURL, Err: fmt.Errorf("parse: %w", err)})
		return
	}

	switch doc.XMLName.Local {
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				r.expand(ctx, loc, depth+1, visited, out, errs)
			}
		}
	case "urlset":
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				*out = append(*out, models.Target{
					Kind:          models.KindSitemapEntry,
					Value:         loc,
					SourceSitemap: sitemapURL,
				})
			}
		}
	default:
		*errs = append(*errs, &models.ResolutionError{
			Sitemap: sitemapURL,
			Err:     fmt.Errorf("unexpected root element <%s>", doc.XMLName.Local),
		})
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

func gunzipIfNeeded(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, 50<<20))
}
