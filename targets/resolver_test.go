package targets

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/models"
)

// mapFetcher serves sitemap bodies from memory; missing URLs fail.
type mapFetcher map[string]string

func (m mapFetcher) Body(_ context.Context, u string) ([]byte, error) {
	body, ok := m[u]
	if !ok {
		return nil, fmt.Errorf("HTTP 404 for %s", u)
	}
	return []byte(body), nil
}

func urlset(urls ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, u := range urls {
		b.WriteString("<url><loc>" + u + "</loc></url>")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func index(sitemaps ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, s := range sitemaps {
		b.WriteString("<sitemap><loc>" + s + "</loc></sitemap>")
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func values(ts []models.Target) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Value
	}
	return out
}

func TestSplit_TrimsAndDropsEmpty(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "b", "c"}, Split("a, b ,,c")); diff != "" {
		t.Errorf("Split mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_QueriesPreserveOrderAndDuplicates(t *testing.T) {
	got, err := NewResolver(nil).Resolve(context.Background(), "b, a, b", InputQuery)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a", "b"}, values(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	for _, tg := range got {
		if tg.Kind != models.KindQuery {
			t.Errorf("kind = %s, want query", tg.Kind)
		}
	}
}

func TestResolve_EmptyInputIsFatal(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), " , ,", InputQuery)
	if !models.IsFatal(err) {
		t.Fatalf("error = %v, want fatal input error", err)
	}
}

func TestResolve_DomainsAreNormalised(t *testing.T) {
	got, err := NewResolver(nil).Resolve(context.Background(), "https://Example.com/path, shop.example.org.", InputDomain)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if diff := cmp.Diff([]string{"example.com", "shop.example.org"}, values(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SitemapIndexExpandsRecursively(t *testing.T) {
	f := mapFetcher{
		"https://s.test/sitemap.xml":      index("https://s.test/post-sitemap.xml", "https://s.test/page-sitemap.xml"),
		"https://s.test/post-sitemap.xml": urlset("https://s.test/p1", "https://s.test/p2", "https://s.test/p3"),
		"https://s.test/page-sitemap.xml": urlset("https://s.test/a", "https://s.test/b", "https://s.test/c"),
	}
	got, err := NewResolver(f).Resolve(context.Background(), "https://s.test/sitemap.xml", InputSitemap)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("targets = %d, want 6", len(got))
	}

	names := map[string]int{}
	for _, tg := range got {
		if tg.Kind != models.KindSitemapEntry {
			t.Errorf("kind = %s, want sitemapEntry", tg.Kind)
		}
		names[tg.SitemapName()]++
	}
	if diff := cmp.Diff(map[string]int{"post-sitemap": 3, "page-sitemap": 3}, names); diff != "" {
		t.Errorf("sitemap tags mismatch (-want +got):\n%s", diff)
	}
	if got[0].Value != "https://s.test/p1" || got[5].Value != "https://s.test/c" {
		t.Errorf("order not preserved: %v", values(got))
	}
}

func TestResolve_FailedSubSitemapKeepsSiblings(t *testing.T) {
	f := mapFetcher{
		"https://s.test/sitemap.xml": index("https://s.test/gone.xml", "https://s.test/ok.xml", "https://s.test/bad.xml"),
		"https://s.test/ok.xml":      urlset("https://s.test/x"),
		"https://s.test/bad.xml":     "<html>not a sitemap",
	}
	got, err := NewResolver(f).Resolve(context.Background(), "https://s.test/sitemap.xml", InputSitemap)

	var rerr *models.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want ResolutionError", err)
	}
	if diff := cmp.Diff([]string{"https://s.test/x"}, values(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SitemapModeWithoutXMLIsFlatList(t *testing.T) {
	got, err := NewResolver(nil).Resolve(context.Background(), "https://a.test/, https://b.test/x", InputSitemap)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	for _, tg := range got {
		if tg.Kind != models.KindURL {
			t.Errorf("kind = %s, want url", tg.Kind)
		}
	}
	if len(got) != 2 {
		t.Errorf("targets = %d, want 2", len(got))
	}
}

func TestResolve_IndexCycleTerminates(t *testing.T) {
	f := mapFetcher{
		"https://s.test/a.xml": index("https://s.test/b.xml"),
		"https://s.test/b.xml": index("https://s.test/a.xml", "https://s.test/c.xml"),
		"https://s.test/c.xml": urlset("https://s.test/only"),
	}
	got, err := NewResolver(f).Resolve(context.Background(), "https://s.test/a.xml", InputSitemap)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("targets = %d, want 1", len(got))
	}
}

func TestResolve_GzippedSitemap(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(urlset("https://s.test/z")))
	_ = zw.Close()

	f := mapFetcher{"https://s.test/sitemap.xml.gz": buf.String()}
	got, err := NewResolver(f).Resolve(context.Background(), "https://s.test/sitemap.xml.gz", InputSitemap)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if len(got) != 1 || got[0].SitemapName() != "sitemap" {
		t.Errorf("got %+v", got)
	}
}
