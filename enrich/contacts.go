package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/fetch"
)

// Getter is the HTTP surface the contact crawler needs. *fetch.Client
// satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,24}`)

// contactHints pick the sub-pages of a site most likely to carry contact
// details or legal notices.
var contactHints = []string{"contact", "kontakt", "impressum", "imprint", "legal", "about"}

// maxContactPages bounds how many sub-pages are fetched per site.
const maxContactPages = 3

// Contacts is what a site crawl found.
type Contacts struct {
	Emails []string
	VATIDs []string
}

// ContactCrawler reads a business website's home page and a few linked
// contact pages.
type ContactCrawler struct {
	get Getter
}

// NewContactCrawler creates a crawler over get.
func NewContactCrawler(get Getter) *ContactCrawler {
	return &ContactCrawler{get: get}
}

// Crawl visits website and returns the contact details found. Sub-page
// failures are ignored; only a failing home page is an error.
func (c *ContactCrawler) Crawl(ctx context.Context, website string) (Contacts, error) {
	base, err := url.Parse(website)
	if err != nil || base.Host == "" {
		return Contacts{}, fmt.Errorf("contacts: invalid website %q", website)
	}

	home, err := c.get.Get(ctx, base.String())
	if err != nil {
		return Contacts{}, err
	}
	if home.StatusCode >= 400 {
		return Contacts{}, fmt.Errorf("contacts: HTTP %d for %s", home.StatusCode, website)
	}

	emails := make(map[string]struct{})
	var vats []string
	links := scanPage(home.Body, base, emails, &vats)

	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		res, err := c.get.Get(ctx, link)
		if err != nil || res.StatusCode >= 400 {
			continue
		}
		scanPage(res.Body, base, emails, &vats)
	}

	out := Contacts{VATIDs: dedupStrings(vats)}
	for e := range emails {
		out.Emails = append(out.Emails, e)
	}
	sort.Strings(out.Emails)
	return out, nil
}

// scanPage collects emails and VAT ids from body and returns up to
// maxContactPages same-host contact links.
func scanPage(body []byte, base *url.URL, emails map[string]struct{}, vats *[]string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	doc.Find("script, style, noscript").Remove()

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if addr, ok := strings.CutPrefix(strings.TrimSpace(href), "mailto:"); ok {
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			if addr = strings.ToLower(strings.TrimSpace(addr)); emailPattern.MatchString(addr) {
				emails[addr] = struct{}{}
			}
			return
		}
		if len(links) >= maxContactPages {
			return
		}
		u, err := base.Parse(href)
		if err != nil || u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		lower := strings.ToLower(u.Path + " " + s.Text())
		for _, hint := range contactHints {
			if strings.Contains(lower, hint) {
				u.Fragment = ""
				if _, dup := seen[u.String()]; !dup {
					seen[u.String()] = struct{}{}
					links = append(links, u.String())
				}
				return
			}
		}
	})

	text := doc.Text()
	for _, m := range emailPattern.FindAllString(text, -1) {
		m = strings.ToLower(m)
		if isAssetName(m) {
			continue
		}
		emails[m] = struct{}{}
	}
	*vats = append(*vats, FindVATIDs(text)...)
	return links
}

// isAssetName rejects "logo@2x.png"-style matches.
func isAssetName(s string) bool {
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

func dedupStrings(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
