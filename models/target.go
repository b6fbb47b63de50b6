package models

import (
	"net/url"
	"path"
	"strings"
)

// Mode selects which driver handles a batch.
type Mode string

const (
	ModeMaps   Mode = "maps"
	ModeDNS    Mode = "dns"
	ModeFAQ    Mode = "faq"
	ModeBackup Mode = "backup"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeMaps, ModeDNS, ModeFAQ, ModeBackup}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", NewScrapeError(ErrCodeInvalidInput, "unknown mode "+s, nil)
}

// TargetKind tells the driver how to interpret Target.Value.
type TargetKind string

const (
	KindQuery        TargetKind = "query"
	KindDomain       TargetKind = "domain"
	KindURL          TargetKind = "url"
	KindSitemapEntry TargetKind = "sitemapEntry"
)

// Target is one resolved unit of scraping work.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Value string     `json:"value"`

	// SourceSitemap is the sitemap URL a sitemapEntry was listed in.
	SourceSitemap string `json:"source_sitemap,omitempty"`
}

// SitemapName returns the originating sitemap's file name without the .xml
// suffix, or "" for targets that did not come from a sitemap.
func (t Target) SitemapName() string {
	if t.SourceSitemap == "" {
		return ""
	}
	p := t.SourceSitemap
	if u, err := url.Parse(t.SourceSitemap); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".xml")
}

func (t Target) String() string {
	return t.Value
}
