package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/use-agent/harvest/cache"
)

// VAT validity labels stored on records.
const (
	VATValid   = "valid"
	VATInvalid = "invalid"
)

// SiteInfo is the enrichment result for one business website.
type SiteInfo struct {
	Emails   []string
	VATID    string
	VATValid string
}

// ContactSource finds contacts on a website.
type ContactSource interface {
	Crawl(ctx context.Context, website string) (Contacts, error)
}

// VATChecker validates VAT ids.
type VATChecker interface {
	Check(ctx context.Context, vatID string) (VATResult, error)
}

// SiteEnricher crawls a website once per host and TTL and optionally
// validates the first VAT id found. vat may be nil.
type SiteEnricher struct {
	contacts ContactSource
	vat      VATChecker
	cache    *cache.Cache[SiteInfo]
}

// NewSiteEnricher creates a SiteEnricher.
func NewSiteEnricher(contacts ContactSource, vat VATChecker, c *cache.Cache[SiteInfo]) *SiteEnricher {
	return &SiteEnricher{contacts: contacts, vat: vat, cache: c}
}

// Enrich returns what is known about website. A failed VAT check still
// returns the contacts found, alongside the error; such partial results
// are not cached.
func (e *SiteEnricher) Enrich(ctx context.Context, website string) (SiteInfo, error) {
	key := hostKey(website)
	if key == "" {
		return SiteInfo{}, nil
	}
	return e.cache.GetOrLoad(key, func() (SiteInfo, error) {
		found, err := e.contacts.Crawl(ctx, website)
		if err != nil {
			return SiteInfo{}, err
		}
		info := SiteInfo{Emails: found.Emails}
		if len(found.VATIDs) > 0 {
			info.VATID = found.VATIDs[0]
			if e.vat != nil {
				res, err := e.vat.Check(ctx, info.VATID)
				switch {
				case err != nil:
					return info, fmt.Errorf("vat check %s: %w", info.VATID, err)
				case res.Valid:
					info.VATValid = VATValid
				default:
					info.VATValid = VATInvalid
				}
			}
		}
		return info, nil
	})
}

// hostKey is the lowercased host without a leading "www.".
func hostKey(website string) string {
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
