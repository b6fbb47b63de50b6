package batch

import (
	"time"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/drivers"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/enrich"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

// NewDefault wires a Controller with the production collaborators: go-rod
// sessions, the fingerprinted HTTP client, the enrichment services and the
// configured webhook. The returned func releases background resources.
func NewDefault(cfg *config.Config, reporter *engine.Reporter) (*Controller, func(), error) {
	client := fetch.New(fetch.Options{
		Proxy:         cfg.Browser.Proxy,
		RatePerSecond: cfg.Enrich.RatePerSecond,
		Burst:         2,
		// An uncompressed sitemap may be up to 50 MB.
		MaxBody: 50 << 20,
	})

	siteCache := cache.New[enrich.SiteInfo](cfg.Enrich.CacheMaxEntries, cfg.Enrich.CacheTTL)
	var vat enrich.VATChecker
	if cfg.Enrich.VATRegistry {
		vat = enrich.NewVIES("")
	}

	deps := Deps{
		Launcher: drivers.RodLauncher{Manager: scraper.NewSessionManager(cfg.Browser, cfg.Scraper, cfg.Captcha.Markers)},
		HTTP:     client,
		Sites:    enrich.NewSiteEnricher(enrich.NewContactCrawler(client), vat, siteCache),
		Archive:  enrich.NewWayback(""),
		DNS:      drivers.MiekgResolver{Server: cfg.DNS.Resolver, Timeout: cfg.DNS.Timeout},
		TLS:      drivers.TLSProbeFunc(fetch.ProbeTLS),
	}
	if cfg.Enrich.PageSpeedKey != "" {
		ps, err := enrich.NewPageSpeed("", cfg.Enrich.PageSpeedKey)
		if err != nil {
			siteCache.Close()
			return nil, nil, err
		}
		deps.PageSpeed = ps
	}
	if cfg.Webhook.URL != "" {
		url, secret := cfg.Webhook.URL, cfg.Webhook.Secret
		deps.Notify = func(s models.BatchStatusResponse) {
			webhook.DeliverAsync(url, secret, &webhook.Event{
				Type:      webhook.EventBatchCompleted,
				BatchID:   s.BatchID,
				Timestamp: time.Now().Unix(),
				Data:      s,
			})
		}
	}

	c, err := New(cfg, reporter, deps)
	if err != nil {
		siteCache.Close()
		return nil, nil, err
	}
	return c, siteCache.Close, nil
}
