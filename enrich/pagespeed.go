// Package enrich talks to the external services that add data to scraped
// records: Google PageSpeed, the Wayback Machine, the EU VIES registry and
// the listed businesses' own websites.
package enrich

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/models"
)

// PageSpeedURL is the PageSpeed Insights v5 endpoint.
const PageSpeedURL = "https://www.googleapis.com/pagespeedonline/v5"

// PageSpeed runs Lighthouse performance audits.
type PageSpeed struct {
	http *resty.Client
	key  string
}

// NewPageSpeed creates a PageSpeed client. An empty key is a fatal
// MISSING_CREDENTIAL error: the API rejects anonymous bulk audits.
func NewPageSpeed(baseURL, key string) (*PageSpeed, error) {
	if key == "" {
		return nil, models.NewScrapeError(models.ErrCodeMissingCredential,
			"performance audits require a PageSpeed API key (HARVEST_PAGESPEED_KEY)", nil)
	}
	if baseURL == "" {
		baseURL = PageSpeedURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(90*time.Second).
		SetHeader("User-Agent", fetch.UserAgent)
	return &PageSpeed{http: client, key: key}, nil
}

type pageSpeedResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
}

// Score returns the mobile performance score of pageURL on a 0-100 scale.
func (p *PageSpeed) Score(ctx context.Context, pageURL string) (int, error) {
	var out pageSpeedResponse
	res, err := p.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"url":      pageURL,
			"key":      p.key,
			"strategy": "mobile",
			"category": "performance",
		}).
		SetResult(&out).
		Get("/runPagespeed")
	if err != nil {
		return -1, fmt.Errorf("pagespeed: %w", err)
	}
	if res.IsError() {
		return -1, fmt.Errorf("pagespeed: HTTP %d", res.StatusCode())
	}
	score := out.LighthouseResult.Categories.Performance.Score
	if score == nil {
		return -1, fmt.Errorf("pagespeed: no performance score for %s", pageURL)
	}
	return int(math.Round(*score * 100)), nil
}
