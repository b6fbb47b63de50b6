package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/harvest/fetch"
)

// WaybackURL is the Wayback Machine CDX server.
const WaybackURL = "https://web.archive.org"

// cdxTimestamp is the CDX timestamp layout.
const cdxTimestamp = "20060102150405"

// ArchiveInfo summarises a domain's Wayback history.
type ArchiveInfo struct {
	First time.Time
	Last  time.Time
	// Snapshots counts months that have at least one capture.
	Snapshots int
}

// Wayback queries the CDX API.
type Wayback struct {
	http *resty.Client
}

// NewWayback creates a Wayback client. An empty baseURL uses WaybackURL.
func NewWayback(baseURL string) *Wayback {
	if baseURL == "" {
		baseURL = WaybackURL
	}
	return &Wayback{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", fetch.UserAgent)}
}

// Lookup returns the first and last capture of domain. A domain that was
// never archived yields a zero ArchiveInfo and no error.
func (w *Wayback) Lookup(ctx context.Context, domain string) (ArchiveInfo, error) {
	var rows [][]string
	res, err := w.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"url":      domain,
			"output":   "json",
			"fl":       "timestamp",
			"collapse": "timestamp:6",
			"filter":   "statuscode:200",
		}).
		SetResult(&rows).
		Get("/cdx/search/cdx")
	if err != nil {
		return ArchiveInfo{}, fmt.Errorf("wayback: %w", err)
	}
	if res.IsError() {
		return ArchiveInfo{}, fmt.Errorf("wayback: HTTP %d", res.StatusCode())
	}

	// rows[0] is the field header.
	if len(rows) < 2 {
		return ArchiveInfo{}, nil
	}
	var info ArchiveInfo
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		ts, err := time.Parse(cdxTimestamp, row[0])
		if err != nil {
			continue
		}
		if info.First.IsZero() || ts.Before(info.First) {
			info.First = ts
		}
		if ts.After(info.Last) {
			info.Last = ts
		}
		info.Snapshots++
	}
	return info, nil
}
