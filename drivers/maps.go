package drivers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Google Maps selectors. They change without notice.
const (
	mapsFeed       = `div[role="feed"]`
	mapsCard       = `div[role="feed"] a.hfpxzc`
	mapsEndOfList  = `span.HlvSq`
	mapsPlaceName  = `h1.DUwDvf`
	mapsCategory   = `button.DkEaL`
	mapsAddress    = `button[data-item-id="address"]`
	mapsPhone      = `button[data-item-id^="phone:tel:"]`
	mapsWebsite    = `a[data-item-id="authority"]`
	mapsRating     = `div.F7nice span[aria-hidden="true"]`
	mapsReviews    = `div.F7nice span[aria-label]`
	mapsSearchBase = "https://www.google.com/maps/search/"
)

// Maps scrapes business listings from Google Maps search results. Targets
// run sequentially, each in its own session.
type Maps struct{}

func (*Maps) Mode() models.Mode { return models.ModeMaps }

func (d *Maps) Run(ctx context.Context, env *Env, targets []models.Target) ([]models.Record, error) {
	return sequential(ctx, env, models.ModeMaps, targets, func(ctx context.Context, t models.Target) ([]models.Record, error) {
		return withPage(ctx, env, true, func(page Page) ([]models.Record, error) {
			return d.scrapeQuery(ctx, env, page, t.Value)
		})
	}), nil
}

func (d *Maps) scrapeQuery(ctx context.Context, env *Env, page Page, query string) ([]models.Record, error) {
	if err := open(ctx, env, page, mapsSearchURL(query, env.Options.Language), query); err != nil {
		return nil, err
	}

	src := &mapsSource{env: env, page: page, query: query}
	loop := engine.NewLoop[*models.MapsRecord](loopConfig(env.Options, query), src, env.Token, env.Reporter)
	loop.Guard = func(ctx context.Context) error {
		return env.Checkpoint.Guard(ctx, page, query)
	}
	loop.OnRecord = func(r *models.MapsRecord) {
		env.Reporter.Statusf("maps: %s (%s)", r.Name, query)
	}

	res, err := loop.Run(ctx)
	slog.Debug("maps loop finished", "query", query, "records", len(res.Records),
		"iterations", res.Iterations, "reason", res.Reason)
	return asRecords(res.Records), err
}

func mapsSearchURL(query, lang string) string {
	if lang == "" {
		lang = "en"
	}
	return mapsSearchBase + url.PathEscape(query) + "?hl=" + url.QueryEscape(lang)
}

// mapsSource walks the results feed. A query that resolves straight to a
// single place page yields that one listing.
type mapsSource struct {
	env   *Env
	page  Page
	query string
}

func (s *mapsSource) Cards(ctx context.Context) ([]engine.Card, error) {
	html, err := s.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}

	cards := doc.Find(mapsCard)
	if cards.Length() == 0 {
		if name := text(doc.Find(mapsPlaceName)); name != "" {
			return []engine.Card{{Key: name}}, nil
		}
		if doc.Find(mapsFeed).Length() == 0 {
			return nil, models.NewScrapeError(models.ErrCodeExtraction, "no results feed on page", nil)
		}
		return nil, nil
	}

	out := make([]engine.Card, 0, cards.Length())
	for i := range cards.Nodes {
		label := attr(cards.Eq(i), "aria-label")
		if label == "" {
			continue
		}
		out = append(out, engine.Card{Key: label, Index: i, Ref: attr(cards.Eq(i), "href")})
	}
	return out, nil
}

func (s *mapsSource) Extract(ctx context.Context, card engine.Card) (*models.MapsRecord, error) {
	mapsURL, _ := card.Ref.(string)
	if mapsURL != "" {
		if err := s.page.Click(ctx, `a.hfpxzc[aria-label=`+cssString(card.Key)+`]`); err != nil {
			return nil, err
		}
	}
	if err := s.page.WaitVisible(ctx, mapsPlaceName); err != nil {
		return nil, err
	}

	// The panel may still show the previous place right after the click.
	var rec *models.MapsRecord
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.env.Token.Sleep(ctx, s.env.Options.Settle); err != nil {
			return nil, err
		}
		html, err := s.page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		rec, err = parsePlace(html)
		if err != nil {
			return nil, err
		}
		if samePlace(rec.Name, card.Key) {
			break
		}
		rec = nil
	}
	if rec == nil {
		return nil, fmt.Errorf("detail panel did not switch to %q", card.Key)
	}

	rec.Query = s.query
	rec.MapsURL = mapsURL
	rec.ScrapedAt = time.Now()
	s.enrich(ctx, rec)
	return rec, nil
}

// enrich adds website contacts. Failures are reported and never fail the
// item; whatever was found before the failure is kept.
func (s *mapsSource) enrich(ctx context.Context, rec *models.MapsRecord) {
	if !s.env.Options.Enrich || s.env.Sites == nil || rec.Website == "" {
		return
	}
	info, err := s.env.Sites.Enrich(ctx, rec.Website)
	if err != nil {
		s.env.Reporter.Failure(fmt.Sprintf("enrich %q", rec.Name), err)
	}
	rec.Emails = info.Emails
	rec.VATID = info.VATID
	rec.VATValid = info.VATValid
}

func (s *mapsSource) Advance(ctx context.Context) (bool, error) {
	end, err := s.page.HasElement(ctx, mapsEndOfList)
	if err != nil {
		return false, err
	}
	if end {
		return false, nil
	}
	return s.page.ScrollElement(ctx, mapsFeed)
}

// parsePlace reads the open place panel.
func parsePlace(html string) (*models.MapsRecord, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}
	rec := &models.MapsRecord{
		Name:        text(doc.Find(mapsPlaceName)),
		Category:    text(doc.Find(mapsCategory)),
		Address:     stripLabel(attr(doc.Find(mapsAddress), "aria-label")),
		Phone:       stripLabel(attr(doc.Find(mapsPhone), "aria-label")),
		Website:     attr(doc.Find(mapsWebsite), "href"),
		Rating:      parseDecimal(text(doc.Find(mapsRating))),
		ReviewCount: parseCount(attr(doc.Find(mapsReviews), "aria-label")),
	}
	if rec.Name == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "place panel has no name", nil)
	}
	return rec, nil
}

// samePlace compares a panel title with a card label; labels are sometimes
// truncated with an ellipsis.
func samePlace(name, label string) bool {
	name, label = strings.ToLower(name), strings.ToLower(strings.TrimSuffix(label, "…"))
	return name == label || strings.HasPrefix(name, label)
}
