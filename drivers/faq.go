package drivers

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Google search selectors.
const (
	faqPair        = `div.related-question-pair`
	faqToggle      = `div[role="button"]`
	faqAnswer      = `div.wDYxhc`
	faqSourceLink  = `a[href^="http"]`
	faqSourceTitle = `h3`
	faqRelated     = `#bres a, div.s75CSd a`
	searchBase     = "https://www.google.com/search"

	// defaultMaxQuestions bounds the question traversal when no MaxRecords
	// is configured.
	defaultMaxQuestions = 50
)

// FAQ expands Google's "People also ask" box breadth-first and reads the
// related searches panel.
type FAQ struct{}

func (*FAQ) Mode() models.Mode { return models.ModeFAQ }

func (d *FAQ) Run(ctx context.Context, env *Env, targets []models.Target) ([]models.Record, error) {
	return sequential(ctx, env, models.ModeFAQ, targets, func(ctx context.Context, t models.Target) ([]models.Record, error) {
		return withPage(ctx, env, true, func(page Page) ([]models.Record, error) {
			return d.scrapeQuery(ctx, env, page, t.Value)
		})
	}), nil
}

func (d *FAQ) scrapeQuery(ctx context.Context, env *Env, page Page, query string) ([]models.Record, error) {
	if err := open(ctx, env, page, searchURL(query, env.Options.Language), query); err != nil {
		return nil, err
	}

	cfg := loopConfig(env.Options, query)
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxQuestions
	}
	src := &faqSource{env: env, page: page, query: query}
	loop := engine.NewLoop[*models.FAQRecord](cfg, src, env.Token, env.Reporter)
	res, err := loop.Run(ctx)
	slog.Debug("faq loop finished", "query", query, "records", len(res.Records),
		"iterations", res.Iterations, "reason", res.Reason)

	out := asRecords(res.Records)
	if err != nil || !env.Options.Related || env.Token.IsStopRequested() {
		return out, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return out, err
	}
	related, err := parseRelated(html, query)
	if err != nil {
		return out, err
	}
	return append(out, asRecords(related)...), nil
}

func searchURL(query, lang string) string {
	if lang == "" {
		lang = "en"
	}
	v := url.Values{"q": {query}, "hl": {lang}}
	return searchBase + "?" + v.Encode()
}

// faqSource treats every visible question as a card. Expanding one makes
// Google append more, so growth comes from Extract and Advance only
// re-reads the list.
type faqSource struct {
	env      *Env
	page     Page
	query    string
	position int
}

func (s *faqSource) Cards(ctx context.Context) ([]engine.Card, error) {
	html, err := s.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}
	var out []engine.Card
	doc.Find(faqPair).Each(func(i int, sel *goquery.Selection) {
		if q := attr(sel, "data-q"); q != "" {
			out = append(out, engine.Card{Key: q, Index: i})
		}
	})
	return out, nil
}

func (s *faqSource) Extract(ctx context.Context, card engine.Card) (*models.FAQRecord, error) {
	pair := faqPair + `[data-q=` + cssString(card.Key) + `]`
	if err := s.page.Click(ctx, pair+" "+faqToggle); err != nil {
		return nil, err
	}
	if err := s.env.Token.Sleep(ctx, s.env.Options.Settle); err != nil {
		return nil, err
	}
	html, err := s.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}

	sel := doc.Find(pair)
	if sel.Length() == 0 {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "question vanished after expanding", nil)
	}
	answer := text(sel.Find(faqAnswer))
	if answer == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "expanded question has no answer", nil)
	}

	s.position++
	return &models.FAQRecord{
		Query:       s.query,
		Kind:        models.FAQKindQuestion,
		Question:    card.Key,
		Answer:      answer,
		SourceURL:   attr(sel.Find(faqSourceLink), "href"),
		SourceTitle: text(sel.Find(faqSourceTitle)),
		Position:    s.position,
		ScrapedAt:   time.Now(),
	}, nil
}

func (s *faqSource) Advance(context.Context) (bool, error) {
	return true, nil
}

// parseRelated reads the related searches panel.
func parseRelated(html, query string) ([]*models.FAQRecord, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}
	var out []*models.FAQRecord
	seen := make(map[string]struct{})
	now := time.Now()
	doc.Find(faqRelated).Each(func(_ int, sel *goquery.Selection) {
		q := text(sel)
		key := strings.ToLower(q)
		if q == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, &models.FAQRecord{
			Query:     query,
			Kind:      models.FAQKindRelated,
			Question:  q,
			Position:  len(out) + 1,
			ScrapedAt: now,
		})
	})
	return out, nil
}
