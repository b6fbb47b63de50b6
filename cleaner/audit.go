package cleaner

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
)

// PageAudit is the on-page SEO and content summary of one rendered page.
type PageAudit struct {
	Title       string
	Description string
	Canonical   string
	Robots      string
	Language    string

	H1Count          int
	WordCount        int
	InternalLinks    int
	ExternalLinks    int
	Images           int
	ImagesMissingAlt int

	// StructuredData lists the distinct JSON-LD @type values.
	StructuredData []string
	OGTitle        string
	OGImage        string

	// Text is the visible body text, used for fingerprinting.
	Text string
	// Media holds absolute URLs of images, video and audio sources.
	Media []string
}

// Audit parses rawHTML as rendered at pageURL.
func Audit(rawHTML, pageURL string) PageAudit {
	var a PageAudit
	base, err := url.Parse(pageURL)
	if err != nil {
		return a
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return a
	}

	a.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	a.Description = metaContent(doc, `meta[name="description"]`)
	a.Robots = metaContent(doc, `meta[name="robots"]`)
	a.OGTitle = metaContent(doc, `meta[property="og:title"]`)
	a.OGImage = metaContent(doc, `meta[property="og:image"]`)
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if u, err := base.Parse(strings.TrimSpace(href)); err == nil {
			a.Canonical = u.String()
		}
	}
	a.StructuredData = jsonLDTypes(doc)

	a.H1Count = doc.Find("h1").Length()
	a.InternalLinks, a.ExternalLinks = countLinks(doc, base)
	a.Images, a.ImagesMissingAlt, a.Media = scanMedia(doc, base)

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	a.Text = strings.Join(strings.Fields(body.Text()), " ")
	a.WordCount = len(strings.Fields(a.Text))

	a.Language = pageLanguage(doc, a.Text)
	return a
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

// pageLanguage prefers <html lang> and falls back to detection on the text.
func pageLanguage(doc *goquery.Document, text string) string {
	if lang, ok := doc.Find("html").Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		return lang
	}
	if len(text) < 40 {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// countLinks splits http(s) anchors by whether their host matches base.
func countLinks(doc *goquery.Document, base *url.URL) (internal, external int) {
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		if _, dup := seen[u.String()]; dup {
			return
		}
		seen[u.String()] = struct{}{}
		if strings.EqualFold(u.Host, base.Host) {
			internal++
		} else {
			external++
		}
	})
	return internal, external
}

// scanMedia counts <img> elements and collects absolute media URLs, data
// URIs excluded.
func scanMedia(doc *goquery.Document, base *url.URL) (images, missingAlt int, media []string) {
	seen := make(map[string]struct{})
	add := func(raw string) {
		u, err := base.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if _, dup := seen[u.String()]; dup {
			return
		}
		seen[u.String()] = struct{}{}
		media = append(media, u.String())
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		images++
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missingAlt++
		}
		if src, ok := s.Attr("src"); ok && src != "" {
			add(src)
		}
	})
	doc.Find("video[src], audio[src], video source[src], audio source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})
	return images, missingAlt, media
}

// jsonLDTypes collects @type values from every JSON-LD block, @graph
// members included.
func jsonLDTypes(doc *goquery.Document) []string {
	set := make(map[string]struct{})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		collectTypes(v, set)
	})
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func collectTypes(v any, set map[string]struct{}) {
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			collectTypes(item, set)
		}
	case map[string]any:
		switch t := x["@type"].(type) {
		case string:
			set[t] = struct{}{}
		case []any:
			for _, tt := range t {
				if s, ok := tt.(string); ok {
					set[s] = struct{}{}
				}
			}
		}
		if g, ok := x["@graph"]; ok {
			collectTypes(g, set)
		}
	}
}
