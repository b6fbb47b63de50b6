package cleaner

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const samplePage = `<!doctype html>
<html lang="de-DE">
<head>
  <title> Bäckerei Müller </title>
  <meta name="description" content="Frisches Brot seit 1890">
  <meta name="robots" content="index,follow">
  <meta property="og:title" content="Müller">
  <meta property="og:image" content="https://example.de/og.jpg">
  <link rel="canonical" href="/">
  <script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"Bakery"},{"@type":["Organization","LocalBusiness"]}]}</script>
</head>
<body>
  <h1>Willkommen</h1>
  <p>Unser Brot wird jeden Morgen frisch gebacken.</p>
  <a href="/kontakt">Kontakt</a>
  <a href="/kontakt#map">Karte</a>
  <a href="https://instagram.com/mueller">Instagram</a>
  <a href="mailto:info@example.de">Mail</a>
  <img src="/img/brot.jpg" alt="Brot">
  <img src="/img/ofen.jpg">
  <img src="data:image/png;base64,AAAA" alt="">
  <video><source src="/media/film.mp4"></video>
  <script>var tracking = "ignored words here";</script>
</body>
</html>`

func TestAudit(t *testing.T) {
	a := Audit(samplePage, "https://example.de/ueber-uns")

	if a.Title != "Bäckerei Müller" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.Description != "Frisches Brot seit 1890" || a.Robots != "index,follow" {
		t.Errorf("Description = %q, Robots = %q", a.Description, a.Robots)
	}
	if a.Canonical != "https://example.de/" {
		t.Errorf("Canonical = %q", a.Canonical)
	}
	if a.Language != "de" {
		t.Errorf("Language = %q, want de", a.Language)
	}
	if a.H1Count != 1 {
		t.Errorf("H1Count = %d", a.H1Count)
	}
	if a.InternalLinks != 1 || a.ExternalLinks != 1 {
		t.Errorf("links = %d internal, %d external; want 1, 1", a.InternalLinks, a.ExternalLinks)
	}
	if a.Images != 3 || a.ImagesMissingAlt != 2 {
		t.Errorf("images = %d, missing alt = %d; want 3, 2", a.Images, a.ImagesMissingAlt)
	}
	if diff := cmp.Diff([]string{"Bakery", "LocalBusiness", "Organization"}, a.StructuredData); diff != "" {
		t.Errorf("StructuredData mismatch (-want +got):\n%s", diff)
	}
	wantMedia := []string{
		"https://example.de/img/brot.jpg",
		"https://example.de/img/ofen.jpg",
		"https://example.de/media/film.mp4",
	}
	if diff := cmp.Diff(wantMedia, a.Media); diff != "" {
		t.Errorf("Media mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(a.Text, "tracking") {
		t.Error("script text leaked into page text")
	}
	if a.OGTitle != "Müller" || a.OGImage != "https://example.de/og.jpg" {
		t.Errorf("OG = %q, %q", a.OGTitle, a.OGImage)
	}
}

func TestAudit_DetectsLanguageWithoutLangAttr(t *testing.T) {
	page := `<html><body><p>The quick brown fox jumps over the lazy dog while the farmer watches from the old wooden porch of his house.</p></body></html>`
	if got := Audit(page, "https://example.com/").Language; got != "en" {
		t.Errorf("Language = %q, want en", got)
	}
}

func TestCleaner_Markdown(t *testing.T) {
	page := `<html><head><title>Guide</title></head><body><nav>menu</nav>
	<article><h2>Section</h2><p>` + strings.Repeat("Readable paragraph text for the article body. ", 10) + `</p>
	<a href="/next">next page</a></article></body></html>`

	md, err := NewCleaner().Markdown(page, "https://example.com/guide")
	if err != nil {
		t.Fatalf("Markdown error = %v", err)
	}
	if !strings.Contains(md, "Readable paragraph text") {
		t.Errorf("markdown lacks body text:\n%s", md)
	}
	if !strings.Contains(md, "https://example.com/next") {
		t.Errorf("relative link not resolved:\n%s", md)
	}
}

func TestValidateSelectors(t *testing.T) {
	if err := ValidateSelectors([]string{`iframe[src*="recaptcha"]`, `#captcha-form`}); err != nil {
		t.Errorf("valid selectors rejected: %v", err)
	}
	if err := ValidateSelectors([]string{`div[`, `#ok`}); err == nil {
		t.Error("broken selector accepted")
	}
}
