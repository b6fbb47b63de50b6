// Package cleaner turns rendered page HTML into the artifacts and audit
// figures of a site backup.
package cleaner

import (
	"fmt"
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Cleaner converts pages to readable Markdown. The converter is created once
// and reused across pages (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// Markdown extracts the main content of rawHTML with readability and renders
// it as Markdown with absolute links. Pages readability cannot handle are
// converted whole.
func (c *Cleaner) Markdown(rawHTML, pageURL string) (string, error) {
	article, ok := ExtractContent(rawHTML, pageURL)
	content := article.Content
	if !ok {
		content = rawHTML
	}

	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Scheme + "://" + u.Host
	}
	md, err := ToMarkdown(c.mdConverter, content, domain)
	if err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	if ok && article.Title != "" {
		md = "# " + article.Title + "\n\n" + md
	}
	return md, nil
}
