package drivers

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// text returns the collapsed text of the first match.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}

// attr returns the trimmed attribute of the first match.
func attr(s *goquery.Selection, name string) string {
	v, _ := s.First().Attr(name)
	return strings.TrimSpace(v)
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}

// parseDecimal reads "4,6" or "4.6".
func parseDecimal(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseCount extracts the digits of "(1.234)" or "1,234 reviews".
func parseCount(s string) int {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	n, _ := strconv.Atoi(b.String())
	return n
}

// stripLabel removes an "Address: "-style prefix.
func stripLabel(s string) string {
	if i := strings.Index(s, ": "); i >= 0 && i < 20 {
		return strings.TrimSpace(s[i+2:])
	}
	return strings.TrimSpace(s)
}
