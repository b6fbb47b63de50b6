package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/harvest/fetch"
)

// VIESURL is the EU VAT Information Exchange System REST API.
const VIESURL = "https://ec.europa.eu/taxation_customs/vies/rest-api"

// vatPattern matches the common EU VAT id layouts, allowing one space after
// the country prefix.
var vatPattern = regexp.MustCompile(`\b(?:ATU ?\d{8}|BE ?0?\d{9}|DE ?\d{9}|DK ?\d{8}|ES ?[A-Z0-9]\d{7}[A-Z0-9]|FR ?[A-Z0-9]{2}\d{9}|IT ?\d{11}|NL ?\d{9}B\d{2}|PL ?\d{10}|SE ?\d{12}|PT ?\d{9}|CZ ?\d{8,10}|LU ?\d{8}|FI ?\d{8}|EL ?\d{9}|IE ?\d{7}[A-Z]{1,2})\b`)

// FindVATIDs returns the distinct VAT ids in text, spaces removed, in order
// of appearance.
func FindVATIDs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range vatPattern.FindAllString(text, -1) {
		id := strings.ReplaceAll(m, " ", "")
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// VATResult is a registry answer.
type VATResult struct {
	Valid bool
	Name  string
}

// VIES validates VAT ids against the EU registry.
type VIES struct {
	http *resty.Client
}

// NewVIES creates a VIES client. An empty baseURL uses VIESURL.
func NewVIES(baseURL string) *VIES {
	if baseURL == "" {
		baseURL = VIESURL
	}
	return &VIES{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(20*time.Second).
		SetHeader("User-Agent", fetch.UserAgent)}
}

type viesRequest struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
}

type viesResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name"`
}

// Check looks vatID up in the registry.
func (v *VIES) Check(ctx context.Context, vatID string) (VATResult, error) {
	if len(vatID) < 4 {
		return VATResult{}, fmt.Errorf("vies: malformed VAT id %q", vatID)
	}
	var out viesResponse
	res, err := v.http.R().
		SetContext(ctx).
		SetBody(viesRequest{CountryCode: vatID[:2], VATNumber: vatID[2:]}).
		SetResult(&out).
		Post("/check-vat-number")
	if err != nil {
		return VATResult{}, fmt.Errorf("vies: %w", err)
	}
	if res.IsError() {
		return VATResult{}, fmt.Errorf("vies: HTTP %d", res.StatusCode())
	}
	return VATResult{Valid: out.Valid, Name: strings.TrimSpace(out.Name)}, nil
}
