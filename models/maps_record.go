package models

import (
	"strconv"
	"strings"
	"time"
)

// MapsRecord is one business listing.
type MapsRecord struct {
	Query       string
	Name        string
	Category    string
	Address     string
	Phone       string
	Website     string
	Rating      float64
	ReviewCount int
	MapsURL     string

	// Enrichment, best-effort.
	Emails   []string
	VATID    string
	VATValid string // "valid", "invalid" or "" when unchecked

	ScrapedAt time.Time
}

var mapsColumns = []string{
	"id", "query", "name", "category", "address", "phone", "website",
	"rating", "review_count", "maps_url", "emails", "vat_id", "vat_valid", "scraped_at",
}

func (r *MapsRecord) Mode() Mode { return ModeMaps }
func (r *MapsRecord) DedupKey() string { return compositeKey(r.Name, r.Address) }
func (r *MapsRecord) ID() string { return recordID(r.DedupKey()) }
func (r *MapsRecord) Columns() []string { return mapsColumns }

func (r *MapsRecord) Row() []string {
	rating := ""
	if r.Rating > 0 {
		rating = strconv.FormatFloat(r.Rating, 'f', 1, 64)
	}
	return []string{
		r.ID(),
		r.Query,
		r.Name,
		r.Category,
		r.Address,
		r.Phone,
		r.Website,
		rating,
		strconv.Itoa(r.ReviewCount),
		r.MapsURL,
		strings.Join(r.Emails, "; "),
		r.VATID,
		r.VATValid,
		formatTime(r.ScrapedAt),
	}
}

func (r *MapsRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid(ModeMaps, "name")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
