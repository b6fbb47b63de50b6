package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Record is one flat tabular row produced by a mode driver. The concrete
// variants (MapsRecord, DNSRecord, FAQRecord, BackupRecord) are only unioned
// behind this interface at the collection and persistence boundary.
type Record interface {
	Mode() Mode

	// ID is a stable identifier derived from DedupKey.
	ID() string

	// DedupKey is the composite key used for batch-level deduplication.
	DedupKey() string

	// Columns and Row describe the record as a table row. Columns never
	// changes for a given variant and len(Row()) == len(Columns()).
	Columns() []string
	Row() []string

	Validate() error
}

// keySep joins composite key parts; it cannot appear in scraped text.
const keySep = "\x1f"

// compositeKey normalises parts for comparison: trimmed, lowercased and
// whitespace-collapsed.
func compositeKey(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.Join(strings.Fields(p), " "))
	}
	return strings.Join(norm, keySep)
}

// recordID hashes a dedup key into a short stable identifier.
func recordID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

func invalid(mode Mode, field string) error {
	return NewScrapeError(ErrCodeExtraction, string(mode)+" record missing "+field, nil)
}

// ColumnsFor returns the column set of a mode's record variant, so an empty
// report still gets a header.
func ColumnsFor(mode Mode) []string {
	switch mode {
	case ModeMaps:
		return mapsColumns
	case ModeDNS:
		return dnsColumns
	case ModeFAQ:
		return faqColumns
	case ModeBackup:
		return backupColumns
	}
	return nil
}
