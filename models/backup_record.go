package models

import (
	"strconv"
	"strings"
	"time"
)

// BackupRecord is the audit row of one rendered page. Screenshot and
// artifact columns hold paths relative to the batch output directory.
type BackupRecord struct {
	Target   string
	URL      string
	FinalURL string
	Sitemap  string

	StatusCode  int
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
	StructuredData   []string
	OGTitle          string
	OGImage          string

	DesktopScreenshot string
	MobileScreenshot  string
	ArtifactPath      string
	MediaCount        int

	SimHash         uint64
	NearDuplicateOf string

	CapturedAt time.Time
}

var backupColumns = []string{
	"id", "target", "url", "final_url", "sitemap", "status_code", "title", "description", "canonical", "robots",
	"language", "h1_count", "word_count", "internal_links", "external_links", "images",
	"images_missing_alt", "structured_data", "og_title", "og_image", "desktop_screenshot",
	"mobile_screenshot", "artifact", "media_count", "simhash", "near_duplicate_of", "captured_at",
}

func (r *BackupRecord) Mode() Mode { return ModeBackup }
func (r *BackupRecord) DedupKey() string { return compositeKey(strings.TrimSuffix(r.URL, "/")) }
func (r *BackupRecord) ID() string { return recordID(r.DedupKey()) }
func (r *BackupRecord) Columns() []string { return backupColumns }

func (r *BackupRecord) Row() []string {
	return []string{
		r.ID(),
		r.Target,
		r.URL,
		r.FinalURL,
		r.Sitemap,
		strconv.Itoa(r.StatusCode),
		r.Title,
		r.Description,
		r.Canonical,
		r.Robots,
		r.Language,
		strconv.Itoa(r.H1Count),
		strconv.Itoa(r.WordCount),
		strconv.Itoa(r.InternalLinks),
		strconv.Itoa(r.ExternalLinks),
		strconv.Itoa(r.Images),
		strconv.Itoa(r.ImagesMissingAlt),
		strings.Join(r.StructuredData, "; "),
		r.OGTitle,
		r.OGImage,
		r.DesktopScreenshot,
		r.MobileScreenshot,
		r.ArtifactPath,
		strconv.Itoa(r.MediaCount),
		strconv.FormatUint(r.SimHash, 16),
		r.NearDuplicateOf,
		formatTime(r.CapturedAt),
	}
}

func (r *BackupRecord) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return invalid(ModeBackup, "url")
	}
	return nil
}
