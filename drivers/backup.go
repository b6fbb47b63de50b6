package drivers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
)

// Backup viewports.
const (
	desktopWidth  = 1920
	desktopHeight = 1080
	mobileWidth   = 390
	mobileHeight  = 844
)

const navStatusJS = `() => {
	try {
		const e = performance.getEntriesByType("navigation");
		if (e.length > 0) return String(e[0].responseStatus || 0);
	} catch (err) {}
	return "0";
}`

// Backup renders every page of a site at desktop and mobile size, stores
// the HTML, a Markdown rendition and an audit JSON per page, and
// optionally the page media.
//
// Every page gets its own session. Consecutive targets on the same host
// share one folder named after the host.
type Backup struct {
	Cleaner *cleaner.Cleaner
}

func (*Backup) Mode() models.Mode { return models.ModeBackup }

// site is a run of consecutive targets on one host.
type site struct {
	host    string
	targets []models.Target
}

func (d *Backup) Run(ctx context.Context, env *Env, targets []models.Target) ([]models.Record, error) {
	if d.Cleaner == nil {
		d.Cleaner = cleaner.NewCleaner()
	}
	index := simhash.NewIndex(0)

	var out []models.Record
	sites := groupBySite(targets)
	for i, s := range sites {
		if env.Token.IsStopRequested() {
			env.Reporter.Statusf("stop requested, skipping %d remaining site(s)", len(sites)-i)
			break
		}
		env.Reporter.Statusf("[%d/%d] backup: %s (%d page(s))", i+1, len(sites), s.host, len(s.targets))

		recs, err := d.backupSite(ctx, env, s, index)
		out = append(out, valid(env, recs)...)
		if err != nil && !errors.Is(err, engine.ErrStopped) {
			env.Reporter.Failure(fmt.Sprintf("backup target %q", s.host), err)
		}
	}
	return out, nil
}

func (d *Backup) backupSite(ctx context.Context, env *Env, s site, index *simhash.Index) ([]models.Record, error) {
	dir := filepath.Join(env.OutputDir, SanitizeName(s.host))
	for _, sub := range []string{"screens", "pages"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, models.NewScrapeError(models.ErrCodePersist, "create backup folder", err)
		}
	}
	if env.Options.DownloadMedia {
		if err := os.MkdirAll(filepath.Join(dir, "media"), 0o755); err != nil {
			return nil, models.NewScrapeError(models.ErrCodePersist, "create media folder", err)
		}
	}

	var recs []models.Record
	for _, t := range s.targets {
		if env.Token.IsStopRequested() {
			return recs, engine.ErrStopped
		}
		captured, err := withPage(ctx, env, false, func(page Page) ([]models.Record, error) {
			rec, err := d.capture(ctx, env, page, dir, t, index)
			if err != nil {
				return nil, err
			}
			return []models.Record{rec}, nil
		})
		if err != nil {
			if errors.Is(err, engine.ErrStopped) {
				return recs, err
			}
			env.Reporter.Failure(fmt.Sprintf("backup page %q", t.Value), err)
			continue
		}
		recs = append(recs, captured...)
		env.Reporter.Statusf("backup: %s captured", t.Value)
	}
	return recs, nil
}

// capture produces one page's artifacts and record.
func (d *Backup) capture(ctx context.Context, env *Env, page Page, dir string, t models.Target, index *simhash.Index) (*models.BackupRecord, error) {
	if err := open(ctx, env, page, t.Value, t.Value); err != nil {
		return nil, err
	}

	// Lazy images only enter the DOM once scrolled into view.
	if err := page.ScrollToBottom(ctx); err != nil {
		env.Reporter.Failure(fmt.Sprintf("scroll %q", t.Value), err)
	} else if err := env.Token.Sleep(ctx, env.Options.Settle); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	status, err := page.Eval(ctx, navStatusJS)
	if err != nil {
		env.Reporter.Failure(fmt.Sprintf("navigation status %q", t.Value), err)
	}
	audit := cleaner.Audit(html, t.Value)

	slug := pageSlug(t.Value)
	rel := func(p string) string {
		if r, err := filepath.Rel(env.OutputDir, p); err == nil {
			return filepath.ToSlash(r)
		}
		return p
	}

	rec := &models.BackupRecord{
		Target:           siteHost(t.Value),
		URL:              t.Value,
		FinalURL:         page.URL(ctx),
		Sitemap:          t.SitemapName(),
		Title:            audit.Title,
		Description:      audit.Description,
		Canonical:        audit.Canonical,
		Robots:           audit.Robots,
		Language:         audit.Language,
		H1Count:          audit.H1Count,
		WordCount:        audit.WordCount,
		InternalLinks:    audit.InternalLinks,
		ExternalLinks:    audit.ExternalLinks,
		Images:           audit.Images,
		ImagesMissingAlt: audit.ImagesMissingAlt,
		StructuredData:   audit.StructuredData,
		OGTitle:          audit.OGTitle,
		OGImage:          audit.OGImage,
		CapturedAt:       time.Now(),
	}
	rec.StatusCode, _ = strconv.Atoi(status)
	rec.SimHash = simhash.Fingerprint(audit.Text)
	if match, ok := index.Add(t.Value, rec.SimHash); ok {
		rec.NearDuplicateOf = match
	}

	pagesDir := filepath.Join(dir, "pages")
	htmlPath := filepath.Join(pagesDir, slug+".html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return nil, models.NewScrapeError(models.ErrCodePersist, "write page html", err)
	}
	if md, err := d.Cleaner.Markdown(html, t.Value); err != nil {
		env.Reporter.Failure(fmt.Sprintf("markdown %q", t.Value), err)
	} else {
		mdPath := filepath.Join(pagesDir, slug+".md")
		if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
			env.Reporter.Failure(fmt.Sprintf("markdown %q", t.Value), err)
		} else {
			rec.ArtifactPath = rel(mdPath)
		}
	}

	desktop := filepath.Join(dir, "screens", slug+"_desktop.png")
	if err := page.Screenshot(ctx, desktopWidth, desktopHeight, desktop); err != nil {
		return nil, err
	}
	rec.DesktopScreenshot = rel(desktop)
	if env.Token.IsStopRequested() {
		return nil, engine.ErrStopped
	}
	mobile := filepath.Join(dir, "screens", slug+"_mobile.png")
	if err := page.Screenshot(ctx, mobileWidth, mobileHeight, mobile); err != nil {
		return nil, err
	}
	rec.MobileScreenshot = rel(mobile)

	if env.Options.DownloadMedia && env.HTTP != nil {
		saved, err := downloadMedia(ctx, env, filepath.Join(dir, "media"), audit.Media)
		rec.MediaCount = saved
		if err != nil {
			env.Reporter.Failure(fmt.Sprintf("media %q", t.Value), err)
		}
	}

	if err := writePageJSON(filepath.Join(pagesDir, slug+".json"), rec); err != nil {
		return nil, models.NewScrapeError(models.ErrCodePersist, "write page audit", err)
	}
	return rec, nil
}

// downloadMedia stores each asset under a content-addressed name and
// returns how many were saved. Failed assets are skipped and summarised in
// the returned error.
func downloadMedia(ctx context.Context, env *Env, dir string, media []string) (int, error) {
	saved, failed := 0, 0
	var first error
	for _, m := range media {
		if env.Token.IsStopRequested() || ctx.Err() != nil {
			break
		}
		sum := sha1.Sum([]byte(m))
		name := hex.EncodeToString(sum[:8]) + mediaExt(m)
		dst := filepath.Join(dir, name)
		if _, err := os.Stat(dst); err == nil {
			saved++
			continue
		}
		if _, err := env.HTTP.Download(ctx, m, dst); err != nil {
			failed++
			if first == nil {
				first = fmt.Errorf("%s: %w", m, err)
			}
			continue
		}
		saved++
	}
	if failed > 0 {
		return saved, fmt.Errorf("%d of %d asset(s) failed, first: %w", failed, saved+failed, first)
	}
	return saved, nil
}

func mediaExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 6 {
		return ""
	}
	return ext
}

// writePageJSON stores the record as a column -> value object.
func writePageJSON(p string, rec models.Record) error {
	cols, row := rec.Columns(), rec.Row()
	obj := make(map[string]string, len(cols))
	for i, c := range cols {
		obj[c] = row[i]
	}
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func groupBySite(targets []models.Target) []site {
	var out []site
	for _, t := range targets {
		host := siteHost(t.Value)
		if n := len(out); n > 0 && out[n-1].host == host {
			out[n-1].targets = append(out[n-1].targets, t)
			continue
		}
		out = append(out, site{host: host, targets: []models.Target{t}})
	}
	return out
}

func siteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName makes s safe as a single path element.
func SanitizeName(s string) string {
	s = strings.Trim(unsafeName.ReplaceAllString(s, "_"), "._")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return "target"
	}
	return s
}

// pageSlug names a page's files after its path plus a short hash of the
// full URL, so query variants do not collide.
func pageSlug(rawURL string) string {
	name := "index"
	if u, err := url.Parse(rawURL); err == nil {
		if p := strings.Trim(u.Path, "/"); p != "" {
			name = SanitizeName(p)
		}
	}
	if len(name) > 60 {
		name = name[:60]
	}
	sum := sha1.Sum([]byte(rawURL))
	return name + "_" + hex.EncodeToString(sum[:3])
}
