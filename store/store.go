// Package store persists a finished batch report as one tabular file under
// <base>/<mode>/<mode>_<timestamp>.<ext>.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/harvest/models"
)

// Format selects the output backend.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatSQLite Format = "sqlite"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatSQLite:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", models.NewScrapeError(models.ErrCodeInvalidInput,
		fmt.Sprintf("unknown output format %q (csv, xlsx, sqlite)", s), nil)
}

func (f Format) ext() string {
	if f == FormatSQLite {
		return "db"
	}
	return string(f)
}

// table is the flattened report handed to a backend.
type table struct {
	name    string
	columns []string
	rows    [][]string
}

type writer func(ctx context.Context, path string, t table) error

var writers = map[Format]writer{
	FormatCSV:    writeCSV,
	FormatXLSX:   writeXLSX,
	FormatSQLite: writeSQLite,
}

// Persister writes reports below BaseDir.
type Persister struct {
	baseDir string
	format  Format
	now     func() time.Time
}

// New creates a Persister. format is parsed with ParseFormat.
func New(baseDir, format string) (*Persister, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if baseDir == "" {
		baseDir = "output"
	}
	return &Persister{baseDir: baseDir, format: f, now: time.Now}, nil
}

// ModeDir is the folder a mode's outputs (and backup artifacts) go to.
func (p *Persister) ModeDir(mode models.Mode) string {
	return filepath.Join(p.baseDir, string(mode))
}

// Persist writes the report's records and sets report.OutputPath. A report
// without records still produces a file with the mode's header.
func (p *Persister) Persist(ctx context.Context, report *models.ScrapeReport) (string, error) {
	dir := p.ModeDir(report.Mode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewScrapeError(models.ErrCodePersist, "create output folder", err)
	}

	stamp := report.StartedAt
	if stamp.IsZero() {
		stamp = p.now()
	}
	name := fmt.Sprintf("%s_%s.%s", report.Mode, stamp.Format("20060102_150405"), p.format.ext())
	path := filepath.Join(dir, name)

	t := table{name: string(report.Mode), columns: models.ColumnsFor(report.Mode)}
	for _, r := range report.Records {
		if t.columns == nil {
			t.columns = r.Columns()
		}
		t.rows = append(t.rows, r.Row())
	}
	if len(t.columns) == 0 {
		return "", models.NewScrapeError(models.ErrCodePersist, fmt.Sprintf("no columns for mode %q", report.Mode), nil)
	}

	if err := writers[p.format](ctx, path, t); err != nil {
		_ = os.Remove(path)
		return "", models.NewScrapeError(models.ErrCodePersist, "write "+string(p.format)+" output", err)
	}
	report.OutputPath = path
	slog.Info("report persisted", "batch", report.BatchID, "path", path, "records", len(t.rows))
	return path, nil
}
