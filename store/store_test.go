package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/models"
	"github.com/xuri/excelize/v2"
)

func testReport() *models.ScrapeReport {
	r := models.NewScrapeReport("b1", models.ModeMaps)
	r.StartedAt = time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)
	r.Finalize([]models.Record{
		&models.MapsRecord{Query: "bakery", Name: "Alpha, \"the\" bakery", Address: "Main St 1", Rating: 4.5},
		&models.MapsRecord{Query: "bakery", Name: "Beta", Address: "Side St 2"},
	}, 0, false)
	return r
}

func TestPersist_CSV(t *testing.T) {
	base := t.TempDir()
	p, err := New(base, "csv")
	if err != nil {
		t.Fatal(err)
	}
	report := testReport()

	path, err := p.Persist(context.Background(), report)
	if err != nil {
		t.Fatalf("Persist error = %v", err)
	}
	want := filepath.Join(base, "maps", "maps_20261019_143005.csv")
	if path != want || report.OutputPath != want {
		t.Errorf("path = %q (report %q), want %q", path, report.OutputPath, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if diff := cmp.Diff(models.ColumnsFor(models.ModeMaps), rows[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(report.Records[0].Row(), rows[1]); diff != "" {
		t.Errorf("first row (-want +got):\n%s", diff)
	}
}

func TestPersist_EmptyReportWritesHeader(t *testing.T) {
	p, _ := New(t.TempDir(), "")
	report := models.NewScrapeReport("b2", models.ModeFAQ)
	report.Finalize(nil, 0, true)

	path, err := p.Persist(context.Background(), report)
	if err != nil {
		t.Fatalf("Persist error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "question,answer") {
		t.Errorf("file = %q, want faq header", data)
	}
}

func TestPersist_XLSX(t *testing.T) {
	p, _ := New(t.TempDir(), "xlsx")
	report := testReport()

	path, err := p.Persist(context.Background(), report)
	if err != nil {
		t.Fatalf("Persist error = %v", err)
	}
	if filepath.Ext(path) != ".xlsx" {
		t.Errorf("path = %q", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("maps")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "id" || rows[2][2] != "Beta" {
		t.Errorf("rows = %v", rows)
	}
}

func TestPersist_SQLite(t *testing.T) {
	p, _ := New(t.TempDir(), "sqlite")
	report := testReport()

	path, err := p.Persist(context.Background(), report)
	if err != nil {
		t.Fatalf("Persist error = %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "maps"`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
	var name string
	id := report.Records[1].ID()
	if err := db.QueryRow(`SELECT name FROM "maps" WHERE id = ?`, id).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "Beta" {
		t.Errorf("name = %q", name)
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("parquet"); !models.IsFatal(err) {
		t.Errorf("ParseFormat(parquet) err = %v, want fatal input error", err)
	}
	if f, err := ParseFormat(" XLSX "); err != nil || f != FormatXLSX {
		t.Errorf("ParseFormat(XLSX) = %q, %v", f, err)
	}
}

func TestPersist_UnwritableBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(base, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := New(base, "csv")

	_, err := p.Persist(context.Background(), testReport())
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodePersist {
		t.Errorf("err = %v, want PERSIST_FAILED", err)
	}
}
