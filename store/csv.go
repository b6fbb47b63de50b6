package store

import (
	"context"
	"encoding/csv"
	"os"
)

func writeCSV(_ context.Context, path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// BOM so spreadsheet apps detect UTF-8.
	if _, err := f.WriteString("\ufeff"); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.columns); err != nil {
		return err
	}
	if err := w.WriteAll(t.rows); err != nil {
		return err
	}
	return f.Close()
}
