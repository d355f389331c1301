package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/ratchet/internal/model"
)

// LoadCSV reads items from a CSV file with a header row
func LoadCSV(path string, cols model.ColumnMapping) ([]model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	items, err := ReadCSV(f, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// ReadCSV parses CSV rows. Rows may have a varying number of fields.
func ReadCSV(r io.Reader, cols model.ColumnMapping) ([]model.Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows, cols)
}

// SaveCSV writes items with the mapped column names as header
func SaveCSV(path string, items []model.Item, cols model.ColumnMapping) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(toRows(items, cols)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
