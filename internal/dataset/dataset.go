// Package dataset loads items from CSV or XLSX tables using a configured
// column mapping, and writes them back for the classify command.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/ratchet/internal/model"
)

var ErrMissingColumn = errors.New("required column missing")

// Load reads items from path. The format comes from in.Format, or from the
// file extension when unset.
func Load(path string, in model.InputConfig) ([]model.Item, error) {
	format := strings.ToLower(in.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "csv":
		return LoadCSV(path, in.Columns)
	case "xlsx":
		return LoadXLSX(path, in.Sheet, in.Columns)
	}
	return nil, fmt.Errorf("unsupported input format %q for %s", format, path)
}

// Save writes items to path in the format implied by its extension
func Save(path string, items []model.Item, cols model.ColumnMapping) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return SaveXLSX(path, "items", items, cols)
	case ".csv":
		return SaveCSV(path, items, cols)
	}
	return fmt.Errorf("unsupported output format for %s", path)
}

// header resolves mapped column names to positions
type header struct {
	id, ts, group, label, score, period, text, conf int
}

func resolve(names []string, cols model.ColumnMapping) (header, error) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(n, "\ufeff")))] = i
	}
	find := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := pos[strings.ToLower(name)]; ok {
			return i
		}
		return -1
	}
	h := header{
		id:     find(cols.ID),
		ts:     find(cols.Timestamp),
		group:  find(cols.Group),
		label:  find(cols.Label),
		score:  find(cols.Score),
		period: find(cols.Period),
		text:   find(cols.Text),
		conf:   find(cols.Confidence),
	}
	if h.id < 0 {
		return h, fmt.Errorf("%w: %s", ErrMissingColumn, cols.ID)
	}
	if h.group < 0 {
		return h, fmt.Errorf("%w: %s", ErrMissingColumn, cols.Group)
	}
	if h.ts < 0 && h.period < 0 {
		return h, fmt.Errorf("%w: %s (or %s)", ErrMissingColumn, cols.Timestamp, cols.Period)
	}
	if h.label < 0 && h.score < 0 && h.text < 0 {
		return h, fmt.Errorf("%w: one of %s, %s or %s", ErrMissingColumn, cols.Label, cols.Score, cols.Text)
	}
	return h, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// fromRows converts table rows (first row is the header) into items.
// Blank rows are skipped; a row without an id is an error.
func fromRows(rows [][]string, cols model.ColumnMapping) ([]model.Item, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	h, err := resolve(rows[0], cols)
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		it := model.Item{
			ID:        cell(row, h.id),
			Group:     strings.ToUpper(cell(row, h.group)),
			Timestamp: cell(row, h.ts),
			Label:     model.Frame(strings.ToUpper(cell(row, h.label))),
			Period:    cell(row, h.period),
			Text:      cell(row, h.text),
		}
		if it.ID == "" {
			return nil, fmt.Errorf("row %d: empty %s", n+2, cols.ID)
		}
		if raw := cell(row, h.score); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				it.Score = v
				it.HasScore = true
			}
		}
		if raw := cell(row, h.conf); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				it.Confidence = v
				it.HasConfidence = true
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// toRows renders items under the mapped column names. The confidence
// column is written only when mapped.
func toRows(items []model.Item, cols model.ColumnMapping) [][]string {
	head := []string{cols.ID, cols.Timestamp, cols.Group, cols.Label, cols.Score, cols.Period, cols.Text}
	if cols.Confidence != "" {
		head = append(head, cols.Confidence)
	}
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, head)
	for _, it := range items {
		row := []string{it.ID, it.Timestamp, it.Group, string(it.Label), formatOptional(it.Score, it.HasScore), it.Period, it.Text}
		if cols.Confidence != "" {
			row = append(row, formatOptional(it.Confidence, it.HasConfidence))
		}
		rows = append(rows, row)
	}
	return rows
}

func formatOptional(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
