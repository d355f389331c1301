// Package report renders analysis runs as JSON, Markdown, XLSX workbooks
// and a styled console summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Renderer writes run reports. Console output goes to Out.
type Renderer struct {
	Out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{Out: out}
}

// WriteJSON encodes v with indentation
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderJSON writes v to path, creating parent directories
func (r *Renderer) RenderJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// num formats a value for text output; non-finite values are spelled out
func num(v float64, prec int) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// pval prints small p-values in scientific notation
func pval(p float64) string {
	if math.IsNaN(p) {
		return "n/a"
	}
	if p < 0.001 {
		return strconv.FormatFloat(p, 'e', 2, 64)
	}
	return strconv.FormatFloat(p, 'f', 4, 64)
}

func stars(p, alpha float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < alpha/50:
		return "***"
	case p < alpha/5:
		return "**"
	case p < alpha:
		return "*"
	}
	return ""
}
