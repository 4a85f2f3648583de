package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// Dataset is a table keyed by header name. Summary pairs are appended after
// the body, separated by a blank line in CSV and as a footer block in PDF.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Summary [][2]string
}

// records flattens the dataset into CSV records in header order.
func (d Dataset) records() [][]string {
	out := make([][]string, 0, len(d.Rows)+len(d.Summary)+2)
	out = append(out, d.Headers)
	for _, row := range d.Rows {
		rec := make([]string, len(d.Headers))
		for i, h := range d.Headers {
			rec[i] = row[h]
		}
		out = append(out, rec)
	}
	if len(d.Summary) > 0 {
		out = append(out, nil)
		for _, kv := range d.Summary {
			out = append(out, []string{kv[0], kv[1]})
		}
	}
	return out
}

// CSVExporter writes a Dataset as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter returns a CSVExporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType of the rendered output.
func (e *CSVExporter) ContentType() string { return "text/csv" }

// Extension of the rendered output.
func (e *CSVExporter) Extension() string { return "csv" }

// Render ignores the title; CSV has no place for one.
func (e *CSVExporter) Render(data Dataset, _ string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("csv requires at least one header")
	}
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(data.records()); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
