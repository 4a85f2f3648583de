package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfFont        = "Arial"
	pdfMargin      = 10.0
	pdfRowHeight   = 7.0
	landscapeAfter = 5
)

// PDFExporter lays a Dataset out as a bordered A4 table.
type PDFExporter struct{}

// NewPDFExporter returns a PDFExporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of the rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension of the rendered output.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render draws the title, a header row repeated on every page, the rows and a
// summary block. Wide tables switch to landscape.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("pdf requires at least one header")
	}

	orientation := "P"
	if len(data.Headers) > landscapeAfter {
		orientation = "L"
	}
	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetMargins(pdfMargin, 15, pdfMargin)
	doc.SetAutoPageBreak(true, 15)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont(pdfFont, "I", 8)
		doc.CellFormat(0, 6, fmt.Sprintf("%d / {nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})

	pageWidth, _ := doc.GetPageSize()
	colWidth := (pageWidth - 2*pdfMargin) / float64(len(data.Headers))
	headerRow := func() {
		doc.SetFont(pdfFont, "B", 10)
		doc.SetFillColor(230, 236, 222)
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, 8, h, "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont(pdfFont, "", 9)
	}
	doc.SetHeaderFunc(func() {
		if doc.PageNo() > 1 {
			headerRow()
		}
	})

	doc.AddPage()
	if title != "" {
		doc.SetFont(pdfFont, "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}
	headerRow()
	for _, row := range data.Rows {
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, pdfRowHeight, row[h], "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	if len(data.Summary) > 0 {
		doc.Ln(4)
		doc.SetFont(pdfFont, "B", 10)
		for _, kv := range data.Summary {
			doc.CellFormat(60, pdfRowHeight, kv[0], "", 0, "", false, 0, "")
			doc.CellFormat(0, pdfRowHeight, kv[1], "", 1, "", false, 0, "")
		}
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return out.Bytes(), nil
}
