package export

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPrintableWidth = 277.0 // A4 landscape minus 10mm margins
	pdfRowHeight      = 7.0
	pdfMaxCellRunes   = 48
)

// PDFExporter renders a Dataset as a landscape A4 table. The header row is
// repeated on every page and pages are numbered in the footer.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of the rendered document.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render builds the document. Column widths follow the longest value in each
// column so tracking IDs and timestamps are not squeezed by short flags.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export: no columns")
	}
	widths := columnWidths(data)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		if title != "" && pdf.PageNo() == 1 {
			pdf.SetFont("Arial", "B", 14)
			pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
			pdf.Ln(3)
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d of {nb} - %d records", pdf.PageNo(), len(data.Rows)), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	for _, row := range data.Rows {
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], pdfRowHeight, tr(clip(row[header], pdfMaxCellRunes)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf export: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths splits the printable width in proportion to each column's
// longest value, clamped so no column drops below a few characters.
func columnWidths(data Dataset) []float64 {
	weights := make([]float64, len(data.Headers))
	var total float64
	for i, header := range data.Headers {
		longest := utf8.RuneCountInString(header)
		for _, row := range data.Rows {
			if n := utf8.RuneCountInString(row[header]); n > longest {
				longest = n
			}
		}
		if longest > pdfMaxCellRunes {
			longest = pdfMaxCellRunes
		}
		if longest < 6 {
			longest = 6
		}
		weights[i] = float64(longest)
		total += weights[i]
	}
	for i := range weights {
		weights[i] = pdfPrintableWidth * weights[i] / total
	}
	return weights
}

func clip(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max-3]) + "..."
}
