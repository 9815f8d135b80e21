package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate carries the fields printed on an approval certificate.
type Certificate struct {
	TrackingID      string
	ApplicationType string
	Department      string
	CitizenName     string
	Status          string
	ApprovedAt      time.Time
	DocumentHash    string
	BlockNumber     int
	IssuedAt        time.Time
}

// CertificateRenderer draws single page approval certificates.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces the certificate PDF.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if cert.TrackingID == "" || cert.DocumentHash == "" {
		return nil, fmt.Errorf("certificate requires tracking id and document hash")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetLineWidth(0.8)
	pdf.Rect(10, 10, 190, 277, "D")

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 14, "CERTIFICATE OF APPROVAL", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, tr(cert.Department), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	rows := [][2]string{
		{"Tracking ID", cert.TrackingID},
		{"Application", cert.ApplicationType},
		{"Applicant", cert.CitizenName},
		{"Status", cert.Status},
		{"Decision date", formatDate(cert.ApprovedAt)},
		{"Block number", fmt.Sprintf("%d", cert.BlockNumber)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(50, 9, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 9, tr(row[1]), "", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "Document hash (SHA-256)", "", 1, "", false, 0, "")
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 6, cert.DocumentHash, "1", "C", false)

	pdf.Ln(20)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Issued "+formatDate(cert.IssuedAt), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02 Jan 2006 15:04 MST")
}
