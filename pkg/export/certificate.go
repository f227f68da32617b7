package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate is the content of an issued document.
type Certificate struct {
	InstitutionName  string
	InstitutionLogo  []byte // PNG, optional
	Title            string
	StudentName      string
	StudentCode      string
	Body             string
	IssuedAt         time.Time
	VerificationCode string
	VerifyURL        string
}

// CertificateRenderer draws certificates on portrait A4.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render returns the PDF bytes for cert.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if cert.Title == "" || cert.VerificationCode == "" {
		return nil, fmt.Errorf("certificate requires title and verification code")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(cert.Title, true)
	pdf.AddPage()

	if len(cert.InstitutionLogo) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(cert.InstitutionLogo))
		if pdf.Ok() {
			pdf.ImageOptions("logo", 92.5, 15, 25, 0, false, opts, 0, "")
			pdf.SetY(45)
		} else {
			pdf.ClearError()
		}
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(cert.InstitutionName)), "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, tr(cert.Title), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 7, tr(fmt.Sprintf("This certifies that %s (code %s)", cert.StudentName, cert.StudentCode)), "", "C", false)
	pdf.Ln(4)
	if cert.Body != "" {
		pdf.MultiCell(0, 7, tr(cert.Body), "", "J", false)
	}
	pdf.Ln(12)
	pdf.CellFormat(0, 7, "Issued on "+cert.IssuedAt.Format("2 January 2006"), "", 1, "R", false, 0, "")

	pdf.SetY(-40)
	pdf.SetFont("Courier", "B", 12)
	pdf.CellFormat(0, 7, "Verification code: "+cert.VerificationCode, "T", 1, "C", false, 0, "")
	if cert.VerifyURL != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 5, cert.VerifyURL, "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
