// Package render turns a finalized profile into the downloadable identity
// pass. Rendering is a pure function of the submitted fields; any failure
// surfaces as a single error with no partial output.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"regportal/models"
)

// ErrNotSubmitted rejects rendering for a profile that has not completed
// final submission.
var ErrNotSubmitted = errors.New("profile is not submitted")

// Pass renders the identity pass PDF. photoPath, when non-empty, must point
// at a readable JPEG/PNG on disk (the normalized variant when available).
func Pass(p models.Profile, photoPath string) ([]byte, error) {
	if !p.IsSubmitted || p.PassID == nil {
		return nil, ErrNotSubmitted
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("Registration Pass "+*p.PassID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Citizen Registration Pass", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Issued on "+p.UpdatedAt.Format("02 Jan 2006"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if photoPath != "" {
		opts := gofpdf.ImageOptions{ImageType: imageType(photoPath), ReadDpi: true}
		if _, err := os.Stat(photoPath); err == nil {
			pdf.ImageOptions(photoPath, 104, 32, 33, 42.5, false, opts, 0, "")
		}
	}

	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(30, 60, 120)
	pdf.CellFormat(0, 14, *p.PassID, "1", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(42, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}
	field("Name", p.Name)
	field("Email", p.Email)
	field("Contact", p.Contact)
	field("Gender", p.Gender)
	field("Date of birth", p.DateOfBirth)
	field("Age", fmt.Sprintf("%d", p.Age))
	field("District", p.District)
	field("Category", p.Category)
	field("Qualification", p.HighestQualification)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering failed: %w", err)
	}
	return buf.Bytes(), nil
}

func imageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG"
	case ".gif":
		return "GIF"
	default:
		return "JPG"
	}
}
