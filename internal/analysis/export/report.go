// Package export turns generated sustainability reports into downloadable files.
package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/microcosm-cc/bluemonday"

	analysis "terralens/internal/analysis/domain"
	"terralens/internal/observability/metrics"
)

// File is a rendered report download.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

var stripPolicy = bluemonday.StrictPolicy()

// Render produces the download matching the report format.
func Render(report analysis.SustainabilityReport, siteID string, generatedAt time.Time) (File, error) {
	start := time.Now()
	format := strings.ToLower(string(report.ReportFormat))
	base := fmt.Sprintf("sustainability-%s-%s", safeName(siteID), generatedAt.UTC().Format("20060102"))

	var (
		file File
		err  error
	)
	switch report.ReportFormat {
	case analysis.FormatCSV:
		file = File{Name: base + ".csv", ContentType: "text/csv; charset=utf-8", Body: []byte(report.ReportContent)}
	case analysis.FormatPDF:
		var body []byte
		body, err = BuildReportPDF(report.ReportContent, siteID, generatedAt)
		file = File{Name: base + ".pdf", ContentType: "application/pdf", Body: body}
	default:
		err = fmt.Errorf("export: unsupported report format %q", report.ReportFormat)
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		return File{}, err
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	return file, nil
}

// BuildReportPDF renders report text as a simple A4 document. Markup in the
// content is stripped.
func BuildReportPDF(content, siteID string, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sustainability Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Mining Site: %s", siteID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(PlainText(content)), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PlainText removes HTML markup from model output.
func PlainText(content string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(content)))
}

func safeName(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "site"
	}
	return b.String()
}
