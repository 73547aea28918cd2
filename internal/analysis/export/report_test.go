package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "terralens/internal/analysis/domain"
)

var generatedAt = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestRenderCSVIsVerbatim(t *testing.T) {
	content := "metric,value\nwater,40\n"
	file, err := Render(analysis.SustainabilityReport{ReportContent: content, ReportFormat: analysis.FormatCSV}, "site-1", generatedAt)
	require.NoError(t, err)
	assert.Equal(t, "sustainability-site-1-20260504.csv", file.Name)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, content, string(file.Body))
}

func TestRenderPDF(t *testing.T) {
	file, err := Render(analysis.SustainabilityReport{
		ReportContent: "<h1>Summary</h1><p>Water use fell by 12% – see annex.</p>",
		ReportFormat:  analysis.FormatPDF,
	}, "site/../1", generatedAt)
	require.NoError(t, err)
	assert.Equal(t, "sustainability-site____1-20260504.pdf", file.Name)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF-")))
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	_, err := Render(analysis.SustainabilityReport{ReportContent: "x", ReportFormat: "DOCX"}, "s", generatedAt)
	require.Error(t, err)
}

func TestPlainTextStripsMarkup(t *testing.T) {
	assert.Equal(t, "Emissions & water", PlainText("<b>Emissions</b> &amp; <i>water</i>"))
	assert.Equal(t, "no markup", PlainText("  no markup "))
}
