package analysis

import (
	"github.com/invopop/jsonschema"
)

// Flow names, used for logging, metrics and provider request labels.
const (
	FlowSustainabilityReport = "generateSustainabilityReport"
	FlowSatelliteAnalysis    = "analyzeSatelliteImage"
)

// ReportFormat is the requested rendering of a sustainability report.
type ReportFormat string

const (
	FormatPDF ReportFormat = "PDF"
	FormatCSV ReportFormat = "CSV"
)

// ReportFormats lists every accepted format.
func ReportFormats() []string {
	return []string{string(FormatPDF), string(FormatCSV)}
}

// JSONSchema constrains the format in provider-facing schemas.
func (ReportFormat) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Enum:        []any{string(FormatPDF), string(FormatCSV)},
		Description: "The format of the sustainability report.",
	}
}

// SustainabilityReportInput is the request of the report flow.
type SustainabilityReportInput struct {
	MiningSiteID      string       `json:"miningSiteId"`
	ReportFormat      ReportFormat `json:"reportFormat"`
	EnvironmentalData string       `json:"environmentalData,omitempty"`
	SiteMetrics       string       `json:"siteMetrics,omitempty"`
}

// SustainabilityReport is the validated model reply of the report flow.
type SustainabilityReport struct {
	ReportContent string       `json:"reportContent" jsonschema_description:"The content of the generated sustainability report."`
	ReportFormat  ReportFormat `json:"reportFormat"`
}

// SatelliteImageInput is the request of the satellite flow. ImageURL is a
// data URI of the form data:<mime>;base64,<data>.
type SatelliteImageInput struct {
	ImageURL        string `json:"imageUrl"`
	SiteDescription string `json:"siteDescription"`
}

// SatelliteAnalysis is the validated model reply of the satellite flow.
type SatelliteAnalysis struct {
	AnomalyDetected    bool   `json:"anomalyDetected" jsonschema_description:"Whether or not anomalies were detected in the image."`
	AnomalyDescription string `json:"anomalyDescription" jsonschema_description:"A description of the anomalies detected in the image."`
}
