package sites

import (
	"terralens/internal/schema"
)

// Collection is the document collection holding mining sites.
const Collection = "sites"

// OrderField is the field live queries are ordered by.
const OrderField = "name"

// Status is the operating state of a site. There are no transition rules.
type Status string

const (
	StatusActive         Status = "Active"
	StatusInactive       Status = "Inactive"
	StatusDecommissioned Status = "Decommissioned"
)

// Statuses lists every accepted status.
func Statuses() []string {
	return []string{string(StatusActive), string(StatusInactive), string(StatusDecommissioned)}
}

// OperationalData holds daily resource figures.
type OperationalData struct {
	ExtractionRate    float64 `json:"extractionRate" jsonschema:"tons per day"`
	EnergyConsumption float64 `json:"energyConsumption" jsonschema:"MWh per day"`
	WaterUsage        float64 `json:"waterUsage" jsonschema:"cubic meters per day"`
}

// MiningSite is one monitored extraction location. ID is assigned by the store
// and stays empty until the site is persisted.
type MiningSite struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name"`
	Location        string          `json:"location"`
	Operator        string          `json:"operator"`
	Status          Status          `json:"status"`
	OperationalData OperationalData `json:"operationalData"`
}

// Validate applies the input rules used by the site form. Stored documents are
// never re-validated.
func (s MiningSite) Validate() error {
	var c schema.Checker
	c.Required("name", s.Name, "Site name is required.")
	c.Required("location", s.Location, "Location is required.")
	c.Required("operator", s.Operator, "Operator is required.")
	c.OneOf("status", string(s.Status), Statuses()...)
	c.NonNegative("operationalData.extractionRate", s.OperationalData.ExtractionRate)
	c.NonNegative("operationalData.energyConsumption", s.OperationalData.EnergyConsumption)
	c.NonNegative("operationalData.waterUsage", s.OperationalData.WaterUsage)
	return c.Err("mining site")
}
