package settings

import (
	"terralens/internal/schema"
)

// Collection and DocumentID locate the single settings document.
const (
	Collection = "settings"
	DocumentID = "system"
)

// Theme values accepted by the appearance section.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Notifications controls anomaly alerts.
type Notifications struct {
	Enabled bool   `json:"enabled"`
	Email   string `json:"email"`
}

// Analytics holds defaults for the AI flows.
type Analytics struct {
	DefaultReportFormat string `json:"defaultReportFormat"`
	AlertSensitivity    int    `json:"alertSensitivity"`
}

// Appearance holds dashboard display preferences.
type Appearance struct {
	Theme string `json:"theme"`
}

// SystemSettings is the admin-managed configuration document.
type SystemSettings struct {
	Notifications Notifications `json:"notifications"`
	Analytics     Analytics     `json:"analytics"`
	Appearance    Appearance    `json:"appearance"`
}

// Defaults returns the settings used before an admin saves any.
func Defaults() SystemSettings {
	return SystemSettings{
		Notifications: Notifications{Enabled: true, Email: "admin-alerts@terralens.com"},
		Analytics:     Analytics{DefaultReportFormat: "PDF", AlertSensitivity: 80},
		Appearance:    Appearance{Theme: ThemeSystem},
	}
}

// Validate checks every field of the settings form.
func (s SystemSettings) Validate() error {
	var c schema.Checker
	c.OptionalEmail("notifications.email", s.Notifications.Email)
	c.OneOf("analytics.defaultReportFormat", s.Analytics.DefaultReportFormat, "PDF", "CSV")
	c.Range("analytics.alertSensitivity", float64(s.Analytics.AlertSensitivity), 0, 100)
	c.OneOf("appearance.theme", s.Appearance.Theme, ThemeLight, ThemeDark, ThemeSystem)
	return c.Err("system settings")
}
