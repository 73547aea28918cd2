package sites

import "time"

// Event types emitted after successful writes.
const (
	EventCreated = "site.created"
	EventUpdated = "site.updated"
	EventDeleted = "site.deleted"
)

// SiteEvent describes a completed site write.
type SiteEvent struct {
	Type       string      `json:"type"`
	SiteID     string      `json:"siteId"`
	Site       *MiningSite `json:"site,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}
