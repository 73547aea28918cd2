package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"terralens/internal/auth"
)

// ClientIP extracts the caller address, honouring proxy headers.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// FromRequest builds an entry carrying the caller identity of r.
func FromRequest(r *http.Request, action, resourceType, resourceID string, metadata map[string]any) Entry {
	var meta json.RawMessage
	if len(metadata) > 0 {
		meta, _ = json.Marshal(metadata)
	}
	return Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		IP:           ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
}
