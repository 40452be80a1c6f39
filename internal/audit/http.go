package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"claim-batch/internal/auth"
)

// ClientIP returns the caller address. Behind chi's RealIP middleware
// RemoteAddr already carries the forwarded address.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FromRequest builds an entry attributed to the authenticated caller of r.
// It reports false for anonymous requests, which are not audited.
func FromRequest(r *http.Request, action, resourceType, resourceID string, meta any) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	ctx := r.Context()
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		return Entry{}, false
	}
	entry := Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if meta != nil {
		if payload, err := json.Marshal(meta); err == nil {
			entry.Metadata = payload
		}
	}
	return entry, true
}
