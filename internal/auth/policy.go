package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to requests whose path matches Path (or starts with
// it when Prefix is set). Write applies to every method other than GET
// and HEAD.
type Rule struct {
	Path   string
	Prefix bool
	Read   Role
	Write  Role
}

func (r Rule) matches(path string) bool {
	if r.Prefix {
		return strings.HasPrefix(path, r.Path)
	}
	return path == r.Path
}

// DefaultRules cover the batch and report endpoints. The trailing /api/
// rule is the fallback for anything else under the API.
var DefaultRules = []Rule{
	{Path: "/api/v1/batch-runs/status", Read: RoleViewer, Write: RoleViewer},
	{Path: "/api/v1/batch-runs", Read: RoleViewer, Write: RoleBatchAdmin},
	{Path: "/api/v1/reports/", Prefix: true, Read: RoleViewer, Write: RoleBatchAdmin},
	{Path: "/api/", Prefix: true, Read: RoleViewer, Write: RoleClaimOfficer},
}

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
	Rules          []Rule
}

// NewDefaultPolicy builds a policy over DefaultRules with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes, Rules: DefaultRules}
}

// IsExempt reports whether r skips authentication. CORS preflights are always exempt.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil || r.Method == http.MethodOptions {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the minimum role for r from the first matching rule.
// Paths outside every rule need no role.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}
	for _, rule := range p.Rules {
		if !rule.matches(path) && !rule.matches(r.URL.Path) {
			continue
		}
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			return rule.Read, true
		}
		return rule.Write, true
	}
	return "", false
}
