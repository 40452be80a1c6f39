package auth

import "strings"

// Role is the caller's claims-administration role carried in the token.
type Role string

// Roles in ascending order of privilege. A claim officer may edit claims
// data; only a batch admin may launch batch runs.
const (
	RoleViewer       Role = "viewer"
	RoleClaimOfficer Role = "claim_officer"
	RoleBatchAdmin   Role = "batch_admin"
)

var roleRanks = map[Role]int{
	RoleViewer:       1,
	RoleClaimOfficer: 2,
	RoleBatchAdmin:   3,
}

// Tokens minted before the claims role names still carry these.
var roleAliases = map[string]Role{
	"operator": RoleClaimOfficer,
	"admin":    RoleBatchAdmin,
}

// NormalizeRole maps a token role, case-insensitively and including the
// older aliases, onto a known Role.
func NormalizeRole(value string) (Role, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if alias, ok := roleAliases[value]; ok {
		return alias, true
	}
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required grants.
// Unknown roles grant nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank, ok := roleRanks[role]
	return ok && rank >= roleRanks[required]
}
