// Package permissions maps server roles to the client actions they unlock
// and checks permission lists with support for wildcards.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "inventory.*")
//   - "resource.action" - Specific action (e.g., "outbound.audit")
package permissions

import (
	"strings"
)

// Client actions
const (
	InventoryRead  = "inventory.read"
	InventoryWrite = "inventory.write"
	MaterialRead   = "material.read"
	MaterialWrite  = "material.write"
	OutboundApply  = "outbound.apply"
	OutboundAudit  = "outbound.audit"
	OutboundFinish = "outbound.finish"
)

// Only administrators decide outbound requests; every other role sees the
// rest of the application.
var rolePermissions = map[string][]string{
	"Admin":  {"*"},
	"Keeper": {"inventory.*", "material.*", OutboundApply, OutboundFinish},
	"User":   {"inventory.*", "material.*", OutboundApply, OutboundFinish},
}

// ForRole returns the permissions of a server role. Unknown roles get the
// default User permissions.
func ForRole(role string) []string {
	if perms, ok := rolePermissions[role]; ok {
		return perms
	}
	return rolePermissions["User"]
}

// RoleHas reports whether role grants the required permission.
func RoleHas(role, required string) bool {
	return HasPermission(ForRole(role), required)
}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "inventory.*" matches "inventory.read", "inventory.write", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true // No permission required
	}

	for _, p := range userPerms {
		if p == "*" {
			return true
		}
		if p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}
