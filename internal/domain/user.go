package domain

import "github.com/labtrack/labtrack-client/pkg/permissions"

// Role names as issued by the server
const (
	RoleAdmin  = "Admin"
	RoleKeeper = "Keeper"
	RoleUser   = "User"
)

// User is the session's identity. It is only ever learned from the login
// response.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	RealName string `json:"real_name,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status,omitempty"`
}

// RoleName returns the display name of the user's role.
func (u *User) RoleName() string {
	if u == nil {
		return ""
	}
	switch u.Role {
	case RoleAdmin:
		return "Administrator"
	case RoleKeeper:
		return "Inspector"
	default:
		return u.Role
	}
}

// Can reports whether the user's role grants a permission.
func (u *User) Can(permission string) bool {
	return u != nil && permissions.RoleHas(u.Role, permission)
}

// CanApprove reports whether the role may decide outbound requests.
func (u *User) CanApprove() bool {
	return u.Can(permissions.OutboundAudit)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
