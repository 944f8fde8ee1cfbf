package models

// Role is the caller's asserted role, supplied by the external identity provider
type Role string

// Role constants
const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Identity is the trusted (user, role) pair attached to every call
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
