package model

type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleTeacher    Role = "TEACHER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Principal is the caller identity taken from a verified bearer token.
type Principal struct {
	UserID         string
	OrganizationID string
	Role           Role
}

// IsStaff reports whether the principal may read other users' attempts in its organization.
func (p Principal) IsStaff() bool {
	switch p.Role {
	case RoleTeacher, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
