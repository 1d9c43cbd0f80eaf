package domain

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// Principal is the verified caller of a request, taken from bearer token claims.
type Principal struct {
	UserID string
	PlanID string
	Role   UserRole
	Locale string
}

// IsAdmin reports whether the principal may use administrative operations.
func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin
}
