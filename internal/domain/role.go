package domain

// Role marks a transfer leg. Both roles use the same transfer mechanics.
type Role string

const (
	RoleBuy  Role = "buy"
	RoleSell Role = "sell"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
