package model

// Role is a local-access privilege level. Roles are totally ordered:
// viewer < user < manager < owner.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleUser
	RoleManager
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleViewer:
		return "viewer"
	case RoleUser:
		return "user"
	case RoleManager:
		return "manager"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// ParseRole maps a wire name to a Role. Unknown names map to RoleNone.
func ParseRole(s string) Role {
	switch s {
	case "viewer":
		return RoleViewer
	case "user":
		return RoleUser
	case "manager":
		return RoleManager
	case "owner":
		return RoleOwner
	default:
		return RoleNone
	}
}

// Meets reports whether r satisfies a minimal-role requirement of min.
func (r Role) Meets(min Role) bool { return r >= min }
