package entity

type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleAdvisor Role = "advisor"
	RoleAdmin   Role = "admin"
)

// Actor is the caller identity supplied by the authentication layer.
// The core never resolves credentials itself; it only checks id and role.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsAdvisor() bool {
	return a.Role == RoleAdvisor
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBuyer, RoleSeller, RoleAdvisor, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}
