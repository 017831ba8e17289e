package types

type Role string

const (
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// Actor is the canonical caller identity, built once at the trust boundary
// from whatever shape the token carries (a single role string or a roles
// array). Downstream code consumes only this form.
type Actor struct {
	ID    string
	Roles map[Role]struct{}
}

func NewActor(id string, roles ...Role) *Actor {
	a := &Actor{ID: id, Roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		a.Roles[r] = struct{}{}
	}
	return a
}

func (a *Actor) HasRole(r Role) bool {
	if a == nil {
		return false
	}
	_, ok := a.Roles[r]
	return ok
}
