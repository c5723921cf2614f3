// Package domain holds identity types shared across transport, middleware,
// and services.
package domain

// Identity is the resolved caller: a stable subject identifier plus the role
// set granted by the token issuer. Absence of an Identity means the caller is
// anonymous.
type Identity struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

// HasRole reports whether the identity holds the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity holds at least one of the given
// roles. An empty required set matches nothing.
func (i Identity) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}
