package domain

// Actor is the caller of a service operation. The zero value is an
// anonymous visitor.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Anonymous reports whether the actor is not signed in.
func (a Actor) Anonymous() bool { return a.UserID == "" }

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.UserID != "" && a.Role == RoleAdmin }

// CanModify reports whether the actor may change a row owned by ownerID.
func (a Actor) CanModify(ownerID string) bool {
	if a.Anonymous() {
		return false
	}
	return a.IsAdmin() || a.UserID == ownerID
}

// Scope is the cache scope of the actor: its user id, or "" when anonymous.
func (a Actor) Scope() string { return a.UserID }
