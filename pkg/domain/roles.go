package domain

// Role is a custody capability held by a user or carried by an entity.
type Role string

// Handler roles in custody order, plus the administrative role.
const (
	RoleExaminateurInitial Role = "EXAMINATEUR_INITIAL"
	RolePremierDetenteur   Role = "PREMIER_DETENTEUR"
	RoleCollecteurPro      Role = "COLLECTEUR_PRO"
	RoleETG                Role = "ETG"
	RoleCCG                Role = "CCG"
	RoleSVI                Role = "SVI"
	RoleAdmin              Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleExaminateurInitial, RolePremierDetenteur, RoleCollecteurPro, RoleETG, RoleCCG, RoleSVI, RoleAdmin:
		return true
	}
	return false
}

// IsHandler reports whether the role can hold custody of a dossier.
func (r Role) IsHandler() bool {
	return r.Valid() && r != RoleAdmin
}

// Ptr returns a pointer to a copy of r.
func (r Role) Ptr() *Role {
	return &r
}

// Actor is the authenticated principal acting on the store.
type Actor struct {
	ID        string `json:"id"`
	Roles     []Role `json:"roles"`
	Activated bool   `json:"activated"`
	// EntityIDs lists the entities the actor works for.
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the administrative role.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// CanCreateDossier reports whether the actor may open a new dossier.
func (a Actor) CanCreateDossier() bool {
	return a.Activated && a.HasRole(RoleExaminateurInitial)
}

// WorksFor reports whether the actor acts on behalf of entityID.
func (a Actor) WorksFor(entityID string) bool {
	for _, id := range a.EntityIDs {
		if id == entityID {
			return true
		}
	}
	return false
}
