// Package domain defines the custody records, sparse patches, value types and
// rule evaluation primitives used by gibiertrace.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDossier identifies the top-level tracking record (fei).
	EntityDossier EntityType = "fei"
	// EntityUnit identifies a traceable carcass or lot.
	EntityUnit EntityType = "carcasse"
	// EntityHop identifies a single handler decision for a unit.
	EntityHop EntityType = "carcasse_intermediaire"
	// EntityAuditLog identifies a client-originated audit log entry.
	EntityAuditLog EntityType = "log"
	// EntityRelation identifies a may-receive-on-behalf-of relation.
	EntityRelation EntityType = "relation"
	EntityUser     EntityType = "user"
	EntityEntity   EntityType = "entity"
)

// IPMDecision is a veterinary inspection outcome for one inspection pass.
type IPMDecision string

// Inspection decisions recorded on svi_ipm1_decision and svi_ipm2_decision.
const (
	IPMDecisionNotFilled      IPMDecision = "NON_RENSEIGNEE"
	IPMDecisionConsigned      IPMDecision = "MISE_EN_CONSIGNE"
	IPMDecisionAccepted       IPMDecision = "ACCEPTE"
	IPMDecisionSeizurePartial IPMDecision = "SAISIE_PARTIELLE"
	IPMDecisionSeizureTotal   IPMDecision = "SAISIE_TOTALE"
)

// Valid reports whether the decision is part of the known set.
func (d IPMDecision) Valid() bool {
	switch d {
	case IPMDecisionNotFilled, IPMDecisionConsigned, IPMDecisionAccepted, IPMDecisionSeizurePartial, IPMDecisionSeizureTotal:
		return true
	}
	return false
}

// IsSeizure reports whether the decision withdraws the unit from the market.
func (d IPMDecision) IsSeizure() bool {
	return d == IPMDecisionSeizurePartial || d == IPMDecisionSeizureTotal
}

// HopDecision is the outcome a handler records for a unit.
type HopDecision string

// Handler decisions for a custody hop.
const (
	HopDecisionAccepted HopDecision = "ACCEPTE"
	HopDecisionRefused  HopDecision = "REFUS"
	HopDecisionMissing  HopDecision = "MANQUANTE"
)

// Valid reports whether the decision is part of the known set.
func (d HopDecision) Valid() bool {
	switch d {
	case HopDecisionAccepted, HopDecisionRefused, HopDecisionMissing:
		return true
	}
	return false
}

// RelationType qualifies an OnBehalfRelation.
type RelationType string

// RelationWorkingFor lets a user receive dossiers on behalf of an entity.
const RelationWorkingFor RelationType = "WORKING_FOR_ENTITY_RELATED_WITH"

// Owner is a custody holder reference. Role is empty when nobody holds the slot.
type Owner struct {
	Role            Role    `json:"role,omitempty"`
	UserID          *string `json:"user_id,omitempty"`
	EntityID        *string `json:"entity_id,omitempty"`
	UserNameCache   *string `json:"user_name_cache,omitempty"`
	EntityNameCache *string `json:"entity_name_cache,omitempty"`
}

// IsZero reports whether no identifying field of the owner is populated.
func (o Owner) IsZero() bool {
	return o.Role == "" && o.UserID == nil && o.EntityID == nil
}

// Dossier is the top-level tracking record accompanying a batch of game from
// kill to final sanitary decision. Numero is immutable once assigned.
type Dossier struct {
	Numero string `json:"numero"`

	CurrentOwnerRole            *Role   `json:"fei_current_owner_role"`
	CurrentOwnerUserID          *string `json:"fei_current_owner_user_id"`
	CurrentOwnerEntityID        *string `json:"fei_current_owner_entity_id"`
	CurrentOwnerUserNameCache   *string `json:"fei_current_owner_user_name_cache"`
	CurrentOwnerEntityNameCache *string `json:"fei_current_owner_entity_name_cache"`

	NextOwnerRole            *Role   `json:"fei_next_owner_role"`
	NextOwnerUserID          *string `json:"fei_next_owner_user_id"`
	NextOwnerEntityID        *string `json:"fei_next_owner_entity_id"`
	NextOwnerUserNameCache   *string `json:"fei_next_owner_user_name_cache"`
	NextOwnerEntityNameCache *string `json:"fei_next_owner_entity_name_cache"`

	PrevOwnerRole     *Role   `json:"fei_prev_owner_role"`
	PrevOwnerUserID   *string `json:"fei_prev_owner_user_id"`
	PrevOwnerEntityID *string `json:"fei_prev_owner_entity_id"`

	DateMiseAMort                     *time.Time `json:"date_mise_a_mort"`
	CommuneMiseAMort                  *string    `json:"commune_mise_a_mort"`
	HeureMiseAMortPremiereCarcasse    *string    `json:"heure_mise_a_mort_premiere_carcasse"`
	HeureEviscerationDerniereCarcasse *string    `json:"heure_evisceration_derniere_carcasse"`

	ExaminateurInitialUserID          *string    `json:"examinateur_initial_user_id"`
	ExaminateurInitialApprobation     *bool      `json:"examinateur_initial_approbation_mise_sur_le_marche"`
	ExaminateurInitialDateApprobation *time.Time `json:"examinateur_initial_date_approbation_mise_sur_le_marche"`

	PremierDetenteurUserID        *string    `json:"premier_detenteur_user_id"`
	PremierDetenteurEntityID      *string    `json:"premier_detenteur_entity_id"`
	PremierDetenteurNameCache     *string    `json:"premier_detenteur_name_cache"`
	PremierDetenteurDepotType     *string    `json:"premier_detenteur_depot_type"`
	PremierDetenteurDepotEntityID *string    `json:"premier_detenteur_depot_entity_id"`
	PremierDetenteurDepotCCGAt    *time.Time `json:"premier_detenteur_depot_ccg_at"`
	PremierDetenteurTransportType *string    `json:"premier_detenteur_transport_type"`
	PremierDetenteurTransportDate *time.Time `json:"premier_detenteur_transport_date"`

	SVIAssignedAt     *time.Time `json:"svi_assigned_at"`
	SVIEntityID       *string    `json:"svi_entity_id"`
	SVIUserID         *string    `json:"svi_user_id"`
	SVIClosedAt       *time.Time `json:"svi_closed_at"`
	SVIClosedByUserID *string    `json:"svi_closed_by_user_id"`

	IntermediaireClosedAt         *time.Time `json:"intermediaire_closed_at"`
	IntermediaireClosedByUserID   *string    `json:"intermediaire_closed_by_user_id"`
	IntermediaireClosedByEntityID *string    `json:"intermediaire_closed_by_entity_id"`

	AutomaticClosedAt *time.Time `json:"automatic_closed_at"`
	DeletedAt         *time.Time `json:"deleted_at"`

	CreatedByUserID string    `json:"created_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// CurrentOwner returns the current holder reference.
func (d Dossier) CurrentOwner() Owner {
	return Owner{
		Role:            derefRole(d.CurrentOwnerRole),
		UserID:          d.CurrentOwnerUserID,
		EntityID:        d.CurrentOwnerEntityID,
		UserNameCache:   d.CurrentOwnerUserNameCache,
		EntityNameCache: d.CurrentOwnerEntityNameCache,
	}
}

// NextOwner returns the pending handoff target, zero when none is pending.
func (d Dossier) NextOwner() Owner {
	return Owner{
		Role:            derefRole(d.NextOwnerRole),
		UserID:          d.NextOwnerUserID,
		EntityID:        d.NextOwnerEntityID,
		UserNameCache:   d.NextOwnerUserNameCache,
		EntityNameCache: d.NextOwnerEntityNameCache,
	}
}

// PrevOwner returns the previous holder reference.
func (d Dossier) PrevOwner() Owner {
	return Owner{Role: derefRole(d.PrevOwnerRole), UserID: d.PrevOwnerUserID, EntityID: d.PrevOwnerEntityID}
}

// ClosureCount returns how many closure markers are set.
func (d Dossier) ClosureCount() int {
	n := 0
	for _, ts := range []*time.Time{d.SVIClosedAt, d.IntermediaireClosedAt, d.AutomaticClosedAt} {
		if ts != nil {
			n++
		}
	}
	return n
}

// IsTerminal reports whether any closure marker is set.
func (d Dossier) IsTerminal() bool {
	return d.ClosureCount() > 0
}

// IsDeleted reports whether the dossier was soft-deleted.
func (d Dossier) IsDeleted() bool {
	return d.DeletedAt != nil
}

// Unit is a traceable physical item or lot under a dossier, identified by a
// legal tag. UnitID is globally unique; DossierNumero binds it to its dossier.
type Unit struct {
	UnitID         string  `json:"zacharie_carcasse_id"`
	DossierNumero  string  `json:"fei_numero"`
	NumeroBracelet string  `json:"numero_bracelet"`
	Espece         *string `json:"espece"`
	Type           *string `json:"type"`
	NombreDAnimaux *int    `json:"nombre_d_animaux"`

	DateMiseAMort *time.Time `json:"date_mise_a_mort"`

	ExaminateurCarcasseSansAnomalie *bool      `json:"examinateur_carcasse_sans_anomalie"`
	ExaminateurAnomaliesCarcasse    []string   `json:"examinateur_anomalies_carcasse"`
	ExaminateurAnomaliesAbats       []string   `json:"examinateur_anomalies_abats"`
	ExaminateurCommentaire          *string    `json:"examinateur_commentaire"`
	ExaminateurSignedAt             *time.Time `json:"examinateur_signed_at"`

	PremierDetenteurDepotType     *string    `json:"premier_detenteur_depot_type"`
	PremierDetenteurDepotEntityID *string    `json:"premier_detenteur_depot_entity_id"`
	PremierDetenteurDepotCCGAt    *time.Time `json:"premier_detenteur_depot_ccg_at"`
	PremierDetenteurTransportType *string    `json:"premier_detenteur_transport_type"`
	PremierDetenteurTransportDate *time.Time `json:"premier_detenteur_transport_date"`

	RefusIntermediaireID *string    `json:"intermediaire_carcasse_refus_intermediaire_id"`
	RefusMotif           *string    `json:"intermediaire_carcasse_refus_motif"`
	Manquante            *bool      `json:"intermediaire_carcasse_manquante"`
	LatestHopSignedAt    *time.Time `json:"latest_intermediaire_signed_at"`
	LatestHopUserID      *string    `json:"latest_intermediaire_user_id"`
	LatestHopEntityID    *string    `json:"latest_intermediaire_entity_id"`
	LatestHopNameCache   *string    `json:"latest_intermediaire_name_cache"`

	SVIIPM1Date                *time.Time   `json:"svi_ipm1_date"`
	SVIIPM1PresenteeInspection *bool        `json:"svi_ipm1_presentee_inspection"`
	SVIIPM1UserID              *string      `json:"svi_ipm1_user_id"`
	SVIIPM1UserNameCache       *string      `json:"svi_ipm1_user_name_cache"`
	SVIIPM1Decision            *IPMDecision `json:"svi_ipm1_decision"`
	SVIIPM1LesionsOuMotifs     []string     `json:"svi_ipm1_lesions_ou_motifs"`
	SVIIPM1Pieces              []string     `json:"svi_ipm1_pieces"`
	SVIIPM1Commentaire         *string      `json:"svi_ipm1_commentaire"`
	SVIIPM1SignedAt            *time.Time   `json:"svi_ipm1_signed_at"`

	SVIIPM2Date                *time.Time   `json:"svi_ipm2_date"`
	SVIIPM2PresenteeInspection *bool        `json:"svi_ipm2_presentee_inspection"`
	SVIIPM2UserID              *string      `json:"svi_ipm2_user_id"`
	SVIIPM2UserNameCache       *string      `json:"svi_ipm2_user_name_cache"`
	SVIIPM2Decision            *IPMDecision `json:"svi_ipm2_decision"`
	SVIIPM2LesionsOuMotifs     []string     `json:"svi_ipm2_lesions_ou_motifs"`
	SVIIPM2Pieces              []string     `json:"svi_ipm2_pieces"`
	SVIIPM2Commentaire         *string      `json:"svi_ipm2_commentaire"`
	SVIIPM2SignedAt            *time.Time   `json:"svi_ipm2_signed_at"`

	SVICarcasseCommentaire *string `json:"svi_carcasse_commentaire"`

	DeletedAt *time.Time `json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the unit was soft-deleted.
func (u Unit) IsDeleted() bool {
	return u.DeletedAt != nil
}

// CustodyHop is a single handler's accept/refuse/missing decision for a unit.
type CustodyHop struct {
	ID               string       `json:"id"`
	DossierNumero    string       `json:"fei_numero"`
	UnitID           string       `json:"zacharie_carcasse_id"`
	HandlerID        string       `json:"intermediaire_id"`
	HandlerRole      *Role        `json:"intermediaire_role"`
	HandlerUserID    *string      `json:"intermediaire_user_id"`
	HandlerEntityID  *string      `json:"intermediaire_entity_id"`
	NumeroBracelet   string       `json:"numero_bracelet"`
	Decision         *HopDecision `json:"decision"`
	RefusMotif       *string      `json:"refus_motif"`
	TakenAt          *time.Time   `json:"prise_en_charge_at"`
	DecidedAt        *time.Time   `json:"decision_at"`
	Commentaire      *string      `json:"commentaire"`
	NextHandlerCache *string      `json:"intermediaire_prochain_detenteur_id_cache"`
	DeletedAt        *time.Time   `json:"deleted_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// HopKey is the composite identity of a custody hop.
type HopKey struct {
	DossierNumero string
	UnitID        string
	HandlerID     string
}

// Key returns the composite identity of the hop.
func (h CustodyHop) Key() HopKey {
	return HopKey{DossierNumero: h.DossierNumero, UnitID: h.UnitID, HandlerID: h.HandlerID}
}

// String renders the key as a stable bucket identifier.
func (k HopKey) String() string {
	return k.DossierNumero + "/" + k.UnitID + "/" + k.HandlerID
}

// AuditLogEntry is an append-only record of a client-originated action.
type AuditLogEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	UserRole      *Role           `json:"user_role"`
	Action        string          `json:"action"`
	DossierNumero *string         `json:"fei_numero"`
	UnitID        *string         `json:"zacharie_carcasse_id"`
	HandlerID     *string         `json:"intermediaire_id"`
	History       json.RawMessage `json:"history"`
	Date          *time.Time      `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OnBehalfRelation lets Owner receive dossiers addressed to Entity.
type OnBehalfRelation struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"owner_id"`
	EntityID  string       `json:"entity_id"`
	Type      RelationType `json:"relation"`
	CreatedAt time.Time    `json:"created_at"`
}

// Key returns the uniqueness key of the relation.
func (r OnBehalfRelation) Key() string {
	return RelationKey(r.OwnerID, r.EntityID, r.Type)
}

// RelationKey builds the uniqueness key of an OnBehalfRelation.
func RelationKey(ownerID, entityID string, kind RelationType) string {
	return ownerID + "/" + entityID + "/" + string(kind)
}

// User is a directory record used to resolve notification recipients.
type User struct {
	ID            string   `json:"id" yaml:"id"`
	Email         string   `json:"email" yaml:"email"`
	Prenom        string   `json:"prenom" yaml:"prenom"`
	NomDeFamille  string   `json:"nom_de_famille" yaml:"nom_de_famille"`
	Roles         []Role   `json:"roles" yaml:"roles"`
	Activated     bool     `json:"activated" yaml:"activated"`
	Notifications []string `json:"notifications" yaml:"notifications"`
}

// DisplayName renders the user's full name.
func (u User) DisplayName() string {
	switch {
	case u.Prenom == "":
		return u.NomDeFamille
	case u.NomDeFamille == "":
		return u.Prenom
	}
	return u.Prenom + " " + u.NomDeFamille
}

// WantsEmail reports whether the user opted into email notifications.
func (u User) WantsEmail() bool {
	for _, channel := range u.Notifications {
		if channel == "EMAIL" {
			return true
		}
	}
	return false
}

// Entity is an organisation (collector, plant, collection centre, inspection service).
type Entity struct {
	ID            string   `json:"id" yaml:"id"`
	Type          Role     `json:"type" yaml:"type"`
	RaisonSociale string   `json:"raison_sociale" yaml:"raison_sociale"`
	MemberIDs     []string `json:"member_ids" yaml:"member_ids"`
}

// HasMember reports whether userID belongs to the entity.
func (e Entity) HasMember(userID string) bool {
	for _, id := range e.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DossierView is a dossier joined with its live units and hops.
type DossierView struct {
	Dossier
	Units []Unit       `json:"carcasses"`
	Hops  []CustodyHop `json:"carcasses_intermediaires"`
}

func derefRole(r *Role) Role {
	if r == nil {
		return ""
	}
	return *r
}
