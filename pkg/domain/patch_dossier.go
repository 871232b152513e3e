package domain

import "time"

// DossierPatch is a sparse mutation of a Dossier. Numero addresses the record;
// every other key is applied only when present in the payload.
type DossierPatch struct {
	Numero string `json:"numero"`
	// ExpectedVersion, when supplied, rejects the patch if the stored dossier
	// moved on since the client last read it.
	ExpectedVersion *int64 `json:"expected_version,omitempty"`

	CurrentOwnerRole            Optional[Role]   `json:"fei_current_owner_role,omitzero"`
	CurrentOwnerUserID          Optional[string] `json:"fei_current_owner_user_id,omitzero"`
	CurrentOwnerEntityID        Optional[string] `json:"fei_current_owner_entity_id,omitzero"`
	CurrentOwnerUserNameCache   Optional[string] `json:"fei_current_owner_user_name_cache,omitzero"`
	CurrentOwnerEntityNameCache Optional[string] `json:"fei_current_owner_entity_name_cache,omitzero"`

	NextOwnerRole            Optional[Role]   `json:"fei_next_owner_role,omitzero"`
	NextOwnerUserID          Optional[string] `json:"fei_next_owner_user_id,omitzero"`
	NextOwnerEntityID        Optional[string] `json:"fei_next_owner_entity_id,omitzero"`
	NextOwnerUserNameCache   Optional[string] `json:"fei_next_owner_user_name_cache,omitzero"`
	NextOwnerEntityNameCache Optional[string] `json:"fei_next_owner_entity_name_cache,omitzero"`

	PrevOwnerRole     Optional[Role]   `json:"fei_prev_owner_role,omitzero"`
	PrevOwnerUserID   Optional[string] `json:"fei_prev_owner_user_id,omitzero"`
	PrevOwnerEntityID Optional[string] `json:"fei_prev_owner_entity_id,omitzero"`

	DateMiseAMort                     Optional[time.Time] `json:"date_mise_a_mort,omitzero"`
	CommuneMiseAMort                  Optional[string]    `json:"commune_mise_a_mort,omitzero"`
	HeureMiseAMortPremiereCarcasse    Optional[string]    `json:"heure_mise_a_mort_premiere_carcasse,omitzero"`
	HeureEviscerationDerniereCarcasse Optional[string]    `json:"heure_evisceration_derniere_carcasse,omitzero"`

	ExaminateurInitialUserID          Optional[string]    `json:"examinateur_initial_user_id,omitzero"`
	ExaminateurInitialApprobation     Optional[bool]      `json:"examinateur_initial_approbation_mise_sur_le_marche,omitzero"`
	ExaminateurInitialDateApprobation Optional[time.Time] `json:"examinateur_initial_date_approbation_mise_sur_le_marche,omitzero"`

	PremierDetenteurUserID        Optional[string]    `json:"premier_detenteur_user_id,omitzero"`
	PremierDetenteurEntityID      Optional[string]    `json:"premier_detenteur_entity_id,omitzero"`
	PremierDetenteurNameCache     Optional[string]    `json:"premier_detenteur_name_cache,omitzero"`
	PremierDetenteurDepotType     Optional[string]    `json:"premier_detenteur_depot_type,omitzero"`
	PremierDetenteurDepotEntityID Optional[string]    `json:"premier_detenteur_depot_entity_id,omitzero"`
	PremierDetenteurDepotCCGAt    Optional[time.Time] `json:"premier_detenteur_depot_ccg_at,omitzero"`
	PremierDetenteurTransportType Optional[string]    `json:"premier_detenteur_transport_type,omitzero"`
	PremierDetenteurTransportDate Optional[time.Time] `json:"premier_detenteur_transport_date,omitzero"`

	SVIAssignedAt     Optional[time.Time] `json:"svi_assigned_at,omitzero"`
	SVIEntityID       Optional[string]    `json:"svi_entity_id,omitzero"`
	SVIUserID         Optional[string]    `json:"svi_user_id,omitzero"`
	SVIClosedAt       Optional[time.Time] `json:"svi_closed_at,omitzero"`
	SVIClosedByUserID Optional[string]    `json:"svi_closed_by_user_id,omitzero"`

	IntermediaireClosedAt         Optional[time.Time] `json:"intermediaire_closed_at,omitzero"`
	IntermediaireClosedByUserID   Optional[string]    `json:"intermediaire_closed_by_user_id,omitzero"`
	IntermediaireClosedByEntityID Optional[string]    `json:"intermediaire_closed_by_entity_id,omitzero"`

	AutomaticClosedAt Optional[time.Time] `json:"automatic_closed_at,omitzero"`
	DeletedAt         Optional[time.Time] `json:"deleted_at,omitzero"`
}

// Deletes reports whether the patch soft-deletes the dossier.
func (p DossierPatch) Deletes() bool {
	_, ok := p.DeletedAt.Value()
	return ok
}

// ApplyTo overwrites every present field of d. DeletedAt is handled by the
// transition engine because deletion cascades.
func (p DossierPatch) ApplyTo(d *Dossier) {
	p.CurrentOwnerRole.ApplyTo(&d.CurrentOwnerRole)
	p.CurrentOwnerUserID.ApplyTo(&d.CurrentOwnerUserID)
	p.CurrentOwnerEntityID.ApplyTo(&d.CurrentOwnerEntityID)
	p.CurrentOwnerUserNameCache.ApplyTo(&d.CurrentOwnerUserNameCache)
	p.CurrentOwnerEntityNameCache.ApplyTo(&d.CurrentOwnerEntityNameCache)

	p.NextOwnerRole.ApplyTo(&d.NextOwnerRole)
	p.NextOwnerUserID.ApplyTo(&d.NextOwnerUserID)
	p.NextOwnerEntityID.ApplyTo(&d.NextOwnerEntityID)
	p.NextOwnerUserNameCache.ApplyTo(&d.NextOwnerUserNameCache)
	p.NextOwnerEntityNameCache.ApplyTo(&d.NextOwnerEntityNameCache)

	p.PrevOwnerRole.ApplyTo(&d.PrevOwnerRole)
	p.PrevOwnerUserID.ApplyTo(&d.PrevOwnerUserID)
	p.PrevOwnerEntityID.ApplyTo(&d.PrevOwnerEntityID)

	p.DateMiseAMort.ApplyTo(&d.DateMiseAMort)
	p.CommuneMiseAMort.ApplyTo(&d.CommuneMiseAMort)
	p.HeureMiseAMortPremiereCarcasse.ApplyTo(&d.HeureMiseAMortPremiereCarcasse)
	p.HeureEviscerationDerniereCarcasse.ApplyTo(&d.HeureEviscerationDerniereCarcasse)

	p.ExaminateurInitialUserID.ApplyTo(&d.ExaminateurInitialUserID)
	p.ExaminateurInitialApprobation.ApplyTo(&d.ExaminateurInitialApprobation)
	p.ExaminateurInitialDateApprobation.ApplyTo(&d.ExaminateurInitialDateApprobation)

	p.PremierDetenteurUserID.ApplyTo(&d.PremierDetenteurUserID)
	p.PremierDetenteurEntityID.ApplyTo(&d.PremierDetenteurEntityID)
	p.PremierDetenteurNameCache.ApplyTo(&d.PremierDetenteurNameCache)
	p.PremierDetenteurDepotType.ApplyTo(&d.PremierDetenteurDepotType)
	p.PremierDetenteurDepotEntityID.ApplyTo(&d.PremierDetenteurDepotEntityID)
	p.PremierDetenteurDepotCCGAt.ApplyTo(&d.PremierDetenteurDepotCCGAt)
	p.PremierDetenteurTransportType.ApplyTo(&d.PremierDetenteurTransportType)
	p.PremierDetenteurTransportDate.ApplyTo(&d.PremierDetenteurTransportDate)

	p.SVIAssignedAt.ApplyTo(&d.SVIAssignedAt)
	p.SVIEntityID.ApplyTo(&d.SVIEntityID)
	p.SVIUserID.ApplyTo(&d.SVIUserID)
	p.SVIClosedAt.ApplyTo(&d.SVIClosedAt)
	p.SVIClosedByUserID.ApplyTo(&d.SVIClosedByUserID)

	p.IntermediaireClosedAt.ApplyTo(&d.IntermediaireClosedAt)
	p.IntermediaireClosedByUserID.ApplyTo(&d.IntermediaireClosedByUserID)
	p.IntermediaireClosedByEntityID.ApplyTo(&d.IntermediaireClosedByEntityID)

	p.AutomaticClosedAt.ApplyTo(&d.AutomaticClosedAt)
}
