package domain

import "time"

// UnitPatch is a sparse mutation of a Unit. UnitID and DossierNumero address
// the record and are not patchable.
type UnitPatch struct {
	UnitID        string `json:"zacharie_carcasse_id"`
	DossierNumero string `json:"fei_numero"`

	NumeroBracelet Optional[string] `json:"numero_bracelet,omitzero"`
	Espece         Optional[string] `json:"espece,omitzero"`
	Type           Optional[string] `json:"type,omitzero"`
	NombreDAnimaux Optional[int]    `json:"nombre_d_animaux,omitzero"`

	DateMiseAMort Optional[time.Time] `json:"date_mise_a_mort,omitzero"`

	ExaminateurCarcasseSansAnomalie Optional[bool]      `json:"examinateur_carcasse_sans_anomalie,omitzero"`
	ExaminateurAnomaliesCarcasse    Optional[[]string]  `json:"examinateur_anomalies_carcasse,omitzero"`
	ExaminateurAnomaliesAbats       Optional[[]string]  `json:"examinateur_anomalies_abats,omitzero"`
	ExaminateurCommentaire          Optional[string]    `json:"examinateur_commentaire,omitzero"`
	ExaminateurSignedAt             Optional[time.Time] `json:"examinateur_signed_at,omitzero"`

	PremierDetenteurDepotType     Optional[string]    `json:"premier_detenteur_depot_type,omitzero"`
	PremierDetenteurDepotEntityID Optional[string]    `json:"premier_detenteur_depot_entity_id,omitzero"`
	PremierDetenteurDepotCCGAt    Optional[time.Time] `json:"premier_detenteur_depot_ccg_at,omitzero"`
	PremierDetenteurTransportType Optional[string]    `json:"premier_detenteur_transport_type,omitzero"`
	PremierDetenteurTransportDate Optional[time.Time] `json:"premier_detenteur_transport_date,omitzero"`

	RefusIntermediaireID Optional[string]    `json:"intermediaire_carcasse_refus_intermediaire_id,omitzero"`
	RefusMotif           Optional[string]    `json:"intermediaire_carcasse_refus_motif,omitzero"`
	Manquante            Optional[bool]      `json:"intermediaire_carcasse_manquante,omitzero"`
	LatestHopSignedAt    Optional[time.Time] `json:"latest_intermediaire_signed_at,omitzero"`
	LatestHopUserID      Optional[string]    `json:"latest_intermediaire_user_id,omitzero"`
	LatestHopEntityID    Optional[string]    `json:"latest_intermediaire_entity_id,omitzero"`
	LatestHopNameCache   Optional[string]    `json:"latest_intermediaire_name_cache,omitzero"`

	SVIIPM1Date                Optional[time.Time]   `json:"svi_ipm1_date,omitzero"`
	SVIIPM1PresenteeInspection Optional[bool]        `json:"svi_ipm1_presentee_inspection,omitzero"`
	SVIIPM1UserID              Optional[string]      `json:"svi_ipm1_user_id,omitzero"`
	SVIIPM1UserNameCache       Optional[string]      `json:"svi_ipm1_user_name_cache,omitzero"`
	SVIIPM1Decision            Optional[IPMDecision] `json:"svi_ipm1_decision,omitzero"`
	SVIIPM1LesionsOuMotifs     Optional[[]string]    `json:"svi_ipm1_lesions_ou_motifs,omitzero"`
	SVIIPM1Pieces              Optional[[]string]    `json:"svi_ipm1_pieces,omitzero"`
	SVIIPM1Commentaire         Optional[string]      `json:"svi_ipm1_commentaire,omitzero"`
	SVIIPM1SignedAt            Optional[time.Time]   `json:"svi_ipm1_signed_at,omitzero"`

	SVIIPM2Date                Optional[time.Time]   `json:"svi_ipm2_date,omitzero"`
	SVIIPM2PresenteeInspection Optional[bool]        `json:"svi_ipm2_presentee_inspection,omitzero"`
	SVIIPM2UserID              Optional[string]      `json:"svi_ipm2_user_id,omitzero"`
	SVIIPM2UserNameCache       Optional[string]      `json:"svi_ipm2_user_name_cache,omitzero"`
	SVIIPM2Decision            Optional[IPMDecision] `json:"svi_ipm2_decision,omitzero"`
	SVIIPM2LesionsOuMotifs     Optional[[]string]    `json:"svi_ipm2_lesions_ou_motifs,omitzero"`
	SVIIPM2Pieces              Optional[[]string]    `json:"svi_ipm2_pieces,omitzero"`
	SVIIPM2Commentaire         Optional[string]      `json:"svi_ipm2_commentaire,omitzero"`
	SVIIPM2SignedAt            Optional[time.Time]   `json:"svi_ipm2_signed_at,omitzero"`

	SVICarcasseCommentaire Optional[string] `json:"svi_carcasse_commentaire,omitzero"`

	DeletedAt Optional[time.Time] `json:"deleted_at,omitzero"`
}

// Deletes reports whether the patch soft-deletes the unit.
func (p UnitPatch) Deletes() bool {
	_, ok := p.DeletedAt.Value()
	return ok
}

// HasSVIFields reports whether any key of the svi_ namespace is present.
func (p UnitPatch) HasSVIFields() bool {
	for _, present := range []bool{
		p.SVIIPM1Date.Present(), p.SVIIPM1PresenteeInspection.Present(), p.SVIIPM1UserID.Present(),
		p.SVIIPM1UserNameCache.Present(), p.SVIIPM1Decision.Present(), p.SVIIPM1LesionsOuMotifs.Present(),
		p.SVIIPM1Pieces.Present(), p.SVIIPM1Commentaire.Present(), p.SVIIPM1SignedAt.Present(),
		p.SVIIPM2Date.Present(), p.SVIIPM2PresenteeInspection.Present(), p.SVIIPM2UserID.Present(),
		p.SVIIPM2UserNameCache.Present(), p.SVIIPM2Decision.Present(), p.SVIIPM2LesionsOuMotifs.Present(),
		p.SVIIPM2Pieces.Present(), p.SVIIPM2Commentaire.Present(), p.SVIIPM2SignedAt.Present(),
		p.SVICarcasseCommentaire.Present(),
	} {
		if present {
			return true
		}
	}
	return false
}

// WithoutSVIFields returns a copy of p with every svi_ key unset.
func (p UnitPatch) WithoutSVIFields() UnitPatch {
	p.SVIIPM1Date = Optional[time.Time]{}
	p.SVIIPM1PresenteeInspection = Optional[bool]{}
	p.SVIIPM1UserID = Optional[string]{}
	p.SVIIPM1UserNameCache = Optional[string]{}
	p.SVIIPM1Decision = Optional[IPMDecision]{}
	p.SVIIPM1LesionsOuMotifs = Optional[[]string]{}
	p.SVIIPM1Pieces = Optional[[]string]{}
	p.SVIIPM1Commentaire = Optional[string]{}
	p.SVIIPM1SignedAt = Optional[time.Time]{}

	p.SVIIPM2Date = Optional[time.Time]{}
	p.SVIIPM2PresenteeInspection = Optional[bool]{}
	p.SVIIPM2UserID = Optional[string]{}
	p.SVIIPM2UserNameCache = Optional[string]{}
	p.SVIIPM2Decision = Optional[IPMDecision]{}
	p.SVIIPM2LesionsOuMotifs = Optional[[]string]{}
	p.SVIIPM2Pieces = Optional[[]string]{}
	p.SVIIPM2Commentaire = Optional[string]{}
	p.SVIIPM2SignedAt = Optional[time.Time]{}

	p.SVICarcasseCommentaire = Optional[string]{}
	return p
}

// ApplyTo overwrites every present field of u. DeletedAt is handled by the
// transition engine because deletion cascades.
func (p UnitPatch) ApplyTo(u *Unit) {
	if v, ok := p.NumeroBracelet.Value(); ok {
		u.NumeroBracelet = v
	}
	p.Espece.ApplyTo(&u.Espece)
	p.Type.ApplyTo(&u.Type)
	p.NombreDAnimaux.ApplyTo(&u.NombreDAnimaux)
	p.DateMiseAMort.ApplyTo(&u.DateMiseAMort)

	p.ExaminateurCarcasseSansAnomalie.ApplyTo(&u.ExaminateurCarcasseSansAnomalie)
	ApplySlice(p.ExaminateurAnomaliesCarcasse, &u.ExaminateurAnomaliesCarcasse)
	ApplySlice(p.ExaminateurAnomaliesAbats, &u.ExaminateurAnomaliesAbats)
	p.ExaminateurCommentaire.ApplyTo(&u.ExaminateurCommentaire)
	p.ExaminateurSignedAt.ApplyTo(&u.ExaminateurSignedAt)

	p.PremierDetenteurDepotType.ApplyTo(&u.PremierDetenteurDepotType)
	p.PremierDetenteurDepotEntityID.ApplyTo(&u.PremierDetenteurDepotEntityID)
	p.PremierDetenteurDepotCCGAt.ApplyTo(&u.PremierDetenteurDepotCCGAt)
	p.PremierDetenteurTransportType.ApplyTo(&u.PremierDetenteurTransportType)
	p.PremierDetenteurTransportDate.ApplyTo(&u.PremierDetenteurTransportDate)

	p.RefusIntermediaireID.ApplyTo(&u.RefusIntermediaireID)
	p.RefusMotif.ApplyTo(&u.RefusMotif)
	p.Manquante.ApplyTo(&u.Manquante)
	p.LatestHopSignedAt.ApplyTo(&u.LatestHopSignedAt)
	p.LatestHopUserID.ApplyTo(&u.LatestHopUserID)
	p.LatestHopEntityID.ApplyTo(&u.LatestHopEntityID)
	p.LatestHopNameCache.ApplyTo(&u.LatestHopNameCache)

	p.SVIIPM1Date.ApplyTo(&u.SVIIPM1Date)
	p.SVIIPM1PresenteeInspection.ApplyTo(&u.SVIIPM1PresenteeInspection)
	p.SVIIPM1UserID.ApplyTo(&u.SVIIPM1UserID)
	p.SVIIPM1UserNameCache.ApplyTo(&u.SVIIPM1UserNameCache)
	p.SVIIPM1Decision.ApplyTo(&u.SVIIPM1Decision)
	ApplySlice(p.SVIIPM1LesionsOuMotifs, &u.SVIIPM1LesionsOuMotifs)
	ApplySlice(p.SVIIPM1Pieces, &u.SVIIPM1Pieces)
	p.SVIIPM1Commentaire.ApplyTo(&u.SVIIPM1Commentaire)
	p.SVIIPM1SignedAt.ApplyTo(&u.SVIIPM1SignedAt)

	p.SVIIPM2Date.ApplyTo(&u.SVIIPM2Date)
	p.SVIIPM2PresenteeInspection.ApplyTo(&u.SVIIPM2PresenteeInspection)
	p.SVIIPM2UserID.ApplyTo(&u.SVIIPM2UserID)
	p.SVIIPM2UserNameCache.ApplyTo(&u.SVIIPM2UserNameCache)
	p.SVIIPM2Decision.ApplyTo(&u.SVIIPM2Decision)
	ApplySlice(p.SVIIPM2LesionsOuMotifs, &u.SVIIPM2LesionsOuMotifs)
	ApplySlice(p.SVIIPM2Pieces, &u.SVIIPM2Pieces)
	p.SVIIPM2Commentaire.ApplyTo(&u.SVIIPM2Commentaire)
	p.SVIIPM2SignedAt.ApplyTo(&u.SVIIPM2SignedAt)

	p.SVICarcasseCommentaire.ApplyTo(&u.SVICarcasseCommentaire)
}
