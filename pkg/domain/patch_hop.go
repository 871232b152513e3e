package domain

import "time"

// HopPatch is a sparse mutation of a CustodyHop addressed by its composite key.
type HopPatch struct {
	DossierNumero string `json:"fei_numero"`
	UnitID        string `json:"zacharie_carcasse_id"`
	HandlerID     string `json:"intermediaire_id"`

	HandlerRole      Optional[Role]        `json:"intermediaire_role,omitzero"`
	HandlerUserID    Optional[string]      `json:"intermediaire_user_id,omitzero"`
	HandlerEntityID  Optional[string]      `json:"intermediaire_entity_id,omitzero"`
	NumeroBracelet   Optional[string]      `json:"numero_bracelet,omitzero"`
	Decision         Optional[HopDecision] `json:"decision,omitzero"`
	RefusMotif       Optional[string]      `json:"refus_motif,omitzero"`
	TakenAt          Optional[time.Time]   `json:"prise_en_charge_at,omitzero"`
	DecidedAt        Optional[time.Time]   `json:"decision_at,omitzero"`
	Commentaire      Optional[string]      `json:"commentaire,omitzero"`
	NextHandlerCache Optional[string]      `json:"intermediaire_prochain_detenteur_id_cache,omitzero"`
	DeletedAt        Optional[time.Time]   `json:"deleted_at,omitzero"`
}

// Key returns the composite identity the patch addresses.
func (p HopPatch) Key() HopKey {
	return HopKey{DossierNumero: p.DossierNumero, UnitID: p.UnitID, HandlerID: p.HandlerID}
}

// ApplyTo overwrites every present field of h, including DeletedAt: hops have
// nothing to cascade to.
func (p HopPatch) ApplyTo(h *CustodyHop) {
	p.HandlerRole.ApplyTo(&h.HandlerRole)
	p.HandlerUserID.ApplyTo(&h.HandlerUserID)
	p.HandlerEntityID.ApplyTo(&h.HandlerEntityID)
	if v, ok := p.NumeroBracelet.Value(); ok {
		h.NumeroBracelet = v
	}
	p.Decision.ApplyTo(&h.Decision)
	p.RefusMotif.ApplyTo(&h.RefusMotif)
	p.TakenAt.ApplyTo(&h.TakenAt)
	p.DecidedAt.ApplyTo(&h.DecidedAt)
	p.Commentaire.ApplyTo(&h.Commentaire)
	p.NextHandlerCache.ApplyTo(&h.NextHandlerCache)
	p.DeletedAt.ApplyTo(&h.DeletedAt)
}
