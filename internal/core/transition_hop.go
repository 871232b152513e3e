package core

import (
	"fmt"

	"gibiertrace/pkg/domain"
)

// UpsertHop creates or updates the hop (numero, unitID, handlerID). Any actor
// may record a hop. A decided hop refreshes the unit's last-hop cache.
func UpsertHop(tx domain.Transaction, numero, unitID, handlerID string, patch domain.HopPatch) (HopTransition, error) {
	key := domain.HopKey{DossierNumero: numero, UnitID: unitID, HandlerID: handlerID}
	if handlerID == "" {
		return HopTransition{}, domain.ValidationError{Entity: domain.EntityHop, Field: "intermediaire_id", Reason: "is required"}
	}
	if (patch.DossierNumero != "" && patch.DossierNumero != numero) ||
		(patch.UnitID != "" && patch.UnitID != unitID) ||
		(patch.HandlerID != "" && patch.HandlerID != handlerID) {
		return HopTransition{}, domain.ValidationError{Entity: domain.EntityHop, Reason: "payload key does not match " + key.String()}
	}
	dossier, ok := tx.FindDossier(numero)
	if !ok || dossier.IsDeleted() {
		return HopTransition{}, domain.NotFoundError{Entity: domain.EntityDossier, Key: numero}
	}
	unit, ok := tx.FindUnit(unitID)
	if !ok || unit.DossierNumero != numero || unit.IsDeleted() {
		return HopTransition{}, domain.NotFoundError{Entity: domain.EntityUnit, Key: unitID}
	}

	existing, exists := tx.FindHop(key)
	candidate := existing
	if !exists {
		candidate = domain.CustodyHop{DossierNumero: numero, UnitID: unitID, HandlerID: handlerID, NumeroBracelet: unit.NumeroBracelet}
	}
	patch.ApplyTo(&candidate)
	if err := validateHop(candidate); err != nil {
		return HopTransition{}, err
	}

	var out HopTransition
	out.Dossier = dossier
	if exists {
		updated, err := tx.UpdateHop(key, func(h *domain.CustodyHop) error {
			patch.ApplyTo(h)
			return nil
		})
		if err != nil {
			return HopTransition{}, err
		}
		out.Transition = Transition[domain.CustodyHop]{Before: &existing, After: updated}
	} else {
		created, err := tx.CreateHop(candidate)
		if err != nil {
			return HopTransition{}, err
		}
		out.Transition = Transition[domain.CustodyHop]{After: created}
	}

	if !decisionChanged(out.Before, out.After) {
		return out, nil
	}
	refreshed, changed, err := refreshUnitCache(tx, unit, out.After)
	if err != nil {
		return HopTransition{}, err
	}
	if changed {
		out.Unit = &Transition[domain.Unit]{Before: &unit, After: refreshed}
	}
	return out, nil
}

func validateHop(h domain.CustodyHop) error {
	if h.Decision == nil {
		return nil
	}
	if !h.Decision.Valid() {
		return domain.ValidationError{Entity: domain.EntityHop, Field: "decision", Reason: fmt.Sprintf("unknown decision %q", *h.Decision)}
	}
	if *h.Decision == domain.HopDecisionRefused && (h.RefusMotif == nil || *h.RefusMotif == "") {
		return domain.ValidationError{Entity: domain.EntityHop, Field: "refus_motif", Reason: "is required when the decision is REFUS"}
	}
	return nil
}

func decisionChanged(before *domain.CustodyHop, after domain.CustodyHop) bool {
	if after.Decision == nil || after.DeletedAt != nil {
		return false
	}
	if before == nil || before.Decision == nil {
		return true
	}
	return *before.Decision != *after.Decision ||
		!stringsEqual(before.RefusMotif, after.RefusMotif) ||
		!timesEqual(before.DecidedAt, after.DecidedAt)
}

// refreshUnitCache mirrors the latest hop decision onto the unit.
func refreshUnitCache(tx domain.Transaction, unit domain.Unit, hop domain.CustodyHop) (domain.Unit, bool, error) {
	next := unit
	signedAt := hop.DecidedAt
	if signedAt == nil {
		signedAt = hop.TakenAt
	}
	next.LatestHopSignedAt = signedAt
	next.LatestHopUserID = hop.HandlerUserID
	next.LatestHopEntityID = hop.HandlerEntityID
	handlerID := hop.HandlerID
	switch *hop.Decision {
	case domain.HopDecisionRefused:
		next.RefusIntermediaireID = &handlerID
		next.RefusMotif = hop.RefusMotif
		next.Manquante = nil
	case domain.HopDecisionMissing:
		manquante := true
		next.Manquante = &manquante
		next.RefusIntermediaireID = nil
		next.RefusMotif = nil
	case domain.HopDecisionAccepted:
		next.RefusIntermediaireID = nil
		next.RefusMotif = nil
		next.Manquante = nil
	}
	if unitCacheEqual(unit, next) {
		return unit, false, nil
	}
	updated, err := tx.UpdateUnit(unit.UnitID, func(u *domain.Unit) error {
		u.LatestHopSignedAt = next.LatestHopSignedAt
		u.LatestHopUserID = next.LatestHopUserID
		u.LatestHopEntityID = next.LatestHopEntityID
		u.RefusIntermediaireID = next.RefusIntermediaireID
		u.RefusMotif = next.RefusMotif
		u.Manquante = next.Manquante
		return nil
	})
	if err != nil {
		return domain.Unit{}, false, err
	}
	return updated, true, nil
}

func unitCacheEqual(a, b domain.Unit) bool {
	boolsEqual := func(x, y *bool) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}
	return timesEqual(a.LatestHopSignedAt, b.LatestHopSignedAt) &&
		stringsEqual(a.LatestHopUserID, b.LatestHopUserID) &&
		stringsEqual(a.LatestHopEntityID, b.LatestHopEntityID) &&
		stringsEqual(a.RefusIntermediaireID, b.RefusIntermediaireID) &&
		stringsEqual(a.RefusMotif, b.RefusMotif) &&
		boolsEqual(a.Manquante, b.Manquante)
}
