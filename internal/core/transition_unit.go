package core

import (
	"fmt"

	"gibiertrace/pkg/domain"
)

// ApplyUnitPatch creates or updates unitID under dossier numero. svi_ keys are
// dropped unless the actor holds the SVI role.
func ApplyUnitPatch(tx domain.Transaction, actor domain.Actor, numero, unitID string, patch domain.UnitPatch) (UnitTransition, error) {
	if unitID == "" {
		return UnitTransition{}, domain.ValidationError{Entity: domain.EntityUnit, Field: "zacharie_carcasse_id", Reason: "is required"}
	}
	if patch.DossierNumero != "" && patch.DossierNumero != numero {
		return UnitTransition{}, domain.ValidationError{Entity: domain.EntityUnit, Field: "fei_numero", Reason: fmt.Sprintf("%q does not match %q", patch.DossierNumero, numero)}
	}
	dossier, ok := tx.FindDossier(numero)
	if !ok || dossier.IsDeleted() {
		return UnitTransition{}, domain.NotFoundError{Entity: domain.EntityDossier, Key: numero}
	}
	if !actor.HasRole(domain.RoleSVI) {
		patch = patch.WithoutSVIFields()
	}
	if err := validateIPMDecisions(patch); err != nil {
		return UnitTransition{}, err
	}

	existing, ok := tx.FindUnit(unitID)
	if !ok {
		created, err := createUnit(tx, dossier, unitID, patch)
		if err != nil {
			return UnitTransition{}, err
		}
		return UnitTransition{Transition: Transition[domain.Unit]{After: created}, Dossier: dossier}, nil
	}
	if existing.DossierNumero != numero {
		return UnitTransition{}, domain.ConflictError{Entity: domain.EntityUnit, Key: unitID, Reason: "already bound to fei " + existing.DossierNumero}
	}
	if existing.IsDeleted() {
		return UnitTransition{Transition: Transition[domain.Unit]{Before: &existing, After: existing}, Dossier: dossier}, nil
	}
	if deletedAt, ok := patch.DeletedAt.Value(); ok {
		updated, err := tx.UpdateUnit(unitID, func(u *domain.Unit) error {
			u.DeletedAt = &deletedAt
			return nil
		})
		if err != nil {
			return UnitTransition{}, err
		}
		if err := cascadeHops(tx, tx.ListUnitHops(numero, unitID), deletedAt); err != nil {
			return UnitTransition{}, err
		}
		return UnitTransition{Transition: Transition[domain.Unit]{Before: &existing, After: updated}, Dossier: dossier}, nil
	}
	if bracelet, ok := patch.NumeroBracelet.Value(); ok && bracelet == "" {
		return UnitTransition{}, domain.ValidationError{Entity: domain.EntityUnit, Field: "numero_bracelet", Reason: "cannot be empty"}
	}

	updated, err := tx.UpdateUnit(unitID, func(u *domain.Unit) error {
		patch.ApplyTo(u)
		return nil
	})
	if err != nil {
		return UnitTransition{}, err
	}
	return UnitTransition{Transition: Transition[domain.Unit]{Before: &existing, After: updated}, Dossier: dossier}, nil
}

func createUnit(tx domain.Transaction, dossier domain.Dossier, unitID string, patch domain.UnitPatch) (domain.Unit, error) {
	bracelet, ok := patch.NumeroBracelet.Value()
	if !ok || bracelet == "" {
		return domain.Unit{}, domain.ValidationError{Entity: domain.EntityUnit, Field: "numero_bracelet", Reason: "is required to create a carcasse"}
	}
	u := domain.Unit{UnitID: unitID, DossierNumero: dossier.Numero}
	if dossier.DateMiseAMort != nil {
		date := *dossier.DateMiseAMort
		u.DateMiseAMort = &date
	}
	patch.ApplyTo(&u)
	if deletedAt, ok := patch.DeletedAt.Value(); ok {
		u.DeletedAt = &deletedAt
	}
	return tx.CreateUnit(u)
}

func validateIPMDecisions(patch domain.UnitPatch) error {
	for field, decision := range map[string]domain.Optional[domain.IPMDecision]{
		"svi_ipm1_decision": patch.SVIIPM1Decision,
		"svi_ipm2_decision": patch.SVIIPM2Decision,
	} {
		if v, ok := decision.Value(); ok && !v.Valid() {
			return domain.ValidationError{Entity: domain.EntityUnit, Field: field, Reason: fmt.Sprintf("unknown decision %q", v)}
		}
	}
	return nil
}
