package core

import (
	"fmt"
	"time"

	"gibiertrace/pkg/domain"
)

// ApplyDossierPatch creates or updates the dossier numero inside tx. It never
// performs side effects.
func ApplyDossierPatch(tx domain.Transaction, actor domain.Actor, numero string, patch domain.DossierPatch) (Transition[domain.Dossier], error) {
	if numero == "" {
		return Transition[domain.Dossier]{}, domain.ValidationError{Entity: domain.EntityDossier, Field: "numero", Reason: "is required"}
	}
	if patch.Numero != "" && patch.Numero != numero {
		return Transition[domain.Dossier]{}, domain.ValidationError{Entity: domain.EntityDossier, Field: "numero", Reason: fmt.Sprintf("%q does not match %q", patch.Numero, numero)}
	}

	existing, ok := tx.FindDossier(numero)
	if !ok {
		return createDossier(tx, actor, numero, patch)
	}
	if existing.IsDeleted() {
		return Transition[domain.Dossier]{Before: &existing, After: existing}, nil
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != existing.Version {
		return Transition[domain.Dossier]{}, domain.ConflictError{
			Entity: domain.EntityDossier,
			Key:    numero,
			Reason: fmt.Sprintf("expected version %d, stored version is %d", *patch.ExpectedVersion, existing.Version),
		}
	}
	if patch.Deletes() {
		return deleteDossier(tx, actor, existing, patch)
	}

	updated, err := tx.UpdateDossier(numero, func(d *domain.Dossier) error {
		patch.ApplyTo(d)
		if d.IsTerminal() && !existing.IsTerminal() {
			clearNextOwner(d)
		}
		return nil
	})
	if err != nil {
		return Transition[domain.Dossier]{}, err
	}
	if entityID, ok := patch.NextOwnerEntityID.Value(); ok {
		if err := ensureRelation(tx, actor.ID, entityID); err != nil {
			return Transition[domain.Dossier]{}, err
		}
	}
	if patch.DateMiseAMort.Present() && !timesEqual(existing.DateMiseAMort, updated.DateMiseAMort) {
		if err := propagateDateMiseAMort(tx, numero, updated.DateMiseAMort); err != nil {
			return Transition[domain.Dossier]{}, err
		}
	}
	return Transition[domain.Dossier]{Before: &existing, After: updated}, nil
}

func createDossier(tx domain.Transaction, actor domain.Actor, numero string, patch domain.DossierPatch) (Transition[domain.Dossier], error) {
	if !actor.CanCreateDossier() {
		return Transition[domain.Dossier]{}, domain.AuthorizationError{
			ActorID: actor.ID,
			Action:  "create fei " + numero,
			Reason:  "requires an activated " + string(domain.RoleExaminateurInitial),
		}
	}
	actorID := actor.ID
	d := domain.Dossier{
		Numero:                   numero,
		CreatedByUserID:          actor.ID,
		CurrentOwnerRole:         domain.RoleExaminateurInitial.Ptr(),
		CurrentOwnerUserID:       &actorID,
		ExaminateurInitialUserID: &actorID,
	}
	patch.ApplyTo(&d)
	if deletedAt, ok := patch.DeletedAt.Value(); ok {
		d.DeletedAt = &deletedAt
	}
	created, err := tx.CreateDossier(d)
	if err != nil {
		return Transition[domain.Dossier]{}, err
	}
	if entityID, ok := patch.NextOwnerEntityID.Value(); ok {
		if err := ensureRelation(tx, actor.ID, entityID); err != nil {
			return Transition[domain.Dossier]{}, err
		}
	}
	return Transition[domain.Dossier]{After: created}, nil
}

func canDeleteDossier(actor domain.Actor, d domain.Dossier) bool {
	switch {
	case actor.IsAdmin():
		return true
	case d.CreatedByUserID != "" && d.CreatedByUserID == actor.ID:
		return true
	case d.CurrentOwnerUserID != nil && *d.CurrentOwnerUserID == actor.ID:
		return true
	case d.CurrentOwnerEntityID != nil && actor.WorksFor(*d.CurrentOwnerEntityID):
		return true
	}
	return false
}

// deleteDossier soft-deletes the dossier and cascades to its units and hops.
func deleteDossier(tx domain.Transaction, actor domain.Actor, existing domain.Dossier, patch domain.DossierPatch) (Transition[domain.Dossier], error) {
	if !canDeleteDossier(actor, existing) {
		return Transition[domain.Dossier]{}, domain.AuthorizationError{
			ActorID: actor.ID,
			Action:  "delete fei " + existing.Numero,
			Reason:  "only an admin, the creating examiner or the current owner may delete",
		}
	}
	deletedAt, _ := patch.DeletedAt.Value()
	updated, err := tx.UpdateDossier(existing.Numero, func(d *domain.Dossier) error {
		d.DeletedAt = &deletedAt
		return nil
	})
	if err != nil {
		return Transition[domain.Dossier]{}, err
	}
	for _, unit := range tx.ListUnits(existing.Numero) {
		if unit.IsDeleted() {
			continue
		}
		if _, err := tx.UpdateUnit(unit.UnitID, func(u *domain.Unit) error {
			u.DeletedAt = &deletedAt
			return nil
		}); err != nil {
			return Transition[domain.Dossier]{}, err
		}
	}
	if err := cascadeHops(tx, tx.ListHops(existing.Numero), deletedAt); err != nil {
		return Transition[domain.Dossier]{}, err
	}
	return Transition[domain.Dossier]{Before: &existing, After: updated}, nil
}

func cascadeHops(tx domain.Transaction, hops []domain.CustodyHop, deletedAt time.Time) error {
	for _, hop := range hops {
		if hop.DeletedAt != nil {
			continue
		}
		if _, err := tx.UpdateHop(hop.Key(), func(h *domain.CustodyHop) error {
			h.DeletedAt = &deletedAt
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func propagateDateMiseAMort(tx domain.Transaction, numero string, date *time.Time) error {
	for _, unit := range tx.ListUnits(numero) {
		if unit.IsDeleted() || timesEqual(unit.DateMiseAMort, date) {
			continue
		}
		if _, err := tx.UpdateUnit(unit.UnitID, func(u *domain.Unit) error {
			if date == nil {
				u.DateMiseAMort = nil
				return nil
			}
			v := *date
			u.DateMiseAMort = &v
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func clearNextOwner(d *domain.Dossier) {
	d.NextOwnerRole = nil
	d.NextOwnerUserID = nil
	d.NextOwnerEntityID = nil
	d.NextOwnerUserNameCache = nil
	d.NextOwnerEntityNameCache = nil
}
