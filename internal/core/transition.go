package core

import (
	"errors"

	"gibiertrace/pkg/domain"
)

// Transition is the before/after pair produced by applying a patch. Before is
// nil when the record was created by the patch.
type Transition[T any] struct {
	Before *T
	After  T
}

// Created reports whether the transition created the record.
func (t Transition[T]) Created() bool { return t.Before == nil }

// UnitTransition is a unit transition together with the owning dossier it was
// applied under.
type UnitTransition struct {
	Transition[domain.Unit]
	Dossier domain.Dossier
}

// HopTransition is a hop transition plus the unit cache refresh it caused, if any.
type HopTransition struct {
	Transition[domain.CustodyHop]
	Unit    *Transition[domain.Unit]
	Dossier domain.Dossier
}

// ensureRelation records that actor may receive dossiers on behalf of entityID.
// An existing relation is left untouched.
func ensureRelation(tx domain.Transaction, actorID, entityID string) error {
	if actorID == "" || entityID == "" {
		return nil
	}
	if _, ok := tx.FindRelation(actorID, entityID, domain.RelationWorkingFor); ok {
		return nil
	}
	_, err := tx.CreateRelation(domain.OnBehalfRelation{OwnerID: actorID, EntityID: entityID, Type: domain.RelationWorkingFor})
	var conflict domain.ConflictError
	if errors.As(err, &conflict) {
		return nil
	}
	return err
}
