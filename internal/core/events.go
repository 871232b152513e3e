package core

import (
	"strings"

	"gibiertrace/pkg/domain"
)

// DetectDossierEvents diffs two dossier snapshots. before is nil for a
// creation. It reads nothing but its arguments.
func DetectDossierEvents(before *domain.Dossier, after domain.Dossier, actorID string) []domain.DomainEvent {
	if after.IsDeleted() {
		return nil
	}
	base := dossierEventBase(after, actorID)
	var events []domain.DomainEvent
	emit := func(t domain.EventType, parts ...string) {
		ev := base
		ev.Type = t
		ev.Key = eventKey(t, append([]string{after.Numero}, parts...)...)
		events = append(events, ev)
	}

	if before == nil {
		emit(domain.EventDossierCreated)
	} else if !rolesEqual(before.CurrentOwnerRole, after.CurrentOwnerRole) {
		ev := base
		ev.Type = domain.EventRoleHandedOver
		ev.PreviousRole = derefRole(before.CurrentOwnerRole)
		ev.Key = eventKey(ev.Type, after.Numero, string(ev.PreviousRole), string(ev.CurrentRole), ev.CurrentUserID, ev.CurrentEntityID)
		events = append(events, ev)
	}

	if after.NextOwnerRole != nil && nextOwnerChanged(before, after) {
		t := domain.EventAssignedToNextHolder
		if *after.NextOwnerRole == domain.RoleSVI {
			t = domain.EventAssignedToInspection
		}
		emit(t, string(*after.NextOwnerRole), deref(after.NextOwnerUserID), deref(after.NextOwnerEntityID))
	}

	if after.SVIClosedAt != nil && (before == nil || before.SVIClosedAt == nil) {
		emit(domain.EventDossierClosedManually)
	}
	if after.IntermediaireClosedAt != nil && (before == nil || before.IntermediaireClosedAt == nil) {
		emit(domain.EventDossierClosedByHandoffChain)
	}
	if after.AutomaticClosedAt != nil && (before == nil || before.AutomaticClosedAt == nil) {
		emit(domain.EventDossierClosedAutomatically)
	}
	return events
}

// DetectUnitEvents diffs two unit snapshots under their dossier.
func DetectUnitEvents(before *domain.Unit, after domain.Unit, dossier domain.Dossier, actorID string) []domain.DomainEvent {
	if after.IsDeleted() {
		return nil
	}
	base := dossierEventBase(dossier, actorID)
	base.UnitID = after.UnitID
	base.NumeroBracelet = after.NumeroBracelet
	base.Espece = deref(after.Espece)
	if after.UpdatedAt.After(base.OccurredAt) {
		base.OccurredAt = after.UpdatedAt
	}

	var events []domain.DomainEvent
	if after.SVIIPM2Decision != nil && after.SVIIPM2Decision.IsSeizure() &&
		(before == nil || before.SVIIPM2Decision == nil || *before.SVIIPM2Decision != *after.SVIIPM2Decision) {
		ev := base
		ev.Type = domain.EventSeizureDecided
		ev.Decision = *after.SVIIPM2Decision
		ev.Key = eventKey(ev.Type, dossier.Numero, after.UnitID, string(ev.Decision))
		events = append(events, ev)
	}
	if after.Manquante != nil && *after.Manquante && (before == nil || before.Manquante == nil || !*before.Manquante) {
		ev := base
		ev.Type = domain.EventUnitReportedMissing
		ev.Key = eventKey(ev.Type, dossier.Numero, after.UnitID)
		events = append(events, ev)
	}
	if deref(after.RefusIntermediaireID) != "" && deref(after.RefusMotif) != "" &&
		(before == nil || !stringsEqual(before.RefusIntermediaireID, after.RefusIntermediaireID)) {
		ev := base
		ev.Type = domain.EventUnitRefused
		ev.HandlerID = *after.RefusIntermediaireID
		ev.RefusMotif = *after.RefusMotif
		ev.Key = eventKey(ev.Type, dossier.Numero, after.UnitID, ev.HandlerID)
		events = append(events, ev)
	}
	return events
}

func dossierEventBase(d domain.Dossier, actorID string) domain.DomainEvent {
	return domain.DomainEvent{
		DossierNumero:       d.Numero,
		ActorID:             actorID,
		OccurredAt:          d.UpdatedAt,
		ExaminerUserID:      deref(d.ExaminateurInitialUserID),
		FirstHolderUserID:   deref(d.PremierDetenteurUserID),
		FirstHolderEntityID: deref(d.PremierDetenteurEntityID),
		CurrentRole:         derefRole(d.CurrentOwnerRole),
		CurrentUserID:       deref(d.CurrentOwnerUserID),
		CurrentEntityID:     deref(d.CurrentOwnerEntityID),
		NextOwnerRole:       derefRole(d.NextOwnerRole),
		NextOwnerUserID:     deref(d.NextOwnerUserID),
		NextOwnerEntityID:   deref(d.NextOwnerEntityID),
		SVIEntityID:         deref(d.SVIEntityID),
	}
}

func nextOwnerChanged(before *domain.Dossier, after domain.Dossier) bool {
	if before == nil {
		return true
	}
	return !rolesEqual(before.NextOwnerRole, after.NextOwnerRole) ||
		!stringsEqual(before.NextOwnerUserID, after.NextOwnerUserID) ||
		!stringsEqual(before.NextOwnerEntityID, after.NextOwnerEntityID)
}

func eventKey(t domain.EventType, parts ...string) string {
	return string(t) + ":" + strings.Join(parts, ":")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefRole(r *domain.Role) domain.Role {
	if r == nil {
		return ""
	}
	return *r
}
