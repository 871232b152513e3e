package core

import (
	"reflect"
	"testing"

	"gibiertrace/pkg/domain"
)

func eventTypes(events []domain.DomainEvent) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestDetectDossierEvents(t *testing.T) {
	now := testStart
	base := domain.Dossier{
		Numero:                   "F1",
		CurrentOwnerRole:         domain.RoleExaminateurInitial.Ptr(),
		CurrentOwnerUserID:       strPtr("u-exam"),
		ExaminateurInitialUserID: strPtr("u-exam"),
		UpdatedAt:                now,
	}
	withNext := func(d domain.Dossier, role domain.Role, userID, entityID *string) domain.Dossier {
		d.NextOwnerRole = role.Ptr()
		d.NextOwnerUserID = userID
		d.NextOwnerEntityID = entityID
		return d
	}
	handed := base
	handed.CurrentOwnerRole = domain.RolePremierDetenteur.Ptr()
	handed.CurrentOwnerUserID = strPtr("u-pd")
	deleted := base
	deleted.DeletedAt = &now

	cases := []struct {
		name   string
		before *domain.Dossier
		after  domain.Dossier
		want   []domain.EventType
	}{
		{"creation", nil, base, []domain.EventType{domain.EventDossierCreated}},
		{"creation with handoff", nil, withNext(base, domain.RolePremierDetenteur, strPtr("u-pd"), nil),
			[]domain.EventType{domain.EventDossierCreated, domain.EventAssignedToNextHolder}},
		{"no change", &base, base, nil},
		{"handoff to holder", &base, withNext(base, domain.RoleETG, nil, strPtr("e-etg")), []domain.EventType{domain.EventAssignedToNextHolder}},
		{"handoff to inspection", &base, withNext(base, domain.RoleSVI, nil, strPtr("e-svi")), []domain.EventType{domain.EventAssignedToInspection}},
		{"same pending handoff", ptr(withNext(base, domain.RoleETG, nil, strPtr("e-etg"))), withNext(base, domain.RoleETG, nil, strPtr("e-etg")), nil},
		{"role handed over", &base, handed, []domain.EventType{domain.EventRoleHandedOver}},
		{"manual closure", &base, func() domain.Dossier { d := base; d.SVIClosedAt = &now; return d }(), []domain.EventType{domain.EventDossierClosedManually}},
		{"chain closure", &base, func() domain.Dossier { d := base; d.IntermediaireClosedAt = &now; return d }(), []domain.EventType{domain.EventDossierClosedByHandoffChain}},
		{"automatic closure", &base, func() domain.Dossier { d := base; d.AutomaticClosedAt = &now; return d }(), []domain.EventType{domain.EventDossierClosedAutomatically}},
		{"deleted", &base, deleted, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eventTypes(DetectDossierEvents(tc.before, tc.after, "u-actor"))
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDetectDossierEventsPayload(t *testing.T) {
	before := domain.Dossier{Numero: "F1", CurrentOwnerRole: domain.RoleExaminateurInitial.Ptr(), UpdatedAt: testStart}
	after := before
	after.CurrentOwnerRole = domain.RolePremierDetenteur.Ptr()
	after.CurrentOwnerUserID = strPtr("u-pd")
	after.PremierDetenteurUserID = strPtr("u-pd")

	events := DetectDossierEvents(&before, after, "u-pd")
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.PreviousRole != domain.RoleExaminateurInitial || ev.CurrentRole != domain.RolePremierDetenteur || ev.CurrentUserID != "u-pd" {
		t.Fatalf("unexpected handover payload %+v", ev)
	}
	if ev.ActorID != "u-pd" || ev.FirstHolderUserID != "u-pd" || !ev.OccurredAt.Equal(testStart) {
		t.Fatalf("unexpected event base %+v", ev)
	}
	again := DetectDossierEvents(&before, after, "u-pd")
	if again[0].Key != ev.Key || ev.Key == "" {
		t.Fatalf("event keys must be deterministic, got %q and %q", ev.Key, again[0].Key)
	}
	if ev.ID != "" {
		t.Fatalf("detector must not assign ids")
	}
}

func TestDetectUnitEvents(t *testing.T) {
	dossier := domain.Dossier{Numero: "F1", ExaminateurInitialUserID: strPtr("u-exam"), UpdatedAt: testStart}
	base := domain.Unit{UnitID: "U1", DossierNumero: "F1", NumeroBracelet: "B1", Espece: strPtr("Sanglier")}
	seized := func(d domain.IPMDecision) domain.Unit {
		u := base
		u.SVIIPM2Decision = &d
		return u
	}
	missing := base
	missing.Manquante = boolPtr(true)
	refused := base
	refused.RefusIntermediaireID = strPtr("h-etg")
	refused.RefusMotif = strPtr("Souillure")
	refusedNoMotif := base
	refusedNoMotif.RefusIntermediaireID = strPtr("h-etg")
	deleted := seized(domain.IPMDecisionSeizureTotal)
	deleted.DeletedAt = &testStart

	cases := []struct {
		name   string
		before *domain.Unit
		after  domain.Unit
		want   []domain.EventType
	}{
		{"new unit", nil, base, nil},
		{"total seizure", &base, seized(domain.IPMDecisionSeizureTotal), []domain.EventType{domain.EventSeizureDecided}},
		{"partial seizure", &base, seized(domain.IPMDecisionSeizurePartial), []domain.EventType{domain.EventSeizureDecided}},
		{"acceptance", &base, seized(domain.IPMDecisionAccepted), nil},
		{"seizure unchanged", ptr(seized(domain.IPMDecisionSeizureTotal)), seized(domain.IPMDecisionSeizureTotal), nil},
		{"missing", &base, missing, []domain.EventType{domain.EventUnitReportedMissing}},
		{"still missing", &missing, missing, nil},
		{"refused", &base, refused, []domain.EventType{domain.EventUnitRefused}},
		{"refused without motif", &base, refusedNoMotif, nil},
		{"deleted", &base, deleted, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eventTypes(DetectUnitEvents(tc.before, tc.after, dossier, "u-svi"))
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	events := DetectUnitEvents(&base, seized(domain.IPMDecisionSeizureTotal), dossier, "u-svi")
	ev := events[0]
	if ev.UnitID != "U1" || ev.NumeroBracelet != "B1" || ev.Espece != "Sanglier" || ev.Decision != domain.IPMDecisionSeizureTotal || ev.ExaminerUserID != "u-exam" {
		t.Fatalf("unexpected seizure payload %+v", ev)
	}
	if ev.Key != "SeizureDecided:F1:U1:SAISIE_TOTALE" {
		t.Fatalf("unexpected key %s", ev.Key)
	}
}

func ptr[T any](v T) *T { return &v }

func boolPtr(b bool) *bool { return &b }
