package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"gibiertrace/internal/infra/persistence/memory"
	"gibiertrace/internal/testutil"
	"gibiertrace/pkg/domain"
)

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var (
	examiner    = domain.Actor{ID: "u-exam", Roles: []domain.Role{domain.RoleExaminateurInitial}, Activated: true}
	firstHolder = domain.Actor{ID: "u-pd", Roles: []domain.Role{domain.RolePremierDetenteur}, Activated: true}
	etgUser     = domain.Actor{ID: "u-etg", Roles: []domain.Role{domain.RoleETG}, Activated: true, EntityIDs: []string{"e-etg"}}
	sviUser     = domain.Actor{ID: "u-svi", Roles: []domain.Role{domain.RoleSVI}, Activated: true, EntityIDs: []string{"e-svi"}}
	admin       = domain.Actor{ID: "u-admin", Roles: []domain.Role{domain.RoleAdmin}, Activated: true}
	stranger    = domain.Actor{ID: "u-other", Roles: []domain.Role{domain.RoleCollecteurPro}, Activated: true}
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (s *recordingSink) Publish(_ context.Context, events []domain.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type testEnv struct {
	svc   *Service
	store *memory.Store
	clock *testutil.Clock
	sink  *recordingSink
}

func newTestEnv(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	clock := testutil.NewClock(testStart)
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(clock.Now)
	sink := &recordingSink{}
	opts = append([]Option{WithClock(clock), WithEventSink(sink)}, opts...)
	return testEnv{svc: NewService(store, opts...), store: store, clock: clock, sink: sink}
}

func (e testEnv) applyDossier(t *testing.T, actor domain.Actor, numero string, patch domain.DossierPatch) domain.DossierView {
	t.Helper()
	e.clock.Advance(time.Minute)
	view, _, err := e.svc.ApplyDossier(context.Background(), actor, numero, patch)
	if err != nil {
		t.Fatalf("apply dossier %s as %s: %v", numero, actor.ID, err)
	}
	return view
}

func (e testEnv) applyUnit(t *testing.T, actor domain.Actor, numero, unitID string, patch domain.UnitPatch) domain.Unit {
	t.Helper()
	e.clock.Advance(time.Minute)
	unit, _, err := e.svc.ApplyUnit(context.Background(), actor, numero, unitID, patch)
	if err != nil {
		t.Fatalf("apply unit %s as %s: %v", unitID, actor.ID, err)
	}
	return unit
}

func (e testEnv) upsertHop(t *testing.T, actor domain.Actor, numero, unitID, handlerID string, patch domain.HopPatch) domain.CustodyHop {
	t.Helper()
	e.clock.Advance(time.Minute)
	hop, _, err := e.svc.UpsertHop(context.Background(), actor, numero, unitID, handlerID, patch)
	if err != nil {
		t.Fatalf("upsert hop %s as %s: %v", handlerID, actor.ID, err)
	}
	return hop
}

// seedDossier creates numero with one unit "<numero>_B1" as the examiner.
func (e testEnv) seedDossier(t *testing.T, numero string) {
	t.Helper()
	e.applyDossier(t, examiner, numero, domain.DossierPatch{
		Numero:        numero,
		DateMiseAMort: domain.Set(testStart),
	})
	e.applyUnit(t, examiner, numero, numero+"_B1", domain.UnitPatch{
		NumeroBracelet: domain.Set("B1"),
		Espece:         domain.Set("Chevreuil"),
	})
}

func (e testEnv) dossier(t *testing.T, numero string) domain.Dossier {
	t.Helper()
	var d domain.Dossier
	_ = e.store.View(context.Background(), func(v domain.TransactionView) error {
		var ok bool
		d, ok = v.FindDossier(numero)
		if !ok {
			t.Fatalf("dossier %s missing", numero)
		}
		return nil
	})
	return d
}

func (e testEnv) unit(t *testing.T, unitID string) domain.Unit {
	t.Helper()
	var u domain.Unit
	_ = e.store.View(context.Background(), func(v domain.TransactionView) error {
		var ok bool
		u, ok = v.FindUnit(unitID)
		if !ok {
			t.Fatalf("unit %s missing", unitID)
		}
		return nil
	})
	return u
}

func strPtr(s string) *string { return &s }

func containsType(types []domain.EventType, want domain.EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
