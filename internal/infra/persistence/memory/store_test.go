package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gibiertrace/pkg/domain"
)

func strPtr(s string) *string { return &s }

func fixedStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(nil)
	store.SetNowFunc(func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) })
	return store
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := fixedStore(t)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindDossier("missing"); ok {
			t.Fatalf("expected missing dossier lookup")
		}
		created, err := tx.CreateDossier(domain.Dossier{Numero: "ZACH-1"})
		if err != nil {
			return err
		}
		if created.Version != 1 {
			t.Fatalf("expected version 1, got %d", created.Version)
		}
		if _, err := tx.CreateUnit(domain.Unit{UnitID: "ZACH-1_B1", DossierNumero: "ZACH-1", NumeroBracelet: "B1"}); err != nil {
			return err
		}
		view := tx.Snapshot()
		if len(view.ListUnits("ZACH-1")) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}

	snapshot := store.ExportState()
	if len(snapshot.Dossiers) != 1 || len(snapshot.Units) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	store.ImportState(Snapshot{})
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if len(v.ListDossiers()) != 0 {
			t.Fatalf("expected cleared state")
		}
		return nil
	})
	store.ImportState(snapshot)
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindUnit("ZACH-1_B1"); !ok {
			t.Fatalf("expected restored unit")
		}
		return nil
	})
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := fixedStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateDossier(domain.Dossier{Numero: "ZACH-2"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindDossier("ZACH-2"); ok {
			t.Fatalf("expected rollback")
		}
		return nil
	})
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateDossier(domain.Dossier{Numero: "ZACH-3"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindDossier("ZACH-3"); ok {
			t.Fatalf("blocked transaction must not commit")
		}
		return nil
	})
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock, Message: "nope"}}}, nil
}

func TestUpdateDossierBumpsVersionAndRecordsChanges(t *testing.T) {
	store := fixedStore(t)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateDossier(domain.Dossier{Numero: "ZACH-4", CreatedByUserID: "u1"})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var changes []domain.Change
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		updated, err := tx.UpdateDossier("ZACH-4", func(d *domain.Dossier) error {
			d.CommuneMiseAMort = strPtr("Chambord")
			d.CreatedByUserID = "someone-else"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Version != 2 || updated.CreatedByUserID != "u1" {
			t.Fatalf("unexpected update result %+v", updated)
		}
		now := time.Now()
		if _, err := tx.UpdateDossier("ZACH-4", func(d *domain.Dossier) error {
			d.DeletedAt = &now
			return nil
		}); err != nil {
			return err
		}
		changes = tx.Changes()
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Action != domain.ActionUpdate || changes[1].Action != domain.ActionSoftDelete {
		t.Fatalf("unexpected actions %s %s", changes[0].Action, changes[1].Action)
	}
	before, ok := domain.DecodeChangePayload[domain.Dossier](changes[0].Before)
	if !ok || before.CommuneMiseAMort != nil {
		t.Fatalf("unexpected before payload %+v", before)
	}
	after, ok := domain.DecodeChangePayload[domain.Dossier](changes[0].After)
	if !ok || after.CommuneMiseAMort == nil || *after.CommuneMiseAMort != "Chambord" {
		t.Fatalf("unexpected after payload %+v", after)
	}
}

func TestStoreErrorsAndConflicts(t *testing.T) {
	store := fixedStore(t)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var nf domain.NotFoundError
		if _, err := tx.UpdateDossier("missing", func(*domain.Dossier) error { return nil }); !errors.As(err, &nf) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := tx.UpdateUnit("missing", func(*domain.Unit) error { return nil }); !errors.As(err, &nf) {
			t.Fatalf("expected unit not found, got %v", err)
		}
		if _, err := tx.UpdateHop(domain.HopKey{DossierNumero: "a", UnitID: "b", HandlerID: "c"}, func(*domain.CustodyHop) error { return nil }); !errors.As(err, &nf) {
			t.Fatalf("expected hop not found, got %v", err)
		}
		var ve domain.ValidationError
		if _, err := tx.CreateDossier(domain.Dossier{}); !errors.As(err, &ve) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, err := tx.CreateHop(domain.CustodyHop{DossierNumero: "a"}); !errors.As(err, &ve) {
			t.Fatalf("expected hop validation error, got %v", err)
		}

		var ce domain.ConflictError
		if _, err := tx.CreateDossier(domain.Dossier{Numero: "D1"}); err != nil {
			return err
		}
		if _, err := tx.CreateDossier(domain.Dossier{Numero: "D1"}); !errors.As(err, &ce) {
			t.Fatalf("expected dossier conflict, got %v", err)
		}
		if _, err := tx.CreateUnit(domain.Unit{UnitID: "U1", DossierNumero: "D1"}); err != nil {
			return err
		}
		if _, err := tx.CreateUnit(domain.Unit{UnitID: "U1", DossierNumero: "D2"}); !errors.As(err, &ce) {
			t.Fatalf("expected unit conflict, got %v", err)
		}
		if _, err := tx.CreateRelation(domain.OnBehalfRelation{OwnerID: "u", EntityID: "e"}); err != nil {
			return err
		}
		if _, err := tx.CreateRelation(domain.OnBehalfRelation{OwnerID: "u", EntityID: "e", Type: domain.RelationWorkingFor}); !errors.As(err, &ce) {
			t.Fatalf("expected relation conflict, got %v", err)
		}
		if _, ok := tx.FindRelation("u", "e", domain.RelationWorkingFor); !ok {
			t.Fatalf("expected relation lookup")
		}
		if _, err := tx.CreateAuditLog(domain.AuditLogEntry{ID: "L1", Action: "fei_update"}); err != nil {
			return err
		}
		if _, err := tx.CreateAuditLog(domain.AuditLogEntry{ID: "L1"}); !errors.As(err, &ce) {
			t.Fatalf("expected log conflict, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestHopKeyIsPreservedOnUpdate(t *testing.T) {
	store := fixedStore(t)
	key := domain.HopKey{DossierNumero: "D1", UnitID: "U1", HandlerID: "H1"}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		created, err := tx.CreateHop(domain.CustodyHop{DossierNumero: key.DossierNumero, UnitID: key.UnitID, HandlerID: key.HandlerID})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated hop id")
		}
		updated, err := tx.UpdateHop(key, func(h *domain.CustodyHop) error {
			h.HandlerID = "other"
			h.ID = "changed"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Key() != key || updated.ID != created.ID {
			t.Fatalf("identity must be preserved: %+v", updated)
		}
		if len(tx.ListUnitHops("D1", "U1")) != 1 || len(tx.ListHops("D1")) != 1 {
			t.Fatalf("expected one hop listed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestSnapshotIsolationFromCallers(t *testing.T) {
	store := fixedStore(t)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateUnit(domain.Unit{UnitID: "U1", DossierNumero: "D1", ExaminateurAnomaliesCarcasse: []string{"a"}})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		u, _ := v.FindUnit("U1")
		u.ExaminateurAnomaliesCarcasse[0] = "mutated"
		return nil
	})
	_ = store.View(ctx, func(v domain.TransactionView) error {
		u, _ := v.FindUnit("U1")
		if u.ExaminateurAnomaliesCarcasse[0] != "a" {
			t.Fatalf("view leaked mutation into store")
		}
		return nil
	})
}

func TestDirectoryRecords(t *testing.T) {
	store := fixedStore(t)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutUser(domain.User{ID: "u1", Prenom: "Ana"}); err != nil {
			return err
		}
		if _, err := tx.PutUser(domain.User{ID: "u1", Prenom: "Anne"}); err != nil {
			return err
		}
		if _, err := tx.PutEntity(domain.Entity{ID: "e1", Type: domain.RoleETG, MemberIDs: []string{"u1"}}); err != nil {
			return err
		}
		changes := tx.Changes()
		if changes[1].Action != domain.ActionUpdate {
			t.Fatalf("expected second put to be an update")
		}
		if _, err := tx.PutUser(domain.User{}); err == nil {
			t.Fatalf("expected validation error on empty id")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		u, ok := v.FindUser("u1")
		if !ok || u.Prenom != "Anne" {
			t.Fatalf("unexpected user %+v", u)
		}
		e, ok := v.FindEntity("e1")
		if !ok || !e.HasMember("u1") {
			t.Fatalf("unexpected entity %+v", e)
		}
		return nil
	})
}

func TestRunInTransactionHonoursCancelledContext(t *testing.T) {
	store := fixedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancelled context to short-circuit, err=%v called=%v", err, called)
	}
}
