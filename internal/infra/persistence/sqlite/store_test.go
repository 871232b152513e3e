package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gibiertrace/pkg/domain"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "custody.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateDossier(domain.Dossier{Numero: "ZACH-20260301-001"}); err != nil {
			return err
		}
		if _, err := tx.CreateUnit(domain.Unit{UnitID: "ZACH-20260301-001_B1", DossierNumero: "ZACH-20260301-001", NumeroBracelet: "B1"}); err != nil {
			return err
		}
		_, err := tx.CreateHop(domain.CustodyHop{DossierNumero: "ZACH-20260301-001", UnitID: "ZACH-20260301-001_B1", HandlerID: "H1"})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	err = reopened.View(ctx, func(v domain.TransactionView) error {
		d, ok := v.FindDossier("ZACH-20260301-001")
		if !ok || d.Version != 1 {
			t.Fatalf("dossier not restored: %+v", d)
		}
		if len(v.ListUnits(d.Numero)) != 1 {
			t.Fatalf("units not restored")
		}
		if _, ok := v.FindHop(domain.HopKey{DossierNumero: d.Numero, UnitID: "ZACH-20260301-001_B1", HandlerID: "H1"}); !ok {
			t.Fatalf("hop not restored")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteStoreSkipsPersistOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateDossier(domain.Dossier{Numero: "D1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
	_ = store.Close()
}

func TestSQLiteStoreRewritesOnlyChangedBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	create := func(numero string) {
		t.Helper()
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateDossier(domain.Dossier{Numero: numero})
			return err
		}); err != nil {
			t.Fatalf("create %s: %v", numero, err)
		}
	}
	create("D1")

	// Tamper with an untouched bucket: a later dossier write must leave it alone.
	if _, err := store.DB().Exec(`UPDATE state SET payload = ? WHERE bucket = 'users'`, []byte(`{"u-marker":{"id":"u-marker"}}`)); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	create("D2")

	var users []byte
	if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = 'users'`).Scan(&users); err != nil {
		t.Fatalf("read users: %v", err)
	}
	if string(users) != `{"u-marker":{"id":"u-marker"}}` {
		t.Fatalf("untouched bucket was rewritten: %s", users)
	}
	var dossiers []byte
	if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = 'dossiers'`).Scan(&dossiers); err != nil {
		t.Fatalf("read dossiers: %v", err)
	}
	if !strings.Contains(string(dossiers), `"D2"`) {
		t.Fatalf("expected D2 persisted, got %s", dossiers)
	}
}
