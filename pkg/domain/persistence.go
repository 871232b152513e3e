package domain

import "context"

// TransactionView provides read-only access to a consistent store snapshot.
type TransactionView interface {
	FindDossier(numero string) (Dossier, bool)
	FindUnit(unitID string) (Unit, bool)
	FindHop(key HopKey) (CustodyHop, bool)
	FindAuditLog(id string) (AuditLogEntry, bool)
	FindRelation(ownerID, entityID string, kind RelationType) (OnBehalfRelation, bool)
	FindUser(id string) (User, bool)
	FindEntity(id string) (Entity, bool)
	ListDossiers() []Dossier
	ListUnits(dossierNumero string) []Unit
	ListHops(dossierNumero string) []CustodyHop
	ListUnitHops(dossierNumero, unitID string) []CustodyHop
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Every mutation records a Change.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	CreateDossier(Dossier) (Dossier, error)
	UpdateDossier(numero string, mutator func(*Dossier) error) (Dossier, error)
	CreateUnit(Unit) (Unit, error)
	UpdateUnit(unitID string, mutator func(*Unit) error) (Unit, error)
	CreateHop(CustodyHop) (CustodyHop, error)
	UpdateHop(key HopKey, mutator func(*CustodyHop) error) (CustodyHop, error)
	CreateAuditLog(AuditLogEntry) (AuditLogEntry, error)
	CreateRelation(OnBehalfRelation) (OnBehalfRelation, error)
	PutUser(User) (User, error)
	PutEntity(Entity) (Entity, error)
	Changes() []Change
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
