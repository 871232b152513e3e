// Package memory provides the in-memory transactional store for custody
// records. It backs tests and ephemeral deployments, and is wrapped by the
// sqlite and postgres snapshot stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gibiertrace/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Dossier aliases domain.Dossier for in-memory persistence operations.
	Dossier = domain.Dossier
	// Unit aliases domain.Unit.
	Unit = domain.Unit
	// CustodyHop aliases domain.CustodyHop.
	CustodyHop = domain.CustodyHop
	// AuditLogEntry aliases domain.AuditLogEntry.
	AuditLogEntry = domain.AuditLogEntry
	// OnBehalfRelation aliases domain.OnBehalfRelation.
	OnBehalfRelation = domain.OnBehalfRelation
	User             = domain.User
	Entity           = domain.Entity
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustPayload[T any](label string, value T) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
	return payload
}

type memoryState struct {
	dossiers  map[string]Dossier
	units     map[string]Unit
	hops      map[domain.HopKey]CustodyHop
	logs      map[string]AuditLogEntry
	relations map[string]OnBehalfRelation
	users     map[string]User
	entities  map[string]Entity
}

// Snapshot captures a point-in-time clone of the store state. Hops are keyed by
// HopKey.String() so the snapshot round-trips through JSON.
type Snapshot struct {
	Dossiers  map[string]Dossier          `json:"dossiers"`
	Units     map[string]Unit             `json:"units"`
	Hops      map[string]CustodyHop       `json:"hops"`
	Logs      map[string]AuditLogEntry    `json:"logs"`
	Relations map[string]OnBehalfRelation `json:"relations"`
	Users     map[string]User             `json:"users"`
	Entities  map[string]Entity           `json:"entities"`
}

func newMemoryState() memoryState {
	return memoryState{
		dossiers:  make(map[string]Dossier),
		units:     make(map[string]Unit),
		hops:      make(map[domain.HopKey]CustodyHop),
		logs:      make(map[string]AuditLogEntry),
		relations: make(map[string]OnBehalfRelation),
		users:     make(map[string]User),
		entities:  make(map[string]Entity),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Dossiers:  make(map[string]Dossier, len(state.dossiers)),
		Units:     make(map[string]Unit, len(state.units)),
		Hops:      make(map[string]CustodyHop, len(state.hops)),
		Logs:      make(map[string]AuditLogEntry, len(state.logs)),
		Relations: make(map[string]OnBehalfRelation, len(state.relations)),
		Users:     make(map[string]User, len(state.users)),
		Entities:  make(map[string]Entity, len(state.entities)),
	}
	for k, v := range state.dossiers {
		s.Dossiers[k] = v
	}
	for k, v := range state.units {
		s.Units[k] = cloneUnit(v)
	}
	for k, v := range state.hops {
		s.Hops[k.String()] = v
	}
	for k, v := range state.logs {
		s.Logs[k] = cloneAuditLog(v)
	}
	for k, v := range state.relations {
		s.Relations[k] = v
	}
	for k, v := range state.users {
		s.Users[k] = cloneUser(v)
	}
	for k, v := range state.entities {
		s.Entities[k] = cloneEntity(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Dossiers {
		if v.Numero == "" {
			v.Numero = k
		}
		state.dossiers[v.Numero] = v
	}
	for k, v := range s.Units {
		if v.UnitID == "" {
			v.UnitID = k
		}
		state.units[v.UnitID] = cloneUnit(v)
	}
	for _, v := range s.Hops {
		state.hops[v.Key()] = v
	}
	for k, v := range s.Logs {
		state.logs[k] = cloneAuditLog(v)
	}
	for _, v := range s.Relations {
		state.relations[v.Key()] = v
	}
	for k, v := range s.Users {
		state.users[k] = cloneUser(v)
	}
	for k, v := range s.Entities {
		state.entities[k] = cloneEntity(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneUnit(u Unit) Unit {
	cp := u
	cp.ExaminateurAnomaliesCarcasse = cloneStrings(u.ExaminateurAnomaliesCarcasse)
	cp.ExaminateurAnomaliesAbats = cloneStrings(u.ExaminateurAnomaliesAbats)
	cp.SVIIPM1LesionsOuMotifs = cloneStrings(u.SVIIPM1LesionsOuMotifs)
	cp.SVIIPM1Pieces = cloneStrings(u.SVIIPM1Pieces)
	cp.SVIIPM2LesionsOuMotifs = cloneStrings(u.SVIIPM2LesionsOuMotifs)
	cp.SVIIPM2Pieces = cloneStrings(u.SVIIPM2Pieces)
	return cp
}

func cloneAuditLog(l AuditLogEntry) AuditLogEntry {
	cp := l
	if l.History != nil {
		cp.History = append([]byte(nil), l.History...)
	}
	return cp
}

func cloneUser(u User) User {
	cp := u
	cp.Roles = append([]domain.Role(nil), u.Roles...)
	cp.Notifications = cloneStrings(u.Notifications)
	return cp
}

func cloneEntity(e Entity) Entity {
	cp := e
	cp.MemberIDs = cloneStrings(e.MemberIDs)
	return cp
}

// Store provides an in-memory transactional store for the custody domain.
// Writers are serialized; each transaction mutates a private clone that
// replaces the live state only when the function and the rules succeed.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider stamping created_at/updated_at.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	transactionView
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	state := s.state.clone()
	tx := &transaction{
		transactionView: transactionView{state: &state},
		now:             s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, newTransactionView(&state), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (v transactionView) FindDossier(numero string) (Dossier, bool) {
	d, ok := v.state.dossiers[numero]
	return d, ok
}

func (v transactionView) FindUnit(unitID string) (Unit, bool) {
	u, ok := v.state.units[unitID]
	if !ok {
		return Unit{}, false
	}
	return cloneUnit(u), true
}

func (v transactionView) FindHop(key domain.HopKey) (CustodyHop, bool) {
	h, ok := v.state.hops[key]
	return h, ok
}

func (v transactionView) FindAuditLog(id string) (AuditLogEntry, bool) {
	l, ok := v.state.logs[id]
	if !ok {
		return AuditLogEntry{}, false
	}
	return cloneAuditLog(l), true
}

func (v transactionView) FindRelation(ownerID, entityID string, kind domain.RelationType) (OnBehalfRelation, bool) {
	r, ok := v.state.relations[domain.RelationKey(ownerID, entityID, kind)]
	return r, ok
}

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

func (v transactionView) FindEntity(id string) (Entity, bool) {
	e, ok := v.state.entities[id]
	if !ok {
		return Entity{}, false
	}
	return cloneEntity(e), true
}

// ListDossiers returns every dossier ordered by numero, deleted ones included.
func (v transactionView) ListDossiers() []Dossier {
	out := make([]Dossier, 0, len(v.state.dossiers))
	for _, d := range v.state.dossiers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Numero < out[j].Numero })
	return out
}

// ListUnits returns the units of a dossier in creation order, deleted ones included.
func (v transactionView) ListUnits(dossierNumero string) []Unit {
	var out []Unit
	for _, u := range v.state.units {
		if u.DossierNumero == dossierNumero {
			out = append(out, cloneUnit(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}

// ListHops returns every hop of a dossier ordered by unit then handler.
func (v transactionView) ListHops(dossierNumero string) []CustodyHop {
	var out []CustodyHop
	for k, h := range v.state.hops {
		if k.DossierNumero == dossierNumero {
			out = append(out, h)
		}
	}
	sortHops(out)
	return out
}

// ListUnitHops returns the hops recorded for one unit.
func (v transactionView) ListUnitHops(dossierNumero, unitID string) []CustodyHop {
	var out []CustodyHop
	for k, h := range v.state.hops {
		if k.DossierNumero == dossierNumero && k.UnitID == unitID {
			out = append(out, h)
		}
	}
	sortHops(out)
	return out
}

func sortHops(hops []CustodyHop) {
	sort.Slice(hops, func(i, j int) bool {
		return hops[i].Key().String() < hops[j].Key().String()
	})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(tx.state)
}

// Changes returns the changes recorded so far in this transaction.
func (tx *transaction) Changes() []Change {
	return append([]Change(nil), tx.changes...)
}

func updateAction(wasDeleted, isDeleted bool) domain.Action {
	if !wasDeleted && isDeleted {
		return domain.ActionSoftDelete
	}
	return domain.ActionUpdate
}

// CreateDossier stores a new dossier at version 1.
func (tx *transaction) CreateDossier(d Dossier) (Dossier, error) {
	if d.Numero == "" {
		return Dossier{}, domain.ValidationError{Entity: domain.EntityDossier, Field: "numero", Reason: "is required"}
	}
	if _, exists := tx.state.dossiers[d.Numero]; exists {
		return Dossier{}, domain.ConflictError{Entity: domain.EntityDossier, Key: d.Numero, Reason: "already exists"}
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	d.Version = 1
	tx.state.dossiers[d.Numero] = d
	tx.recordChange(Change{Entity: domain.EntityDossier, Action: domain.ActionCreate, Key: d.Numero, After: mustPayload("dossier", d)})
	return d, nil
}

// UpdateDossier mutates a dossier; numero and creation metadata are preserved
// and the version is bumped.
func (tx *transaction) UpdateDossier(numero string, mutator func(*Dossier) error) (Dossier, error) {
	current, ok := tx.state.dossiers[numero]
	if !ok {
		return Dossier{}, domain.NotFoundError{Entity: domain.EntityDossier, Key: numero}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Dossier{}, err
	}
	current.Numero = numero
	current.CreatedAt = before.CreatedAt
	current.CreatedByUserID = before.CreatedByUserID
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.dossiers[numero] = current
	tx.recordChange(Change{
		Entity: domain.EntityDossier,
		Action: updateAction(before.IsDeleted(), current.IsDeleted()),
		Key:    numero,
		Before: mustPayload("dossier", before),
		After:  mustPayload("dossier", current),
	})
	return current, nil
}

// CreateUnit stores a new unit; the unit id is globally unique.
func (tx *transaction) CreateUnit(u Unit) (Unit, error) {
	if u.UnitID == "" {
		return Unit{}, domain.ValidationError{Entity: domain.EntityUnit, Field: "zacharie_carcasse_id", Reason: "is required"}
	}
	if existing, exists := tx.state.units[u.UnitID]; exists {
		return Unit{}, domain.ConflictError{Entity: domain.EntityUnit, Key: u.UnitID, Reason: fmt.Sprintf("already bound to fei %s", existing.DossierNumero)}
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.units[u.UnitID] = cloneUnit(u)
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionCreate, Key: u.UnitID, After: mustPayload("unit", u)})
	return cloneUnit(u), nil
}

// UpdateUnit mutates a unit; its identity and owning dossier are preserved.
func (tx *transaction) UpdateUnit(unitID string, mutator func(*Unit) error) (Unit, error) {
	current, ok := tx.state.units[unitID]
	if !ok {
		return Unit{}, domain.NotFoundError{Entity: domain.EntityUnit, Key: unitID}
	}
	before := cloneUnit(current)
	current = cloneUnit(current)
	if err := mutator(&current); err != nil {
		return Unit{}, err
	}
	current.UnitID = unitID
	current.DossierNumero = before.DossierNumero
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.units[unitID] = cloneUnit(current)
	tx.recordChange(Change{
		Entity: domain.EntityUnit,
		Action: updateAction(before.IsDeleted(), current.IsDeleted()),
		Key:    unitID,
		Before: mustPayload("unit", before),
		After:  mustPayload("unit", current),
	})
	return cloneUnit(current), nil
}

// CreateHop stores a new custody hop under its composite key.
func (tx *transaction) CreateHop(h CustodyHop) (CustodyHop, error) {
	key := h.Key()
	if key.DossierNumero == "" || key.UnitID == "" || key.HandlerID == "" {
		return CustodyHop{}, domain.ValidationError{Entity: domain.EntityHop, Reason: "fei_numero, zacharie_carcasse_id and intermediaire_id are required"}
	}
	if _, exists := tx.state.hops[key]; exists {
		return CustodyHop{}, domain.ConflictError{Entity: domain.EntityHop, Key: key.String(), Reason: "already exists"}
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = tx.now
	h.UpdatedAt = tx.now
	tx.state.hops[key] = h
	tx.recordChange(Change{Entity: domain.EntityHop, Action: domain.ActionCreate, Key: key.String(), After: mustPayload("hop", h)})
	return h, nil
}

// UpdateHop mutates a custody hop; its composite key and id are preserved.
func (tx *transaction) UpdateHop(key domain.HopKey, mutator func(*CustodyHop) error) (CustodyHop, error) {
	current, ok := tx.state.hops[key]
	if !ok {
		return CustodyHop{}, domain.NotFoundError{Entity: domain.EntityHop, Key: key.String()}
	}
	before := current
	if err := mutator(&current); err != nil {
		return CustodyHop{}, err
	}
	current.ID = before.ID
	current.DossierNumero, current.UnitID, current.HandlerID = key.DossierNumero, key.UnitID, key.HandlerID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.hops[key] = current
	tx.recordChange(Change{
		Entity: domain.EntityHop,
		Action: updateAction(before.DeletedAt != nil, current.DeletedAt != nil),
		Key:    key.String(),
		Before: mustPayload("hop", before),
		After:  mustPayload("hop", current),
	})
	return current, nil
}

// CreateAuditLog appends a write-once audit log entry.
func (tx *transaction) CreateAuditLog(l AuditLogEntry) (AuditLogEntry, error) {
	if l.ID == "" {
		return AuditLogEntry{}, domain.ValidationError{Entity: domain.EntityAuditLog, Field: "id", Reason: "is required"}
	}
	if _, exists := tx.state.logs[l.ID]; exists {
		return AuditLogEntry{}, domain.ConflictError{Entity: domain.EntityAuditLog, Key: l.ID, Reason: "already recorded"}
	}
	l.CreatedAt = tx.now
	tx.state.logs[l.ID] = cloneAuditLog(l)
	tx.recordChange(Change{Entity: domain.EntityAuditLog, Action: domain.ActionCreate, Key: l.ID, After: mustPayload("log", l)})
	return cloneAuditLog(l), nil
}

// CreateRelation stores a relation; a duplicate (owner, entity, type) is a conflict.
func (tx *transaction) CreateRelation(r OnBehalfRelation) (OnBehalfRelation, error) {
	if r.Type == "" {
		r.Type = domain.RelationWorkingFor
	}
	key := r.Key()
	if _, exists := tx.state.relations[key]; exists {
		return OnBehalfRelation{}, domain.ConflictError{Entity: domain.EntityRelation, Key: key, Reason: "already exists"}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = tx.now
	tx.state.relations[key] = r
	tx.recordChange(Change{Entity: domain.EntityRelation, Action: domain.ActionCreate, Key: key, After: mustPayload("relation", r)})
	return r, nil
}

// PutUser inserts or replaces a directory user.
func (tx *transaction) PutUser(u User) (User, error) {
	if u.ID == "" {
		return User{}, domain.ValidationError{Entity: domain.EntityUser, Field: "id", Reason: "is required"}
	}
	change := Change{Entity: domain.EntityUser, Action: domain.ActionCreate, Key: u.ID, After: mustPayload("user", u)}
	if before, ok := tx.state.users[u.ID]; ok {
		change.Action = domain.ActionUpdate
		change.Before = mustPayload("user", before)
	}
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(change)
	return cloneUser(u), nil
}

// PutEntity inserts or replaces a directory entity.
func (tx *transaction) PutEntity(e Entity) (Entity, error) {
	if e.ID == "" {
		return Entity{}, domain.ValidationError{Entity: domain.EntityEntity, Field: "id", Reason: "is required"}
	}
	change := Change{Entity: domain.EntityEntity, Action: domain.ActionCreate, Key: e.ID, After: mustPayload("entity", e)}
	if before, ok := tx.state.entities[e.ID]; ok {
		change.Action = domain.ActionUpdate
		change.Before = mustPayload("entity", before)
	}
	tx.state.entities[e.ID] = cloneEntity(e)
	tx.recordChange(change)
	return cloneEntity(e), nil
}
