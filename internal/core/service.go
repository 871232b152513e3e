package core

import (
	"context"
	"time"

	"gibiertrace/internal/infra/persistence/memory"
	"gibiertrace/pkg/domain"
)

// Service runs custody transitions in store transactions and hands the
// resulting events to the side-effect dispatcher after commit.
type Service struct {
	store   PersistentStore
	events  EventSink
	journal Journal
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithEventSink sets where committed events are published.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithJournal sets the sync batch journal.
func WithJournal(journal Journal) Option {
	return func(s *Service) {
		if journal != nil {
			s.journal = journal
		}
	}
}

type discardSink struct{}

func (discardSink) Publish(context.Context, []domain.DomainEvent) {}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		events:  discardSink{},
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// ApplyDossier creates or updates a dossier and returns its joined view.
func (s *Service) ApplyDossier(ctx context.Context, actor domain.Actor, numero string, patch domain.DossierPatch) (domain.DossierView, Result, error) {
	var tr Transition[domain.Dossier]
	res, err := s.instrument(ctx, "apply_dossier", actor.ID, numero, func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			tr, err = ApplyDossierPatch(tx, actor, numero, patch)
			return err
		})
	})
	if err != nil {
		return domain.DossierView{}, res, err
	}
	s.events.Publish(ctx, DetectDossierEvents(tr.Before, tr.After, actor.ID))
	view, err := s.loadView(ctx, numero, true)
	return view, res, err
}

// ApplyUnit creates or updates a unit of dossier numero.
func (s *Service) ApplyUnit(ctx context.Context, actor domain.Actor, numero, unitID string, patch domain.UnitPatch) (domain.Unit, Result, error) {
	var tr UnitTransition
	res, err := s.instrument(ctx, "apply_unit", actor.ID, unitID, func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			tr, err = ApplyUnitPatch(tx, actor, numero, unitID, patch)
			return err
		})
	})
	if err != nil {
		return domain.Unit{}, res, err
	}
	s.events.Publish(ctx, DetectUnitEvents(tr.Before, tr.After, tr.Dossier, actor.ID))
	return tr.After, res, nil
}

// UpsertHop records a handler decision for a unit.
func (s *Service) UpsertHop(ctx context.Context, actor domain.Actor, numero, unitID, handlerID string, patch domain.HopPatch) (domain.CustodyHop, Result, error) {
	var tr HopTransition
	key := domain.HopKey{DossierNumero: numero, UnitID: unitID, HandlerID: handlerID}
	res, err := s.instrument(ctx, "upsert_hop", actor.ID, key.String(), func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			tr, err = UpsertHop(tx, numero, unitID, handlerID, patch)
			return err
		})
	})
	if err != nil {
		return domain.CustodyHop{}, res, err
	}
	if tr.Unit != nil {
		s.events.Publish(ctx, DetectUnitEvents(tr.Unit.Before, tr.Unit.After, tr.Dossier, actor.ID))
	}
	return tr.After, res, nil
}

// RecordLog stores a client audit log entry outside of a sync batch.
func (s *Service) RecordLog(ctx context.Context, actor domain.Actor, entry domain.AuditLogEntry) error {
	_, err := s.instrument(ctx, "record_log", actor.ID, entry.ID, func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return RecordAuditLog(tx, actor, entry)
		})
	})
	return err
}

// PutUser creates or replaces a directory user.
func (s *Service) PutUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		return domain.ValidationError{Entity: domain.EntityUser, Field: "id", Reason: "is required"}
	}
	_, err := s.instrument(ctx, "put_user", "", user.ID, func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.PutUser(user)
			return err
		})
	})
	return err
}

// PutEntity creates or replaces a directory entity.
func (s *Service) PutEntity(ctx context.Context, entity domain.Entity) error {
	if entity.ID == "" {
		return domain.ValidationError{Entity: domain.EntityEntity, Field: "id", Reason: "is required"}
	}
	_, err := s.instrument(ctx, "put_entity", "", entity.ID, func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.PutEntity(entity)
			return err
		})
	})
	return err
}

// GetDossier returns a live dossier joined with its live units and hops.
func (s *Service) GetDossier(ctx context.Context, numero string) (domain.DossierView, error) {
	return s.loadView(ctx, numero, false)
}

func (s *Service) loadView(ctx context.Context, numero string, includeDeleted bool) (domain.DossierView, error) {
	var view domain.DossierView
	err := s.store.View(ctx, func(v TransactionView) error {
		d, ok := v.FindDossier(numero)
		if !ok || (d.IsDeleted() && !includeDeleted) {
			return domain.NotFoundError{Entity: domain.EntityDossier, Key: numero}
		}
		view = joinDossier(v, d)
		return nil
	})
	return view, err
}

func joinDossier(v TransactionView, d domain.Dossier) domain.DossierView {
	view := domain.DossierView{Dossier: d, Units: []domain.Unit{}, Hops: []domain.CustodyHop{}}
	for _, u := range v.ListUnits(d.Numero) {
		if !u.IsDeleted() {
			view.Units = append(view.Units, u)
		}
	}
	for _, h := range v.ListHops(d.Numero) {
		if h.DeletedAt == nil {
			view.Hops = append(view.Hops, h)
		}
	}
	return view
}

func (s *Service) instrument(ctx context.Context, op, actorID, key string, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	res, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordAudit(ctx, op, actorID, key, duration, err)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "message", v.Message)
		}
	}
	if err != nil {
		s.logger.Warn("operation failed", "operation", op, "actor", actorID, "key", key, "error", err)
	} else {
		s.logger.Debug("operation applied", "operation", op, "actor", actorID, "key", key, "duration", duration)
	}
	return res, err
}

func (s *Service) recordAudit(ctx context.Context, op, actorID, key string, duration time.Duration, err error) {
	meta, ok := operationMeta[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  key,
		ActorID:   actorID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
