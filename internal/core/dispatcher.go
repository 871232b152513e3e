package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"gibiertrace/pkg/domain"
)

const defaultDispatchQueueSize = 256

// DispatcherDeps wires the dispatcher collaborators. Nil collaborators are skipped.
type DispatcherDeps struct {
	Directory Directory
	Notifier  NotificationSender
	Webhooks  WebhookSender
	CRM       CrmSync
	Dedup     DedupStore
	Logger    Logger
	Metrics   MetricsRecorder
	Clock     Clock
	QueueSize int
}

// Dispatcher runs side effects for committed domain events on a single worker
// goroutine. Failures are logged and counted; nothing is retried.
type Dispatcher struct {
	deps    DispatcherDeps
	queue   chan domain.DomainEvent
	done    chan struct{}
	mu      sync.Mutex
	started bool
	closed  bool
}

var _ EventSink = (*Dispatcher)(nil)

// NewDispatcher constructs a dispatcher. Call Start to begin draining the queue.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetricsRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = defaultDispatchQueueSize
	}
	return &Dispatcher{
		deps:  deps,
		queue: make(chan domain.DomainEvent, deps.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		_ = d.Dispatch(context.Background(), ev)
	}
}

// Publish enqueues events without blocking. Events published after Close, or
// while the queue is full, are dropped and logged.
func (d *Dispatcher) Publish(_ context.Context, events []domain.DomainEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = ulid.Make().String()
		}
		if d.closed {
			d.deps.Logger.Warn("dispatcher closed, dropping event", "event", ev.Type, "key", ev.Key)
			continue
		}
		select {
		case d.queue <- ev:
		default:
			d.deps.Logger.Warn("dispatch queue full, dropping event", "event", ev.Type, "key", ev.Key)
			d.deps.Metrics.Observe(context.Background(), "dispatch_enqueue", false, 0)
		}
	}
}

// Close stops accepting events and waits for queued ones to be processed.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	if !d.started {
		d.started = true
		go d.run()
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch runs the side effects of one event synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.DomainEvent) error {
	start := d.deps.Clock.Now()
	log := d.deps.Logger

	if d.deps.Dedup != nil && ev.Key != "" {
		seen, err := d.deps.Dedup.Seen(ctx, ev.Key)
		if err != nil {
			log.Warn("dedup lookup failed", "key", ev.Key, "error", err)
		} else if seen {
			log.Debug("event already dispatched", "key", ev.Key)
			return nil
		}
	}

	users, entities := d.resolveParties(ctx, ev)
	notification := notificationFor(ev)

	var errs []error
	for _, user := range users {
		if d.deps.Notifier != nil {
			n := notification
			n.Email = user.WantsEmail()
			if err := d.deps.Notifier.Send(ctx, user, n); err != nil {
				errs = append(errs, fmt.Errorf("notify %s: %w", user.ID, err))
			}
		}
		if d.deps.Webhooks != nil {
			if err := d.deps.Webhooks.Send(ctx, user.ID, string(ev.Type), ev); err != nil {
				errs = append(errs, fmt.Errorf("webhook %s: %w", user.ID, err))
			}
		}
		if d.deps.CRM != nil {
			if err := d.deps.CRM.UpsertContact(ctx, user); err != nil {
				errs = append(errs, fmt.Errorf("crm contact %s: %w", user.ID, err))
			}
		}
	}
	if d.deps.CRM != nil {
		for _, entity := range entities {
			if err := d.deps.CRM.UpsertCompany(ctx, entity); err != nil {
				errs = append(errs, fmt.Errorf("crm company %s: %w", entity.ID, err))
			}
		}
		if err := d.deps.CRM.UpdateDeal(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("crm deal: %w", err))
		}
	}

	if d.deps.Dedup != nil && ev.Key != "" {
		if err := d.deps.Dedup.MarkProcessed(ctx, ev.Key); err != nil {
			errs = append(errs, fmt.Errorf("mark processed: %w", err))
		}
	}

	err := errors.Join(errs...)
	d.deps.Metrics.Observe(ctx, "dispatch", err == nil, d.deps.Clock.Now().Sub(start))
	if err != nil {
		log.Error("side effects failed", "event", ev.Type, "key", ev.Key, "fei", ev.DossierNumero, "error", err)
		return err
	}
	log.Info("side effects dispatched", "event", ev.Type, "fei", ev.DossierNumero, "recipients", len(users))
	return nil
}

// resolveParties returns the users to notify, without the acting user, and the
// entities involved in the event.
func (d *Dispatcher) resolveParties(ctx context.Context, ev domain.DomainEvent) ([]domain.User, []domain.Entity) {
	if d.deps.Directory == nil {
		return nil, nil
	}
	var userIDs, entityIDs []string
	switch ev.Type {
	case domain.EventDossierCreated:
		userIDs = append(userIDs, ev.ExaminerUserID)
	case domain.EventAssignedToNextHolder:
		if ev.NextOwnerUserID != "" {
			userIDs = append(userIDs, ev.NextOwnerUserID)
		}
		entityIDs = append(entityIDs, ev.NextOwnerEntityID)
	case domain.EventAssignedToInspection:
		svi := ev.NextOwnerEntityID
		if svi == "" {
			svi = ev.SVIEntityID
		}
		entityIDs = append(entityIDs, svi)
	default:
		userIDs = append(userIDs, ev.ExaminerUserID, ev.FirstHolderUserID)
		entityIDs = append(entityIDs, ev.FirstHolderEntityID)
	}

	seen := map[string]struct{}{ev.ActorID: {}}
	var users []domain.User
	addUser := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		user, ok, err := d.deps.Directory.FindUser(ctx, id)
		if err != nil {
			d.deps.Logger.Warn("resolve user failed", "user_id", id, "error", err)
			return
		}
		if ok {
			users = append(users, user)
		}
	}
	for _, id := range userIDs {
		addUser(id)
	}

	var entities []domain.Entity
	for _, id := range entityIDs {
		if id == "" {
			continue
		}
		entity, ok, err := d.deps.Directory.FindEntity(ctx, id)
		if err != nil {
			d.deps.Logger.Warn("resolve entity failed", "entity_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		entities = append(entities, entity)
		// Entity members receive handoffs only when no single user was named.
		if ev.Type == domain.EventAssignedToNextHolder && ev.NextOwnerUserID != "" {
			continue
		}
		for _, member := range entity.MemberIDs {
			addUser(member)
		}
	}
	return users, entities
}

func notificationFor(ev domain.DomainEvent) Notification {
	n := Notification{}
	switch ev.Type {
	case domain.EventDossierCreated:
		n.Title = fmt.Sprintf("Fiche %s créée", ev.DossierNumero)
		n.Body = "La fiche d'accompagnement a été enregistrée."
	case domain.EventRoleHandedOver:
		n.Title = fmt.Sprintf("Fiche %s prise en charge", ev.DossierNumero)
		n.Body = fmt.Sprintf("La fiche est passée de %s à %s.", ev.PreviousRole, ev.CurrentRole)
	case domain.EventAssignedToNextHolder:
		n.Title = fmt.Sprintf("Nouvelle fiche %s à traiter", ev.DossierNumero)
		n.Body = "Une fiche d'accompagnement vous a été attribuée."
	case domain.EventAssignedToInspection:
		n.Title = fmt.Sprintf("Fiche %s à inspecter", ev.DossierNumero)
		n.Body = "Une fiche a été transmise au service d'inspection."
	case domain.EventSeizureDecided:
		n.Title = fmt.Sprintf("Carcasse %s saisie", ev.NumeroBracelet)
		n.Body = fmt.Sprintf("Décision d'inspection %s sur la fiche %s.", ev.Decision, ev.DossierNumero)
		if data, err := json.MarshalIndent(ev, "", "  "); err == nil {
			n.Attachments = append(n.Attachments, Attachment{
				Name:        fmt.Sprintf("saisie-%s.json", ev.NumeroBracelet),
				ContentType: "application/json",
				Data:        data,
			})
		}
	case domain.EventUnitReportedMissing:
		n.Title = fmt.Sprintf("Carcasse %s manquante", ev.NumeroBracelet)
		n.Body = fmt.Sprintf("La carcasse a été signalée manquante sur la fiche %s.", ev.DossierNumero)
	case domain.EventUnitRefused:
		n.Title = fmt.Sprintf("Carcasse %s refusée", ev.NumeroBracelet)
		n.Body = fmt.Sprintf("Motif : %s.", ev.RefusMotif)
	case domain.EventDossierClosedManually, domain.EventDossierClosedByHandoffChain, domain.EventDossierClosedAutomatically:
		n.Title = fmt.Sprintf("Fiche %s clôturée", ev.DossierNumero)
		n.Body = "La fiche d'accompagnement est clôturée."
	default:
		n.Title = string(ev.Type)
	}
	return n
}
