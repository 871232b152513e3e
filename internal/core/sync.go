package core

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"

	"gibiertrace/pkg/domain"
)

// SyncBatch is an offline client's batch of local edits.
type SyncBatch struct {
	Dossiers []domain.DossierPatch  `json:"feis"`
	Units    []domain.UnitPatch     `json:"carcasses"`
	Hops     []domain.HopPatch      `json:"carcassesIntermediaires"`
	Logs     []domain.AuditLogEntry `json:"logs"`
}

// ItemOutcome reports a rejected batch item.
type ItemOutcome struct {
	Kind   domain.EntityType `json:"type"`
	Key    string            `json:"key"`
	Status string            `json:"status"`
	Reason string            `json:"reason"`
}

// SyncResult is the canonical state returned to the client after a sync.
type SyncResult struct {
	BatchID      string               `json:"batchId"`
	Dossiers     []domain.DossierView `json:"feis"`
	Units        []domain.Unit        `json:"carcasses"`
	Hops         []domain.CustodyHop  `json:"carcassesIntermediaires"`
	SyncedLogIDs []string             `json:"syncedLogIds"`
	Rejected     []ItemOutcome        `json:"rejected"`
}

const outcomeRejected = "rejected"

// Sync reconciles a batch: dossiers, then units, then hops, then logs, one
// transaction per item. A failing item is reported and skipped; earlier items
// stay committed. Events are published once every item has been processed.
func (s *Service) Sync(ctx context.Context, actor domain.Actor, batch SyncBatch) SyncResult {
	result := SyncResult{
		BatchID:      ulid.Make().String(),
		Dossiers:     []domain.DossierView{},
		Units:        []domain.Unit{},
		Hops:         []domain.CustodyHop{},
		SyncedLogIDs: []string{},
		Rejected:     []ItemOutcome{},
	}
	ctx, span := s.tracer.Start(ctx, "sync")
	start := s.clock.Now()
	s.archive(ctx, actor, result.BatchID, batch)

	var touched []string
	seen := map[string]struct{}{}
	touch := func(numero string) {
		if _, ok := seen[numero]; ok {
			return
		}
		seen[numero] = struct{}{}
		touched = append(touched, numero)
	}
	var events []domain.DomainEvent
	reject := func(kind domain.EntityType, key string, err error) {
		s.logger.Warn("sync item rejected", "batch", result.BatchID, "actor", actor.ID, "type", kind, "key", key, "error", err)
		result.Rejected = append(result.Rejected, ItemOutcome{Kind: kind, Key: key, Status: outcomeRejected, Reason: err.Error()})
	}

	for _, patch := range batch.Dossiers {
		var tr Transition[domain.Dossier]
		err := s.syncItem(ctx, func(tx Transaction) error {
			var err error
			tr, err = ApplyDossierPatch(tx, actor, patch.Numero, patch)
			return err
		})
		if err != nil {
			reject(domain.EntityDossier, patch.Numero, err)
			continue
		}
		touch(patch.Numero)
		events = append(events, DetectDossierEvents(tr.Before, tr.After, actor.ID)...)
	}

	for _, patch := range batch.Units {
		var tr UnitTransition
		err := s.syncItem(ctx, func(tx Transaction) error {
			var err error
			tr, err = ApplyUnitPatch(tx, actor, patch.DossierNumero, patch.UnitID, patch)
			return err
		})
		if err != nil {
			reject(domain.EntityUnit, patch.UnitID, err)
			continue
		}
		touch(patch.DossierNumero)
		result.Units = append(result.Units, tr.After)
		events = append(events, DetectUnitEvents(tr.Before, tr.After, tr.Dossier, actor.ID)...)
	}

	for _, patch := range batch.Hops {
		var tr HopTransition
		err := s.syncItem(ctx, func(tx Transaction) error {
			var err error
			tr, err = UpsertHop(tx, patch.DossierNumero, patch.UnitID, patch.HandlerID, patch)
			return err
		})
		if err != nil {
			reject(domain.EntityHop, patch.Key().String(), err)
			continue
		}
		touch(patch.DossierNumero)
		result.Hops = append(result.Hops, tr.After)
		if tr.Unit != nil {
			events = append(events, DetectUnitEvents(tr.Unit.Before, tr.Unit.After, tr.Dossier, actor.ID)...)
		}
	}

	for _, entry := range batch.Logs {
		err := s.syncItem(ctx, func(tx Transaction) error {
			return RecordAuditLog(tx, actor, entry)
		})
		if err != nil {
			reject(domain.EntityAuditLog, entry.ID, err)
			continue
		}
		result.SyncedLogIDs = append(result.SyncedLogIDs, entry.ID)
	}

	s.events.Publish(ctx, events)

	for _, numero := range touched {
		view, err := s.loadView(ctx, numero, true)
		if err != nil {
			s.logger.Warn("reload synced fei failed", "batch", result.BatchID, "fei", numero, "error", err)
			continue
		}
		result.Dossiers = append(result.Dossiers, view)
	}

	duration := s.clock.Now().Sub(start)
	span.End(nil)
	s.metrics.Observe(ctx, "sync", len(result.Rejected) == 0, duration)
	s.recordAudit(ctx, "sync", actor.ID, result.BatchID, duration, nil)
	s.logger.Info("sync batch reconciled",
		"batch", result.BatchID,
		"actor", actor.ID,
		"feis", len(batch.Dossiers),
		"carcasses", len(batch.Units),
		"intermediaires", len(batch.Hops),
		"logs", len(batch.Logs),
		"rejected", len(result.Rejected),
	)
	return result
}

func (s *Service) syncItem(ctx context.Context, fn func(Transaction) error) error {
	start := s.clock.Now()
	_, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, "sync_item", err == nil, s.clock.Now().Sub(start))
	return err
}

// archive writes the raw batch to the journal. Failures are logged only.
func (s *Service) archive(ctx context.Context, actor domain.Actor, batchID string, batch SyncBatch) {
	if s.journal == nil {
		return
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		s.logger.Warn("encode sync batch failed", "batch", batchID, "error", err)
		return
	}
	entry := JournalEntry{BatchID: batchID, ActorID: actor.ID, ReceivedAt: s.clock.Now(), Payload: payload}
	if err := s.journal.Archive(ctx, entry); err != nil {
		s.logger.Warn("archive sync batch failed", "batch", batchID, "error", err)
	}
}

// RecordAuditLog stores a client audit log entry once. Resubmitting an id
// already stored is a no-op.
func RecordAuditLog(tx Transaction, actor domain.Actor, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		return domain.ValidationError{Entity: domain.EntityAuditLog, Field: "id", Reason: "is required"}
	}
	if _, ok := tx.FindAuditLog(entry.ID); ok {
		return nil
	}
	if entry.UserID == "" {
		entry.UserID = actor.ID
	}
	_, err := tx.CreateAuditLog(entry)
	return err
}
