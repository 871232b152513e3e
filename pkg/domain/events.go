package domain

import "time"

// EventType names a domain event derived from a before/after diff.
type EventType string

// Domain events emitted by the event detector.
const (
	EventDossierCreated              EventType = "DossierCreated"
	EventRoleHandedOver              EventType = "RoleHandedOver"
	EventAssignedToNextHolder        EventType = "AssignedToNextHolder"
	EventAssignedToInspection        EventType = "AssignedToInspection"
	EventSeizureDecided              EventType = "SeizureDecided"
	EventUnitReportedMissing         EventType = "UnitReportedMissing"
	EventUnitRefused                 EventType = "UnitRefused"
	EventDossierClosedManually       EventType = "DossierClosedManually"
	EventDossierClosedByHandoffChain EventType = "DossierClosedByHandoffChain"
	EventDossierClosedAutomatically  EventType = "DossierClosedAutomatically"
)

// DomainEvent carries the identifiers needed to dispatch side effects without
// reading live state. Key is deterministic for a given transition and is used
// for dispatch deduplication.
type DomainEvent struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Type          EventType `json:"type"`
	DossierNumero string    `json:"fei_numero"`
	ActorID       string    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`

	UnitID         string `json:"zacharie_carcasse_id,omitempty"`
	NumeroBracelet string `json:"numero_bracelet,omitempty"`
	Espece         string `json:"espece,omitempty"`

	ExaminerUserID      string `json:"examinateur_initial_user_id,omitempty"`
	FirstHolderUserID   string `json:"premier_detenteur_user_id,omitempty"`
	FirstHolderEntityID string `json:"premier_detenteur_entity_id,omitempty"`

	PreviousRole      Role   `json:"previous_role,omitempty"`
	CurrentRole       Role   `json:"current_role,omitempty"`
	CurrentUserID     string `json:"current_user_id,omitempty"`
	CurrentEntityID   string `json:"current_entity_id,omitempty"`
	NextOwnerRole     Role   `json:"next_owner_role,omitempty"`
	NextOwnerUserID   string `json:"next_owner_user_id,omitempty"`
	NextOwnerEntityID string `json:"next_owner_entity_id,omitempty"`
	SVIEntityID       string `json:"svi_entity_id,omitempty"`

	Decision   IPMDecision `json:"decision,omitempty"`
	RefusMotif string      `json:"refus_motif,omitempty"`
	HandlerID  string      `json:"intermediaire_id,omitempty"`
}
