package core

import (
	"time"

	"gibiertrace/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
	Rule            = domain.Rule
	RulesEngine     = domain.RulesEngine
	Result          = domain.Result
	Change          = domain.Change
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the custody invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(DossierClosureRule())
	engine.Register(CustodyRoleSequenceRule())
	engine.Register(CustodyReferencesRule())
	return engine
}

func blockf(rule string, entity domain.EntityType, key, msg string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityBlock, Message: msg, Entity: entity, Key: key}
}

func rolesEqual(a, b *domain.Role) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
