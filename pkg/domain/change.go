package domain

import (
	"fmt"
	"strings"
)

// Action describes the kind of mutation captured in a Change.
type Action string

// Change actions enumerate the mutations recorded by a transaction.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	// ActionSoftDelete marks a record deleted without removing it.
	ActionSoftDelete Action = "soft_delete"
)

// Change captures one record mutation with its before/after snapshots.
// Before is undefined for creations.
type Change struct {
	Entity EntityType
	Action Action
	Key    string
	Before ChangePayload
	After  ChangePayload
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation is a single rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	Key      string
}

// Result aggregates the violations raised during rule evaluation.
type Result struct {
	Violations []Violation
}

// Merge appends violations from other.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks the commit.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
