package domain

import "fmt"

// ValidationError reports a malformed or incomplete mutation.
type ValidationError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

// AuthorizationError reports a failed role or ownership check.
type AuthorizationError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("user %q may not %s: %s", e.ActorID, e.Action, e.Reason)
}

// NotFoundError reports a missing referenced record.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ConflictError reports a duplicate record or a stale write.
type ConflictError struct {
	Entity EntityType
	Key    string
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s conflict: %s", e.Entity, e.Key, e.Reason)
}
