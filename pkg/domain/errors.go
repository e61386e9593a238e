package domain

import "fmt"

// ValidationError reports a missing or out-of-range input field. It is
// resolved at the gateway boundary and never reaches the ledger.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrNotFound reports a lookup miss for a known entity type.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}
