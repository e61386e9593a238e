// Package domain defines the core persistent entities, value types, and
// pure classification functions used by herdcore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAnimal identifies a tracked animal record.
	EntityAnimal EntityType = "animal"
	// EntityReading identifies a raw telemetry reading record.
	EntityReading EntityType = "reading"
	// EntityControl identifies a canonical control ledger record.
	EntityControl EntityType = "control"
	// EntityUser identifies an attesting user record.
	EntityUser EntityType = "user"
)

// Source labels the producer that submitted a reading.
type Source string

// Reading sources: the collar device, the companion app, or a manual entry.
const (
	SourceSensor Source = "sensor"
	SourceMobile Source = "mobile"
	SourceManual Source = "manual"
)

// ParseSource validates a reading source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceSensor, SourceMobile, SourceManual:
		return Source(s), nil
	}
	return "", ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", s)}
}

// Animal is the durable record for one tracked head of livestock. It is
// created on first contact from a collar and never deleted, only deactivated.
type Animal struct {
	ID           string    `json:"id"`
	CollarID     int64     `json:"collar_id"`
	RadioAddress *string   `json:"radio_address,omitempty"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"`
	RegisteredAt CivilDate `json:"registered_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sample is an immutable normalized measurement pair owned by exactly one
// Reading. HeartRateDerived marks values synthesized from temperature when
// the producer could not sense a pulse.
type Sample struct {
	Temperature      float64 `json:"temperature"`
	HeartRate        int     `json:"heart_rate"`
	HeartRateDerived bool    `json:"heart_rate_derived,omitempty"`
}

// Reading is an append-only telemetry fact attributed to one animal and one
// producer. Multiple readings may land in the same shift.
type Reading struct {
	ID         string    `json:"id"`
	AnimalID   string    `json:"animal_id"`
	Sample     Sample    `json:"sample"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Control is the canonical, auditable ledger entry for one animal, one
// calendar day, and one shift. At most one Control exists per
// (AnimalID, Date, Shift) key.
type Control struct {
	ID              string      `json:"id"`
	AnimalID        string      `json:"animal_id"`
	RecordingUserID *string     `json:"recording_user_id,omitempty"`
	Date            CivilDate   `json:"date"`
	Shift           Shift       `json:"shift"`
	Temperature     float64     `json:"temperature"`
	HeartRate       int         `json:"heart_rate"`
	HealthState     HealthState `json:"health_state"`
	Observations    string      `json:"observations,omitempty"`
	ActionTaken     string      `json:"action_taken,omitempty"`
	ReadingID       *string     `json:"reading_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ControlKey is the ledger uniqueness key.
type ControlKey struct {
	AnimalID string    `json:"animal_id"`
	Date     CivilDate `json:"date"`
	Shift    Shift     `json:"shift"`
}

// Key returns the control's uniqueness key.
func (c Control) Key() ControlKey {
	return ControlKey{AnimalID: c.AnimalID, Date: c.Date, Shift: c.Shift}
}

// User is an attesting operator of the companion application. Account
// management lives outside this module; users are only looked up here.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Result aggregates the changes committed by a transaction.
type Result struct {
	Changes []Change
}
