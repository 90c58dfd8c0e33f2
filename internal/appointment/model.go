// Package appointment implements the Appointment Coordinator (C6): the
// disease/specialty matching invariant, the no-double-booking lock, the
// appointment state machine, and the read paths that serve entirely off
// the local snapshots C5 maintains.
package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

// validTransitions encodes the state machine spec.md §4.6 names:
// PENDING -> CONFIRMED | CANCELLED, CONFIRMED -> COMPLETED | CANCELLED | NO_SHOW.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// state machine edge.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

type Appointment struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AppointmentDate time.Time
	Status          Status
	Reason          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
