// Package snapshot implements the Snapshot Projections (C5): read-only,
// denormalized facts about patients and doctors, kept up to date by
// consuming the events their owning services publish, and served through
// a Redis cache-aside layer so C6's appointment lookups don't hit
// Postgres on every request.
package snapshot

import "time"

// PatientFacts is the projection C6 needs to validate an appointment
// request without calling the patient service directly.
type PatientFacts struct {
	PatientID   string    `json:"patientId"`
	TenantID    string    `json:"tenantId"`
	FullName    string    `json:"fullName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Disease     string    `json:"disease"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DoctorFacts is the projection C6 needs: specialty drives the
// disease-to-specialty matching invariant.
type DoctorFacts struct {
	DoctorID  string    `json:"doctorId"`
	TenantID  string    `json:"tenantId"`
	FullName  string    `json:"fullName"`
	Specialty string    `json:"specialty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
