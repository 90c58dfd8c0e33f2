// Package eventbus implements the event fabric (spec.md §4.4): a typed
// envelope, a routing-key/stream topology realized on Redis Streams, and
// the producer (outbox) / consumer (consumer-group) contracts that give
// at-least-once publication with idempotent, ordered-per-aggregate
// consumption.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format every event carries:
// {eventId, eventType, occurredAt, tenantId, payload}. The event's own
// fields are nested under "payload"; they are not merged into the
// top-level object.
type Envelope struct {
	EventID    uuid.UUID       `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	TenantID   string          `json:"tenantId"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps a fresh event id and timestamp.
func NewEnvelope(eventType, tenantID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal payload: %w", err)
	}
	return Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		Payload:    raw,
	}, nil
}

// Decode unmarshals the envelope's payload into dst. Callers look up the
// right dst type via the type registry keyed by EventType (below),
// replacing any inheritance-based DTO hierarchy per spec.md §9.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// Routing keys, per spec.md §6. The "aggregate" prefix before the dot also
// selects which Redis stream (§4.4 expansion) the event is appended to.
const (
	EventUserRegistered        = "user.registered"
	EventUserUpdated           = "user.updated"
	EventPatientCreated        = "patient.created"
	EventPatientUpdated        = "patient.updated"
	EventPatientDeleted        = "patient.deleted"
	EventDoctorCreated         = "doctor.created"
	EventDoctorUpdated         = "doctor.updated"
	EventAppointmentCreated    = "appointment.created"
	EventAppointmentCancelled  = "appointment.cancelled"
	EventMedicalRecordCreated  = "medical.record.created"
	EventPrescriptionCreated   = "prescription.created"
	EventFacilityAdmitted      = "facility.admitted"
	EventFacilityDischarged    = "facility.discharged"
	EventCacheInvalidate       = "cache.invalidate"
)

// Aggregate returns the stream-selecting prefix of a routing key, e.g.
// "appointment" for "appointment.cancelled".
func Aggregate(eventType string) string {
	for i, r := range eventType {
		if r == '.' {
			return eventType[:i]
		}
	}
	return eventType
}

// CacheInvalidatePayload is the broadcast invalidation payload spec.md §4.5
// describes: "{cacheNames, entityIds, invalidateAll}".
type CacheInvalidatePayload struct {
	CacheNames    []string `json:"cacheNames"`
	EntityIDs     []string `json:"entityIds"`
	InvalidateAll bool     `json:"invalidateAll"`
}
