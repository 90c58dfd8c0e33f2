// Package audit implements the Audit Journal (C7): an idempotent,
// append-only record of every domain event, consumed off the event fabric
// rather than written inline by each service, so no call site can forget
// to log an action.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianclinic/platform/internal/platform/eventbus"
)

// Entry is one row in the audit journal, per spec.md §3's AuditEntry.
type Entry struct {
	EventID      uuid.UUID
	EventType    string
	TenantID     string
	UserID       *string
	UserEmail    *string
	Action       string
	ResourceType string
	ResourceID   *string
	Description  *string
	OldValue     json.RawMessage
	NewValue     json.RawMessage
	IP           *string
	Agent        *string
	OccurredAt   time.Time
	RecordedAt   time.Time
}

// eventMeta describes how to project a routing key's payload into the
// journal's action/resourceType/resourceId columns. idField names the
// payload key holding the affected resource's id.
type eventMeta struct {
	action       string
	resourceType string
	idField      string
}

var eventMetaByType = map[string]eventMeta{
	eventbus.EventUserRegistered:       {"REGISTER", "USER", "userId"},
	eventbus.EventUserUpdated:          {"UPDATE", "USER", "userId"},
	eventbus.EventPatientCreated:       {"CREATE", "PATIENT", "patientId"},
	eventbus.EventPatientUpdated:       {"UPDATE", "PATIENT", "patientId"},
	eventbus.EventPatientDeleted:       {"DELETE", "PATIENT", "patientId"},
	eventbus.EventDoctorCreated:        {"CREATE", "DOCTOR", "doctorId"},
	eventbus.EventDoctorUpdated:        {"UPDATE", "DOCTOR", "doctorId"},
	eventbus.EventAppointmentCreated:   {"CREATE", "APPOINTMENT", "appointmentId"},
	eventbus.EventAppointmentCancelled: {"CANCEL", "APPOINTMENT", "appointmentId"},
	eventbus.EventMedicalRecordCreated: {"CREATE", "MEDICAL_RECORD", "recordId"},
	eventbus.EventPrescriptionCreated:  {"CREATE", "PRESCRIPTION", "prescriptionId"},
	eventbus.EventFacilityAdmitted:     {"ADMIT", "FACILITY_STAY", "stayId"},
	eventbus.EventFacilityDischarged:   {"DISCHARGE", "FACILITY_STAY", "stayId"},
}

// entryFromEnvelope projects an envelope into an Entry using
// eventMetaByType, falling back to the raw event type as the action and
// "UNKNOWN" as the resource type for anything the table doesn't name
// (e.g. a future event type added without an audit mapping) so nothing
// is silently dropped.
func entryFromEnvelope(env eventbus.Envelope) Entry {
	meta, ok := eventMetaByType[env.EventType]
	if !ok {
		meta = eventMeta{action: env.EventType, resourceType: "UNKNOWN"}
	}

	var fields map[string]any
	_ = json.Unmarshal(env.Payload, &fields)

	e := Entry{
		EventID:      env.EventID,
		EventType:    env.EventType,
		TenantID:     env.TenantID,
		Action:       meta.action,
		ResourceType: meta.resourceType,
		NewValue:     env.Payload,
		OccurredAt:   env.OccurredAt,
	}
	if meta.idField != "" {
		if v, ok := stringField(fields, meta.idField); ok {
			e.ResourceID = &v
		}
	}
	if v, ok := stringField(fields, "userId"); ok {
		e.UserID = &v
	}
	if v, ok := stringField(fields, "email"); ok {
		e.UserEmail = &v
	}
	return e
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key].(string)
	return v, ok
}

// Store persists entries with an idempotent upsert keyed by event id, so
// a redelivered event (at-least-once from the event fabric) never
// produces a duplicate journal row.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit.audit_entries
			(event_id, event_type, tenant_id, user_id, user_email, action, resource_type,
			 resource_id, description, old_value, new_value, ip, agent, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (event_id) DO NOTHING
	`, e.EventID, e.EventType, e.TenantID, e.UserID, e.UserEmail, e.Action, e.ResourceType,
		e.ResourceID, e.Description, e.OldValue, e.NewValue, e.IP, e.Agent, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("audit: record entry: %w", err)
	}
	return nil
}

// ListForTenant returns the most recent entries for a tenant, newest
// first, bounded by limit.
func (s *Store) ListForTenant(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, tenant_id, user_id, user_email, action, resource_type,
			resource_id, description, old_value, new_value, ip, agent, occurred_at, recorded_at
		FROM audit.audit_entries
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list for tenant: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.TenantID, &e.UserID, &e.UserEmail,
			&e.Action, &e.ResourceType, &e.ResourceID, &e.Description, &e.OldValue, &e.NewValue,
			&e.IP, &e.Agent, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListForResource returns the most recent entries for one resource
// instance, newest first, bounded by limit — the query
// audit_entries_resource_idx exists to serve.
func (s *Store) ListForResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, tenant_id, user_id, user_email, action, resource_type,
			resource_id, description, old_value, new_value, ip, agent, occurred_at, recorded_at
		FROM audit.audit_entries
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list for resource: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.TenantID, &e.UserID, &e.UserEmail,
			&e.Action, &e.ResourceType, &e.ResourceID, &e.Description, &e.OldValue, &e.NewValue,
			&e.IP, &e.Agent, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Consumer journals every envelope handed to it. It is registered against
// every aggregate stream the deployment cares about auditing, since the
// journal's whole point is to see everything, not just one domain.
type Consumer struct {
	store *Store
	log   *slog.Logger
}

func NewConsumer(store *Store, log *slog.Logger) *Consumer {
	return &Consumer{store: store, log: log}
}

// Handle implements eventbus.Handler.
func (c *Consumer) Handle(ctx context.Context, env eventbus.Envelope) error {
	e := entryFromEnvelope(env)
	if err := c.store.Record(ctx, e); err != nil {
		return err
	}
	c.log.Debug("audit_recorded", "event_id", env.EventID, "event_type", env.EventType,
		"tenant_id", env.TenantID, "action", e.Action, "resource_type", e.ResourceType)
	return nil
}
