package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianclinic/platform/internal/platform/eventbus"
)

// patientPayload and doctorPayload mirror the wire shape of the events
// the owning services publish; field names match those services' own
// event payloads.
type patientPayload struct {
	PatientID   string    `json:"patientId"`
	TenantID    string    `json:"tenantId"`
	FullName    string    `json:"fullName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Disease     string    `json:"disease"`
}

type doctorPayload struct {
	DoctorID  string `json:"doctorId"`
	TenantID  string `json:"tenantId"`
	FullName  string `json:"fullName"`
	Specialty string `json:"specialty"`
}

// Consumer projects patient.*/doctor.* domain events into the snapshot
// store and busts the cache so readers see the update immediately instead
// of waiting out the TTL.
type Consumer struct {
	store *Store
	cache *CachedReader
	log   *slog.Logger
}

func NewConsumer(store *Store, cache *CachedReader, log *slog.Logger) *Consumer {
	return &Consumer{store: store, cache: cache, log: log}
}

// Handle implements eventbus.Handler, dispatching on the envelope's event
// type. Unrecognized types are acknowledged as a no-op: the consumer is
// typically subscribed to a whole aggregate stream, not every type on it.
func (c *Consumer) Handle(ctx context.Context, env eventbus.Envelope) error {
	switch env.EventType {
	case eventbus.EventPatientCreated, eventbus.EventPatientUpdated:
		return c.handlePatientUpsert(ctx, env)
	case eventbus.EventPatientDeleted:
		return c.handlePatientDelete(ctx, env)
	case eventbus.EventDoctorCreated, eventbus.EventDoctorUpdated:
		return c.handleDoctorUpsert(ctx, env)
	case eventbus.EventCacheInvalidate:
		return c.handleCacheInvalidate(ctx, env)
	default:
		return nil
	}
}

func (c *Consumer) handlePatientUpsert(ctx context.Context, env eventbus.Envelope) error {
	var p patientPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("snapshot: decode patient payload: %w", err)
	}

	if err := c.store.UpsertPatient(ctx, PatientFacts{
		PatientID:   p.PatientID,
		TenantID:    p.TenantID,
		FullName:    p.FullName,
		DateOfBirth: p.DateOfBirth,
		Disease:     p.Disease,
		UpdatedAt:   env.OccurredAt,
	}); err != nil {
		return err
	}

	return c.cache.InvalidatePatient(ctx, p.PatientID)
}

func (c *Consumer) handlePatientDelete(ctx context.Context, env eventbus.Envelope) error {
	var p patientPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("snapshot: decode patient payload: %w", err)
	}
	if err := c.store.DeletePatient(ctx, p.PatientID); err != nil {
		return err
	}
	return c.cache.InvalidatePatient(ctx, p.PatientID)
}

func (c *Consumer) handleDoctorUpsert(ctx context.Context, env eventbus.Envelope) error {
	var d doctorPayload
	if err := env.Decode(&d); err != nil {
		return fmt.Errorf("snapshot: decode doctor payload: %w", err)
	}

	if err := c.store.UpsertDoctor(ctx, DoctorFacts{
		DoctorID:  d.DoctorID,
		TenantID:  d.TenantID,
		FullName:  d.FullName,
		Specialty: d.Specialty,
		UpdatedAt: env.OccurredAt,
	}); err != nil {
		return err
	}

	return c.cache.InvalidateDoctor(ctx, d.DoctorID)
}

// handleCacheInvalidate implements the broadcast invalidation spec.md
// §4.5 describes: any service can ask every projection cache to drop
// specific entities without knowing which cache backs them. Only the ids
// in EntityIDs are evicted; InvalidateAll applies them to both the patient
// and doctor caches, and a message with no entity ids evicts nothing.
func (c *Consumer) handleCacheInvalidate(ctx context.Context, env eventbus.Envelope) error {
	var payload eventbus.CacheInvalidatePayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("snapshot: decode cache invalidate payload: %w", err)
	}

	wantsPatient := payload.InvalidateAll || containsAny(payload.CacheNames, "patient-snapshots")
	wantsDoctor := payload.InvalidateAll || containsAny(payload.CacheNames, "doctor-snapshots")

	for _, id := range payload.EntityIDs {
		if wantsPatient {
			if err := c.cache.InvalidatePatient(ctx, id); err != nil {
				c.log.Error("snapshot_cache_invalidate_failed", "entity_id", id, "error", err)
			}
		}
		if wantsDoctor {
			if err := c.cache.InvalidateDoctor(ctx, id); err != nil {
				c.log.Error("snapshot_cache_invalidate_failed", "entity_id", id, "error", err)
			}
		}
	}
	return nil
}

func containsAny(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
