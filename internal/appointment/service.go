package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/eventbus"
	"github.com/meridianclinic/platform/internal/snapshot"
	"github.com/meridianclinic/platform/internal/storage"
)

// Coordinator implements the Appointment Coordinator (C6). All reads are
// served off the snapshot cache; no handler here makes a synchronous
// call to the patient or doctor service.
type Coordinator struct {
	pool      *pgxpool.Pool
	store     *Store
	snapshots *snapshot.CachedReader
	outbox    *eventbus.Outbox
}

func NewCoordinator(pool *pgxpool.Pool, store *Store, snapshots *snapshot.CachedReader, outbox *eventbus.Outbox) *Coordinator {
	return &Coordinator{pool: pool, store: store, snapshots: snapshots, outbox: outbox}
}

type CreateInput struct {
	TenantID        uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AppointmentDate time.Time
	Reason          string
}

// Create enforces the specialty-match, no-double-booking, and
// future-date invariants, then writes the appointment row and its
// appointment.created outbox event in one transaction. The
// specialty-match check is always evaluated against the patient's
// on-file disease from the snapshot projection, never a client-supplied
// value, so a caller cannot talk its way past the invariant by lying
// about the patient's condition.
func (c *Coordinator) Create(ctx context.Context, input CreateInput) (Appointment, error) {
	if !input.AppointmentDate.After(time.Now()) {
		return Appointment{}, apierror.New(apierror.Validation, "past_appointment_date", "appointment date must be in the future")
	}

	patient, err := c.snapshots.GetPatient(ctx, input.PatientID.String())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return Appointment{}, apierror.New(apierror.Validation, "unknown_patient", "patient not found")
		}
		return Appointment{}, apierror.Wrap(apierror.Unexpected, "patient_lookup_failed", "failed to look up patient", err)
	}

	doctor, err := c.snapshots.GetDoctor(ctx, input.DoctorID.String())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return Appointment{}, apierror.New(apierror.Validation, "unknown_doctor", "doctor not found")
		}
		return Appointment{}, apierror.Wrap(apierror.Unexpected, "doctor_lookup_failed", "failed to look up doctor", err)
	}

	if !SpecialtyMatches(patient.Disease, doctor.Specialty) {
		return Appointment{}, apierror.New(apierror.Validation, "specialty_mismatch",
			fmt.Sprintf("doctor specialty %s does not treat %s", doctor.Specialty, patient.Disease))
	}

	appt := Appointment{
		ID:              uuid.New(),
		TenantID:        input.TenantID,
		PatientID:       input.PatientID,
		DoctorID:        input.DoctorID,
		AppointmentDate: input.AppointmentDate,
		Reason:          input.Reason,
	}

	var created Appointment
	err = storage.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		var err error
		created, err = c.store.Create(ctx, tx, appt)
		if err != nil {
			return err
		}
		env, err := appointmentEnvelope(eventbus.EventAppointmentCreated, created)
		if err != nil {
			return err
		}
		return c.outbox.Enqueue(ctx, tx, env)
	})
	if err != nil {
		if errors.Is(err, ErrDoubleBooked) {
			return Appointment{}, apierror.New(apierror.Validation, "double_booking", "doctor already has an appointment at this time")
		}
		return Appointment{}, apierror.Wrap(apierror.Unexpected, "create_failed", "failed to create appointment", err)
	}

	return created, nil
}

func (c *Coordinator) Get(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	a, err := c.store.Get(ctx, tenantID, id)
	if err != nil {
		return Appointment{}, mapStoreErr(err)
	}
	return a, nil
}

func (c *Coordinator) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID) ([]Appointment, error) {
	return c.store.ListByPatient(ctx, tenantID, patientID)
}

func (c *Coordinator) ListByDoctor(ctx context.Context, tenantID, doctorID uuid.UUID) ([]Appointment, error) {
	return c.store.ListByDoctor(ctx, tenantID, doctorID)
}

func (c *Coordinator) ListByStatus(ctx context.Context, tenantID uuid.UUID, status Status) ([]Appointment, error) {
	return c.store.ListByStatus(ctx, tenantID, status)
}

func (c *Coordinator) ListUpcoming(ctx context.Context, tenantID uuid.UUID, hoursAhead int) ([]Appointment, error) {
	return c.store.ListUpcoming(ctx, tenantID, hoursAhead)
}

func (c *Coordinator) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int, error) {
	return c.store.CountByStatus(ctx, tenantID)
}

// UpdateStatus drives the appointment through its state machine. A move
// to CANCELLED publishes appointment.cancelled regardless of which
// status it came from, matching spec.md's "either explicit cancel or
// status=CANCELLED on update" rule. The status write and the event
// enqueue happen in the same transaction, so a crash between them can
// never drop the event.
func (c *Coordinator) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, to Status) (Appointment, error) {
	var updated Appointment
	err := storage.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = c.store.UpdateStatus(ctx, tx, tenantID, id, to)
		if err != nil {
			return err
		}
		if to != StatusCancelled {
			return nil
		}
		env, err := appointmentEnvelope(eventbus.EventAppointmentCancelled, updated)
		if err != nil {
			return err
		}
		return c.outbox.Enqueue(ctx, tx, env)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return Appointment{}, apierror.New(apierror.Validation, "invalid_transition", "appointment cannot move to that status from its current status")
		}
		return Appointment{}, mapStoreErr(err)
	}
	return updated, nil
}

// Cancel is UpdateStatus(CANCELLED) under the name spec.md's public
// operation list uses.
func (c *Coordinator) Cancel(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	return c.UpdateStatus(ctx, tenantID, id, StatusCancelled)
}

func (c *Coordinator) Reschedule(ctx context.Context, tenantID, id uuid.UUID, newDate time.Time) (Appointment, error) {
	if !newDate.After(time.Now()) {
		return Appointment{}, apierror.New(apierror.Validation, "past_appointment_date", "appointment date must be in the future")
	}
	updated, err := c.store.Reschedule(ctx, tenantID, id, newDate)
	if err != nil {
		if errors.Is(err, ErrDoubleBooked) {
			return Appointment{}, apierror.New(apierror.Validation, "double_booking", "doctor already has an appointment at this time")
		}
		return Appointment{}, mapStoreErr(err)
	}
	return updated, nil
}

func (c *Coordinator) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := c.store.Delete(ctx, tenantID, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// appointmentEnvelope builds the outbox envelope for an appointment
// lifecycle event; it does no I/O so it can be called from inside the
// transaction that also writes the appointment row.
func appointmentEnvelope(eventType string, a Appointment) (eventbus.Envelope, error) {
	return eventbus.NewEnvelope(eventType, a.TenantID.String(), map[string]any{
		"appointmentId":   a.ID.String(),
		"patientId":       a.PatientID.String(),
		"doctorId":        a.DoctorID.String(),
		"appointmentDate": a.AppointmentDate,
		"status":          string(a.Status),
	})
}

func mapStoreErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apierror.New(apierror.NotFound, "appointment_not_found", "appointment not found")
	}
	return apierror.Wrap(apierror.Unexpected, "appointment_store_error", "an unexpected error occurred", err)
}
