package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("appointment: not found")
	ErrDoubleBooked      = errors.New("appointment: doctor already has an appointment at this time")
	ErrInvalidTransition = errors.New("appointment: invalid status transition")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// lockKey serializes writers on (doctorID, appointmentDate), per spec.md's
// "writes must serialize on (doctorId, appointmentDate)" concurrency rule.
// The advisory lock is the primary mechanism; the unique partial index
// (see migrations) is the backstop if two processes race past it.
func lockKey(doctorID uuid.UUID, appointmentDate time.Time) string {
	return doctorID.String() + "|" + appointmentDate.UTC().Format(time.RFC3339)
}

// Create checks the no-double-booking invariant and inserts the
// appointment, holding a Postgres advisory lock on the (doctor, date)
// pair for the duration of the caller's transaction. The caller owns the
// transaction boundary so the insert and the outbox event it publishes
// commit or roll back together.
func (s *Store) Create(ctx context.Context, tx pgx.Tx, a Appointment) (Appointment, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(a.DoctorID, a.AppointmentDate)); err != nil {
		return Appointment{}, fmt.Errorf("appointment: acquire lock: %w", err)
	}

	var conflict int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM appointment.appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status != 'CANCELLED'
	`, a.DoctorID, a.AppointmentDate).Scan(&conflict)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: check conflict: %w", err)
	}
	if conflict > 0 {
		return Appointment{}, ErrDoubleBooked
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointment.appointments
			(id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
	`, a.ID, a.TenantID, a.PatientID, a.DoctorID, a.AppointmentDate, StatusPending, a.Reason, a.Notes)

	return scanAppointment(row)
}

func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
		FROM appointment.appointments WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanAppointment(row)
}

func (s *Store) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID) ([]Appointment, error) {
	return s.listWhere(ctx, `tenant_id = $1 AND patient_id = $2 ORDER BY appointment_date DESC`, tenantID, patientID)
}

func (s *Store) ListByDoctor(ctx context.Context, tenantID, doctorID uuid.UUID) ([]Appointment, error) {
	return s.listWhere(ctx, `tenant_id = $1 AND doctor_id = $2 ORDER BY appointment_date DESC`, tenantID, doctorID)
}

func (s *Store) ListByStatus(ctx context.Context, tenantID uuid.UUID, status Status) ([]Appointment, error) {
	return s.listWhere(ctx, `tenant_id = $1 AND status = $2 ORDER BY appointment_date`, tenantID, status)
}

func (s *Store) ListUpcoming(ctx context.Context, tenantID uuid.UUID, hoursAhead int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
		FROM appointment.appointments
		WHERE tenant_id = $1 AND status IN ('PENDING', 'CONFIRMED')
			AND appointment_date BETWEEN now() AND now() + make_interval(hours => $2)
		ORDER BY appointment_date
	`, tenantID, hoursAhead)
	if err != nil {
		return nil, fmt.Errorf("appointment: list upcoming: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *Store) listWhere(ctx context.Context, whereClause string, args ...any) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
		FROM appointment.appointments WHERE `+whereClause, args...)
	if err != nil {
		return nil, fmt.Errorf("appointment: list: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// UpdateStatus transitions an appointment's status, rejecting any edge
// not present in the state machine. Runs against the caller's
// transaction so a CANCELLED transition's outbox event commits with it.
func (s *Store) UpdateStatus(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID, to Status) (Appointment, error) {
	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
		FROM appointment.appointments WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
	if err != nil {
		return Appointment{}, err
	}
	if !CanTransition(current.Status, to) {
		return Appointment{}, ErrInvalidTransition
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointment.appointments SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
	`, tenantID, id, to)
	return scanAppointment(row)
}

// Reschedule moves an appointment to a new date, re-checking the
// double-booking invariant under the new date's lock. The future-date
// check is made by Coordinator.Reschedule before this is called.
func (s *Store) Reschedule(ctx context.Context, tenantID, id uuid.UUID, newDate time.Time) (Appointment, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Appointment{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(current.DoctorID, newDate)); err != nil {
		return Appointment{}, fmt.Errorf("appointment: acquire lock: %w", err)
	}

	var conflict int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM appointment.appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status != 'CANCELLED' AND id != $3
	`, current.DoctorID, newDate, id).Scan(&conflict)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: check conflict: %w", err)
	}
	if conflict > 0 {
		return Appointment{}, ErrDoubleBooked
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointment.appointments SET appointment_date = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, patient_id, doctor_id, appointment_date, status, reason, notes, created_at, updated_at
	`, tenantID, id, newDate)

	updated, err := scanAppointment(row)
	if err != nil {
		return Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("appointment: commit: %w", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointment.appointments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("appointment: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM appointment.appointments WHERE tenant_id = $1 GROUP BY status
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("appointment: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.DoctorID, &a.AppointmentDate, &a.Status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, fmt.Errorf("appointment: scan: %w", err)
	}
	return a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
