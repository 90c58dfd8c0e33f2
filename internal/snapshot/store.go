package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("snapshot: facts not found")

// Store is the system-of-record side of the projection: Postgres tables
// written by the event consumers below. The cache in front of it is
// cache.go.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UpsertPatient(ctx context.Context, f PatientFacts) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointment.patient_snapshots (patient_id, tenant_id, full_name, date_of_birth, disease, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (patient_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			date_of_birth = EXCLUDED.date_of_birth,
			disease = EXCLUDED.disease,
			updated_at = EXCLUDED.updated_at
		WHERE appointment.patient_snapshots.updated_at <= EXCLUDED.updated_at
	`, f.PatientID, f.TenantID, f.FullName, f.DateOfBirth, f.Disease, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("snapshot: upsert patient: %w", err)
	}
	return nil
}

func (s *Store) DeletePatient(ctx context.Context, patientID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM appointment.patient_snapshots WHERE patient_id = $1`, patientID)
	return err
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (PatientFacts, error) {
	var f PatientFacts
	var dob, updated time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT patient_id, tenant_id, full_name, date_of_birth, disease, updated_at
		FROM appointment.patient_snapshots WHERE patient_id = $1
	`, patientID).Scan(&f.PatientID, &f.TenantID, &f.FullName, &dob, &f.Disease, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return PatientFacts{}, ErrNotFound
	}
	if err != nil {
		return PatientFacts{}, fmt.Errorf("snapshot: get patient: %w", err)
	}
	f.DateOfBirth, f.UpdatedAt = dob, updated
	return f, nil
}

func (s *Store) UpsertDoctor(ctx context.Context, f DoctorFacts) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointment.doctor_snapshots (doctor_id, tenant_id, full_name, specialty, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			specialty = EXCLUDED.specialty,
			updated_at = EXCLUDED.updated_at
		WHERE appointment.doctor_snapshots.updated_at <= EXCLUDED.updated_at
	`, f.DoctorID, f.TenantID, f.FullName, f.Specialty, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("snapshot: upsert doctor: %w", err)
	}
	return nil
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (DoctorFacts, error) {
	var f DoctorFacts
	var updated time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT doctor_id, tenant_id, full_name, specialty, updated_at
		FROM appointment.doctor_snapshots WHERE doctor_id = $1
	`, doctorID).Scan(&f.DoctorID, &f.TenantID, &f.FullName, &f.Specialty, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return DoctorFacts{}, ErrNotFound
	}
	if err != nil {
		return DoctorFacts{}, fmt.Errorf("snapshot: get doctor: %w", err)
	}
	f.UpdatedAt = updated
	return f, nil
}
