package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("identity: user not found")

// Store is the hand-written equivalent of the teacher's sqlc-generated
// queries package: the generator itself isn't available, but the pgx
// pool it targets, and the DBTX-shaped method set, are carried over
// unchanged.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser runs against the caller's transaction so the insert commits
// or rolls back together with the outbox event Register enqueues
// alongside it.
func (s *Store) CreateUser(ctx context.Context, tx pgx.Tx, u User) (User, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO identity.users (id, tenant_id, email, password_hash, display_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, tenant_id, email, password_hash, display_name, status,
			failed_login_attempts, locked_until, mfa_enabled, mfa_secret_sealed, created_at, updated_at
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.DisplayName, StatusActive)
	return scanUser(row)
}

func (s *Store) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, display_name, status,
			failed_login_attempts, locked_until, mfa_enabled, mfa_secret_sealed, created_at, updated_at
		FROM identity.users
		WHERE tenant_id = $1 AND email = $2 AND status != 'deleted'
	`, tenantID, email)
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, tenantID, userID uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, display_name, status,
			failed_login_attempts, locked_until, mfa_enabled, mfa_secret_sealed, created_at, updated_at
		FROM identity.users
		WHERE tenant_id = $1 AND id = $2 AND status != 'deleted'
	`, tenantID, userID)
	return scanUser(row)
}

// IncrementFailedAttempts bumps the failure counter and, once it crosses
// threshold, locks the account until lockDuration from now. Returns the
// row as it stands after the update so the caller can decide whether to
// surface a lockout to the client.
func (s *Store) IncrementFailedAttempts(ctx context.Context, userID uuid.UUID, threshold int, lockDuration time.Duration) (User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE identity.users
		SET failed_login_attempts = failed_login_attempts + 1,
			status = CASE WHEN failed_login_attempts + 1 >= $2 THEN 'locked' ELSE status END,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN now() + make_interval(secs => $3) ELSE locked_until END,
			updated_at = now()
		WHERE id = $1
		RETURNING id, tenant_id, email, password_hash, display_name, status,
			failed_login_attempts, locked_until, mfa_enabled, mfa_secret_sealed, created_at, updated_at
	`, userID, threshold, lockDuration.Seconds())
	return scanUser(row)
}

// ResetFailedAttempts clears the failure counter and lock on a successful
// login, implementing the locked -> unlocked transition.
func (s *Store) ResetFailedAttempts(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE identity.users
		SET failed_login_attempts = 0, status = 'active', locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("identity: reset failed attempts: %w", err)
	}
	return nil
}

// UnlockIfExpired transitions a locked user back to active once
// locked_until has passed, the other half of the lockout state machine.
func (s *Store) UnlockIfExpired(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE identity.users
		SET status = 'active', failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1 AND status = 'locked' AND locked_until IS NOT NULL AND locked_until <= now()
	`, userID)
	return err
}

func (s *Store) SetMFA(ctx context.Context, userID uuid.UUID, enabled bool, sealedSecret string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE identity.users SET mfa_enabled = $2, mfa_secret_sealed = $3, updated_at = now()
		WHERE id = $1
	`, userID, enabled, sealedSecret)
	return err
}

// SoftDelete implements spec.md §4.1's softDelete operation: the row is
// kept for audit purposes but excluded from FindByEmail/FindByID and can
// no longer authenticate.
func (s *Store) SoftDelete(ctx context.Context, tenantID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identity.users SET status = 'deleted', updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status != 'deleted'
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("identity: soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Reactivate implements spec.md §4.1's reactivate operation, reversing
// SoftDelete. It deliberately does not touch the lockout counters: an
// account that was locked before being deactivated comes back locked
// until its locked_until passes.
func (s *Store) Reactivate(ctx context.Context, tenantID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE identity.users
		SET status = CASE WHEN locked_until > now() THEN 'locked' ELSE 'active' END, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = 'deleted'
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("identity: reactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var lockedUntil *time.Time
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Status,
		&u.FailedLoginAttempts, &lockedUntil, &u.MFAEnabled, &u.MFASecretSealed, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("identity: scan user: %w", err)
	}
	u.LockedUntil = lockedUntil
	return u, nil
}

// RoleStore resolves a user's effective roles and permissions with a
// single joined query, avoiding the N+1 pattern spec.md's RBAC Resolver
// invariant forbids.
type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

// RolesForUser returns the role names currently in effect for a user:
// grants that are active and whose validity window
// (validFrom <= now < validUntil, validUntil nil meaning unbounded)
// covers the current moment. A revoked (active=false) or expired grant
// is excluded without needing to delete the row.
func (s *RoleStore) RolesForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name
		FROM identity.user_roles ur
		JOIN identity.roles r ON r.id = ur.role_id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2
			AND ur.active
			AND ur.valid_from <= now()
			AND (ur.valid_until IS NULL OR ur.valid_until > now())
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("identity: roles for user: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (s *RoleStore) PermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.resource || ':' || p.action
		FROM identity.role_permissions rp
		JOIN identity.roles r ON r.id = rp.role_id
		JOIN identity.permissions p ON p.id = rp.permission_id
		WHERE r.name = ANY($1)
	`, roleNames)
	if err != nil {
		return nil, fmt.Errorf("identity: permissions for roles: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ResourceOverride looks up a per-resource grant/deny for a user, the
// secondary query the RBAC Resolver falls back to only when the
// role-derived answer would deny access.
func (s *RoleStore) ResourceOverride(ctx context.Context, tenantID, userID uuid.UUID, resource, resourceID, action string) (string, error) {
	var effect string
	err := s.pool.QueryRow(ctx, `
		SELECT effect FROM identity.resource_overrides
		WHERE tenant_id = $1 AND user_id = $2 AND resource = $3 AND resource_id = $4 AND action = $5
	`, tenantID, userID, resource, resourceID, action).Scan(&effect)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("identity: resource override: %w", err)
	}
	return effect, nil
}

// ResourceIDsWithEffect lists every resource id a user holds the given
// override effect on for a resource type and action, backing
// listAccessibleResources' non-allow-all branch.
func (s *RoleStore) ResourceIDsWithEffect(ctx context.Context, tenantID, userID uuid.UUID, resource, action, effect string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT resource_id FROM identity.resource_overrides
		WHERE tenant_id = $1 AND user_id = $2 AND resource = $3 AND action = $4 AND effect = $5
	`, tenantID, userID, resource, action, effect)
	if err != nil {
		return nil, fmt.Errorf("identity: resource ids with effect: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
