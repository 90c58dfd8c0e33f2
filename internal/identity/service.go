package identity

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
	"github.com/meridianclinic/platform/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountLocked      = errors.New("identity: account is locked")
	ErrTenantRequired     = errors.New("identity: tenant id is required")
)

// Service orchestrates registration and login against the Identity Store,
// RBAC Resolver, and Token Service, publishing domain events through the
// outbox in the same transaction as each state change.
type Service struct {
	pool     *pgxpool.Pool
	users    *Store
	roles    *RoleStore
	resolver *Resolver
	hasher   PasswordHasher
	tokens   TokenProvider
	mfa      *MFAService
	outbox   *eventbus.Outbox

	lockoutThreshold        int
	lockoutDuration         time.Duration
	allowPublicRegistration bool
}

type ServiceConfig struct {
	LockoutThreshold        int
	LockoutDuration         time.Duration
	AllowPublicRegistration bool
}

func NewService(pool *pgxpool.Pool, users *Store, roles *RoleStore, resolver *Resolver, hasher PasswordHasher, tokens TokenProvider, mfa *MFAService, outbox *eventbus.Outbox, cfg ServiceConfig) *Service {
	return &Service{
		pool:             pool,
		users:            users,
		roles:            roles,
		resolver:         resolver,
		hasher:           hasher,
		tokens:           tokens,
		mfa:              mfa,
		outbox:                  outbox,
		lockoutThreshold:        cfg.LockoutThreshold,
		lockoutDuration:         cfg.LockoutDuration,
		allowPublicRegistration: cfg.AllowPublicRegistration,
	}
}

type RegisterInput struct {
	TenantID uuid.UUID
	Email    string
	Password string
	FullName string
}

// Register hashes the password, writes the user row and its
// user.registered outbox event in one transaction, and returns the
// created user.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	if !s.allowPublicRegistration {
		return User{}, apierror.New(apierror.Forbidden, "registration_disabled", "self-service registration is disabled for this deployment")
	}
	if input.TenantID == uuid.Nil {
		return User{}, apierror.New(apierror.Validation, "tenant_required", "tenant id is required")
	}
	if err := ValidatePasswordPolicy(input.Password); err != nil {
		return User{}, apierror.New(apierror.Validation, "weak_password", err.Error()).WithField("password", err.Error(), nil)
	}

	if _, err := s.users.FindByEmail(ctx, input.TenantID, input.Email); err == nil {
		return User{}, apierror.New(apierror.Conflict, "email_taken", "an account with this email already exists")
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, apierror.Wrap(apierror.Unexpected, "lookup_failed", "failed to check existing account", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return User{}, apierror.Wrap(apierror.Unexpected, "hash_failed", "failed to hash password", err)
	}

	user := User{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		Email:        input.Email,
		PasswordHash: hash,
		DisplayName:  input.FullName,
	}

	err = storage.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		created, err := s.users.CreateUser(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		user = created

		env, err := eventbus.NewEnvelope(eventbus.EventUserRegistered, input.TenantID.String(), map[string]any{
			"userId": user.ID.String(),
			"email":  user.Email,
			"name":   user.DisplayName,
		})
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, env)
	})
	if err != nil {
		return User{}, apierror.Wrap(apierror.Unexpected, "register_failed", "failed to register account", err)
	}

	return user, nil
}

type LoginInput struct {
	TenantID  uuid.UUID
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	PreAuthToken string
	User         User
	MFARequired  bool
}

// Login authenticates a user, enforcing the lockout state machine before
// and after the password check, and short-circuits into the MFA
// pre-auth flow when the account has TOTP enabled.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.TenantID == uuid.Nil {
		return nil, apierror.New(apierror.Validation, "tenant_required", "tenant id is required")
	}

	user, err := s.users.FindByEmail(ctx, input.TenantID, input.Email)
	if err != nil {
		// Generic error regardless of cause, to avoid user enumeration.
		return nil, apierror.New(apierror.Unauthorized, "invalid_credentials", "invalid email or password")
	}

	if user.Status == StatusLocked {
		if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
			return nil, apierror.New(apierror.Forbidden, "account_locked", "account is temporarily locked")
		}
		if err := s.users.UnlockIfExpired(ctx, user.ID); err != nil {
			return nil, apierror.Wrap(apierror.Unexpected, "unlock_failed", "failed to process lockout expiry", err)
		}
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		if _, lockErr := s.users.IncrementFailedAttempts(ctx, user.ID, s.lockoutThreshold, s.lockoutDuration); lockErr != nil {
			return nil, apierror.Wrap(apierror.Unexpected, "lockout_update_failed", "failed to record failed login", lockErr)
		}
		return nil, apierror.New(apierror.Unauthorized, "invalid_credentials", "invalid email or password")
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "reset_failed", "failed to reset lockout counter", err)
	}

	if user.MFAEnabled {
		preAuth, err := s.tokens.GeneratePreAuthToken(user.ID)
		if err != nil {
			return nil, apierror.Wrap(apierror.Unexpected, "token_failed", "failed to issue pre-auth token", err)
		}
		return &LoginResult{MFARequired: true, PreAuthToken: preAuth, User: user}, nil
	}

	return s.issueSession(ctx, user)
}

// VerifyMFA completes a login that returned MFARequired=true.
func (s *Service) VerifyMFA(ctx context.Context, preAuthToken, code string) (*LoginResult, error) {
	claims, err := s.tokens.ValidateToken(preAuthToken)
	if err != nil || claims.Scope != "pre_auth" {
		return nil, apierror.New(apierror.Unauthorized, "invalid_pre_auth_token", "invalid or expired pre-auth token")
	}

	user, err := s.findByIDAnyTenant(ctx, claims.UserID)
	if err != nil {
		return nil, apierror.New(apierror.Unauthorized, "invalid_credentials", "invalid credentials")
	}

	if !user.MFAEnabled || user.MFASecretSealed == "" {
		return nil, apierror.New(apierror.Forbidden, "mfa_not_enabled", "mfa is not enabled for this account")
	}

	ok, err := s.mfa.Validate(user.MFASecretSealed, code)
	if err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "mfa_validate_failed", "failed to validate mfa code", err)
	}
	if !ok {
		if _, lockErr := s.users.IncrementFailedAttempts(ctx, user.ID, s.lockoutThreshold, s.lockoutDuration); lockErr != nil {
			return nil, apierror.Wrap(apierror.Unexpected, "lockout_update_failed", "failed to record failed mfa attempt", lockErr)
		}
		return nil, ErrInvalidMFACode
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "reset_failed", "failed to reset lockout counter", err)
	}

	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user User) (*LoginResult, error) {
	perms, err := s.resolver.Effective(ctx, user.TenantID, user.ID)
	if err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "rbac_resolve_failed", "failed to resolve permissions", err)
	}

	access, err := s.tokens.GenerateAccessToken(user, perms.Roles, perms.Permissions)
	if err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "token_failed", "failed to issue access token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, apierror.Wrap(apierror.Unexpected, "token_failed", "failed to issue refresh token", err)
	}

	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Refresh exchanges a valid refresh token for a new access token without
// re-checking the password, the standard silent-renewal path.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, apierror.New(apierror.Unauthorized, "invalid_refresh_token", "invalid or expired refresh token")
	}
	if claims.Scope != "refresh" {
		return nil, apierror.New(apierror.Unauthorized, "invalid_token_scope", "token is not a refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.TenantID, claims.UserID)
	if err != nil {
		return nil, apierror.New(apierror.Unauthorized, "invalid_refresh_token", "invalid or expired refresh token")
	}
	if user.Status != StatusActive {
		return nil, apierror.New(apierror.Forbidden, "account_inactive", "account is no longer active")
	}

	return s.issueSession(ctx, user)
}

// DeactivateUser soft-deletes targetID within tenantID, implementing
// spec.md §4.1's softDelete operation. Only an admin may deactivate an
// account.
func (s *Service) DeactivateUser(ctx context.Context, tenantID, actorID, targetID uuid.UUID) error {
	if err := s.resolver.RequireRole(ctx, tenantID, actorID, RoleAdmin); err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, tenantID, targetID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apierror.New(apierror.NotFound, "user_not_found", "user not found")
		}
		return apierror.Wrap(apierror.Unexpected, "deactivate_failed", "failed to deactivate user", err)
	}
	return nil
}

// ReactivateUser reverses DeactivateUser, implementing spec.md §4.1's
// reactivate operation. Only an admin may reactivate an account.
func (s *Service) ReactivateUser(ctx context.Context, tenantID, actorID, targetID uuid.UUID) error {
	if err := s.resolver.RequireRole(ctx, tenantID, actorID, RoleAdmin); err != nil {
		return err
	}
	if err := s.users.Reactivate(ctx, tenantID, targetID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apierror.New(apierror.NotFound, "user_not_found", "user not found")
		}
		return apierror.Wrap(apierror.Unexpected, "reactivate_failed", "failed to reactivate user", err)
	}
	return nil
}

func (s *Service) findByIDAnyTenant(ctx context.Context, userID uuid.UUID) (User, error) {
	// Pre-auth tokens only carry the user id, not the tenant, so this
	// lookup deliberately bypasses the tenant-scoped query.
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, password_hash, display_name, status,
			failed_login_attempts, locked_until, mfa_enabled, mfa_secret_sealed, created_at, updated_at
		FROM identity.users
		WHERE id = $1 AND status != 'deleted'
	`, userID)
	return scanUser(row)
}
