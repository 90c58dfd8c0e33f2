// Package identity implements the Identity Store (C1), RBAC Resolver
// (C2), and Token Service (C3) described in spec.md: tenant-scoped user
// accounts, password and MFA-backed authentication, role/permission
// resolution, and JWT issuance.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the lockout state machine spec.md describes:
// unlocked -> locked(until) -> unlocked.
type AccountStatus string

const (
	StatusActive  AccountStatus = "active"
	StatusLocked  AccountStatus = "locked"
	StatusDeleted AccountStatus = "deleted"
)

// User is a tenant-scoped account. Email uniqueness is enforced per
// tenant, not globally, since the same person may hold accounts at two
// clinics.
type User struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Email               string
	PasswordHash        string
	DisplayName         string
	Status              AccountStatus
	FailedLoginAttempts int
	LockedUntil         *time.Time
	MFAEnabled          bool
	MFASecretSealed     string // AES-GCM sealed TOTP seed, see internal/platform/secretbox
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Role is a named bundle of permissions within a tenant, e.g. "doctor",
// "front-desk", "tenant-admin".
type Role struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

// UserRole is a grant of a role to a user within a tenant. The grant
// only counts toward RBAC resolution while Active is true and now falls
// within [ValidFrom, ValidUntil) — ValidUntil nil means no expiry.
type UserRole struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	UserID     uuid.UUID
	RoleID     uuid.UUID
	Department *string
	AssignedBy uuid.UUID
	ValidFrom  time.Time
	ValidUntil *time.Time
	Active     bool
}

// Permission is a (resource, action) pair, e.g. ("appointment", "cancel").
type Permission struct {
	ID       uuid.UUID
	Resource string
	Action   string
}

// ResourceOverride records an "allow" or "deny" for a single permission on
// a single resource instance for a user. The resolver consults it only
// when the role-derived decision denies, so an "allow" adds access and a
// "deny" never removes access a role already grants.
// Spec.md calls these out as the escape hatch role-based grants alone
// can't express (e.g. "this nurse may view this one patient's chart").
type ResourceOverride struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Resource   string
	ResourceID string
	Action     string
	Effect     string // "allow" | "deny"
}

// EffectivePermissions is the resolved permission set for a user within
// a tenant: the role-derived permissions only. Resource overrides are not
// part of it; Resolver.Authorize consults them separately.
type EffectivePermissions struct {
	Roles       []string
	Permissions []string // "resource:action"
}

func (e EffectivePermissions) Has(resource, action string) bool {
	want := resource + ":" + action
	for _, p := range e.Permissions {
		if p == want || p == resource+":*" {
			return true
		}
	}
	return false
}
