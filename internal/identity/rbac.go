package identity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"

	"github.com/meridianclinic/platform/internal/platform/apierror"
)

// Role name constants the convenience predicates below check against.
// Tenants are free to define additional roles; these four are the ones
// spec.md names directly.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RolePatient = "patient"
)

// rbacModel is the casbin RBAC-with-domains model: a subject holds a role
// within a domain (tenant), and policies grant a role (object, action)
// pairs within that same domain.
const rbacModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`

// cacheEntry holds a resolved permission set tagged with the generation
// it was computed at, so a bump to Resolver.generation invalidates every
// entry without walking the map.
type cacheEntry struct {
	generation uint64
	perms      EffectivePermissions
}

// Resolver implements the RBAC Resolver (C2): it reloads a tenant's
// policies into a fresh casbin enforcer and asks it to decide, falling
// back to a per-resource override only when the role-derived answer would
// deny. The role and permission sets Effective resolves are cached per
// (tenantID, userID) until a cache.invalidate broadcast bumps the
// generation counter; Authorize does not use that cache.
type Resolver struct {
	roles *RoleStore

	mu         sync.Mutex
	cache      map[string]cacheEntry
	generation atomic.Uint64
}

func NewResolver(roles *RoleStore) *Resolver {
	return &Resolver{roles: roles, cache: make(map[string]cacheEntry)}
}

// Invalidate bumps the generation counter, lazily evicting every cached
// entry on next lookup. Call this from the cache.invalidate event
// consumer described in spec.md §4.5/§4.2.
func (r *Resolver) Invalidate() {
	r.generation.Add(1)
}

func (r *Resolver) cacheKey(tenantID, userID uuid.UUID) string {
	return tenantID.String() + ":" + userID.String()
}

// Effective resolves a user's full role and permission set for a tenant,
// using the cache when it isn't stale.
func (r *Resolver) Effective(ctx context.Context, tenantID, userID uuid.UUID) (EffectivePermissions, error) {
	gen := r.generation.Load()
	key := r.cacheKey(tenantID, userID)

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && entry.generation == gen {
		r.mu.Unlock()
		return entry.perms, nil
	}
	r.mu.Unlock()

	roles, err := r.roles.RolesForUser(ctx, tenantID, userID)
	if err != nil {
		return EffectivePermissions{}, fmt.Errorf("identity: resolve roles: %w", err)
	}

	perms, err := r.roles.PermissionsForRoles(ctx, roles)
	if err != nil {
		return EffectivePermissions{}, fmt.Errorf("identity: resolve permissions: %w", err)
	}

	result := EffectivePermissions{Roles: roles, Permissions: perms}

	r.mu.Lock()
	r.cache[key] = cacheEntry{generation: gen, perms: result}
	r.mu.Unlock()

	return result, nil
}

// RequirePermission signals Forbidden unless the user's effective
// permission set for tenantID contains resource:action.
func (r *Resolver) RequirePermission(ctx context.Context, tenantID, userID uuid.UUID, resource, action string) error {
	perms, err := r.Effective(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !perms.Has(resource, action) {
		return apierror.New(apierror.Forbidden, "permission_denied", fmt.Sprintf("missing permission %s:%s", resource, action))
	}
	return nil
}

// RequireRole signals Forbidden unless the user holds role within tenantID.
func (r *Resolver) RequireRole(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	perms, err := r.Effective(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !hasRole(perms.Roles, role) {
		return apierror.New(apierror.Forbidden, "role_required", fmt.Sprintf("requires the %s role", role))
	}
	return nil
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}

// IsAdmin, IsDoctor, IsNurse, IsPatient are the convenience predicates
// spec.md's RBAC Resolver operation list names.
func (r *Resolver) IsAdmin(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	return r.hasRoleName(ctx, tenantID, userID, RoleAdmin)
}

func (r *Resolver) IsDoctor(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	return r.hasRoleName(ctx, tenantID, userID, RoleDoctor)
}

func (r *Resolver) IsNurse(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	return r.hasRoleName(ctx, tenantID, userID, RoleNurse)
}

func (r *Resolver) IsPatient(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	return r.hasRoleName(ctx, tenantID, userID, RolePatient)
}

func (r *Resolver) hasRoleName(ctx context.Context, tenantID, userID uuid.UUID, role string) (bool, error) {
	perms, err := r.Effective(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return hasRole(perms.Roles, role), nil
}

// AccessibleResources is the result of ListAccessibleResources: either
// every resource of the given type (AllowAll) or the enumerated ids the
// user holds an explicit grant on.
type AccessibleResources struct {
	AllowAll    bool
	ResourceIDs []string
}

// ListAccessibleResources implements spec.md's listAccessibleResources:
// a user with a type-wide permission can see everything of that type, so
// callers don't need the id list at all; otherwise it's exactly the
// resource ids the user has an "allow" override on.
func (r *Resolver) ListAccessibleResources(ctx context.Context, tenantID, userID uuid.UUID, resourceType, action string) (AccessibleResources, error) {
	perms, err := r.Effective(ctx, tenantID, userID)
	if err != nil {
		return AccessibleResources{}, err
	}
	if perms.Has(resourceType, action) {
		return AccessibleResources{AllowAll: true}, nil
	}

	ids, err := r.roles.ResourceIDsWithEffect(ctx, tenantID, userID, resourceType, action, "allow")
	if err != nil {
		return AccessibleResources{}, fmt.Errorf("identity: list accessible resources: %w", err)
	}
	return AccessibleResources{ResourceIDs: ids}, nil
}

// Authorize decides whether userID may perform action on resource within
// tenantID, reloading a fresh enforcer with the tenant's current
// role/permission policies before asking it to decide, per spec.md's "no
// stale cached decisions across a role change" invariant. A deny from
// the enforcer is given one more chance via a resource-level override
// before being treated as final.
func (r *Resolver) Authorize(ctx context.Context, tenantID, userID uuid.UUID, resource, resourceID, action string) (bool, error) {
	roles, err := r.roles.RolesForUser(ctx, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("identity: load roles: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return false, fmt.Errorf("identity: build casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return false, fmt.Errorf("identity: build casbin enforcer: %w", err)
	}

	dom := tenantID.String()
	subject := userID.String()
	for _, role := range roles {
		if _, err := enforcer.AddGroupingPolicy(subject, role, dom); err != nil {
			return false, fmt.Errorf("identity: add grouping policy: %w", err)
		}
	}

	perms, err := r.roles.PermissionsForRoles(ctx, roles)
	if err != nil {
		return false, fmt.Errorf("identity: load permissions: %w", err)
	}
	for _, role := range roles {
		for _, perm := range perms {
			res, act, ok := splitPermission(perm)
			if !ok {
				continue
			}
			if _, err := enforcer.AddPolicy(role, dom, res, act); err != nil {
				return false, fmt.Errorf("identity: add policy: %w", err)
			}
		}
	}

	allowed, err := enforcer.Enforce(subject, dom, resource, action)
	if err != nil {
		return false, fmt.Errorf("identity: enforce: %w", err)
	}
	if allowed {
		return true, nil
	}

	if resourceID == "" {
		return false, nil
	}

	effect, err := r.roles.ResourceOverride(ctx, tenantID, userID, resource, resourceID, action)
	if err != nil {
		return false, fmt.Errorf("identity: resource override: %w", err)
	}
	return effect == "allow", nil
}

func splitPermission(perm string) (resource, action string, ok bool) {
	for i := len(perm) - 1; i >= 0; i-- {
		if perm[i] == ':' {
			return perm[:i], perm[i+1:], true
		}
	}
	return "", "", false
}
