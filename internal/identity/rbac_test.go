package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPermission(t *testing.T) {
	res, act, ok := splitPermission("appointment:cancel")
	assert.True(t, ok)
	assert.Equal(t, "appointment", res)
	assert.Equal(t, "cancel", act)

	_, _, ok = splitPermission("malformed")
	assert.False(t, ok)
}

func TestEffectivePermissionsHas(t *testing.T) {
	perms := EffectivePermissions{
		Roles:       []string{"doctor"},
		Permissions: []string{"appointment:read", "patient:*"},
	}

	assert.True(t, perms.Has("appointment", "read"))
	assert.True(t, perms.Has("patient", "update"), "wildcard action should match any action on the resource")
	assert.False(t, perms.Has("appointment", "cancel"))
}

func TestResolverInvalidateBumpsGeneration(t *testing.T) {
	r := NewResolver(nil)
	before := r.generation.Load()
	r.Invalidate()
	assert.Greater(t, r.generation.Load(), before)
}
