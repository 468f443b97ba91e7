package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverPrefersExplicitOverride(t *testing.T) {
	lookup := staticLookup{perms: map[string][]Permission{RoleOwner: {PermPackagesRead}}}
	r := NewResolver(lookup, nil)

	sub := Subject{Role: RoleOwner, Permissions: []Permission{PermAdminAccess}}
	assert.Equal(t, []Permission{PermAdminAccess}, r.EffectivePermissions(context.Background(), sub))
}

func TestResolverFallsBackToRegistry(t *testing.T) {
	lookup := staticLookup{perms: map[string][]Permission{"courier": {PermDeliveriesClaim}}}
	r := NewResolver(lookup, nil)

	sub := Subject{Role: "courier"}
	assert.Equal(t, []Permission{PermDeliveriesClaim}, r.EffectivePermissions(context.Background(), sub))
}

func TestResolverFallsBackToDefaults(t *testing.T) {
	// Registry has never heard of the built-in role.
	r := NewResolver(staticLookup{}, nil)

	perms := r.EffectivePermissions(context.Background(), Subject{Role: RoleDriver})
	expected, ok := DefaultPermissions(RoleDriver)
	assert.True(t, ok)
	assert.Equal(t, expected, perms)
}

func TestResolverUnknownRoleYieldsEmptySet(t *testing.T) {
	r := NewResolver(staticLookup{}, nil)

	assert.Empty(t, r.EffectivePermissions(context.Background(), Subject{Role: "ghost"}))
	assert.Empty(t, r.EffectivePermissions(context.Background(), Subject{}))
}

func TestResolverRegistryErrorDegradesToDefaults(t *testing.T) {
	lookup := staticLookup{err: errors.New("connection refused")}
	r := NewResolver(lookup, nil)

	perms := r.EffectivePermissions(context.Background(), Subject{Role: RoleOwner})
	expected, _ := DefaultPermissions(RoleOwner)
	assert.Equal(t, expected, perms)
}

func TestResolverRegistryShadowsDefaults(t *testing.T) {
	// A registry entry for a built-in role replaces its baseline.
	lookup := staticLookup{perms: map[string][]Permission{RoleDriver: {PermPackagesTrack}}}
	r := NewResolver(lookup, nil)

	assert.Equal(t, []Permission{PermPackagesTrack},
		r.EffectivePermissions(context.Background(), Subject{Role: RoleDriver}))
}
