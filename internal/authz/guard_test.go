package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLookup struct {
	perms map[string][]Permission
	err   error
}

func (l staticLookup) PermissionsByRole(_ context.Context, name string) ([]Permission, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	perms, ok := l.perms[name]
	return perms, ok, nil
}

type recordingRecorder struct {
	allowed []bool
	reasons []string
}

func (r *recordingRecorder) RecordDecision(allowed bool, reason string) {
	r.allowed = append(r.allowed, allowed)
	r.reasons = append(r.reasons, reason)
}

func activeSubject(role string, perms ...Permission) *Subject {
	return &Subject{ID: 1, Email: "user@example.com", Role: role, Permissions: perms, Status: StatusActive}
}

func newTestGuard(lookup RoleLookup) *Guard {
	return NewGuard(NewResolver(lookup, nil), nil, nil)
}

func TestEvaluateRequiresAuthentication(t *testing.T) {
	guard := newTestGuard(nil)

	d := guard.Evaluate(context.Background(), nil, Requirement{Permissions: []Permission{PermUsersRead}})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAuthRequired, d.Reason)

	d = guard.Evaluate(context.Background(), nil, Requirement{AllowAnonymous: true})
	assert.True(t, d.Allowed)
}

func TestEvaluateRejectsInactiveAccounts(t *testing.T) {
	guard := newTestGuard(nil)

	for _, status := range []string{StatusInactive, StatusSuspended} {
		sub := activeSubject(RoleAdmin)
		sub.Status = status
		d := guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermUsersRead}})
		assert.False(t, d.Allowed, status)
		assert.Equal(t, ReasonAccountNotActive, d.Reason)
	}

	sub := activeSubject(RoleAdmin)
	sub.Status = StatusSuspended
	d := guard.Evaluate(context.Background(), sub, Requirement{AllowInactive: true})
	assert.True(t, d.Allowed)
}

func TestEvaluateAllSemantics(t *testing.T) {
	guard := newTestGuard(nil)
	sub := activeSubject("", PermPackagesRead, PermPackagesCreate)

	d := guard.Evaluate(context.Background(), sub, Requirement{
		Permissions: []Permission{PermPackagesRead, PermPackagesCreate},
		RequireAll:  true,
	})
	assert.True(t, d.Allowed)

	d = guard.Evaluate(context.Background(), sub, Requirement{
		Permissions: []Permission{PermPackagesRead, PermPackagesCancel},
		RequireAll:  true,
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)
}

func TestEvaluateAnySemantics(t *testing.T) {
	guard := newTestGuard(nil)
	sub := activeSubject("", PermPackagesRead)

	d := guard.Evaluate(context.Background(), sub, Requirement{
		Permissions: []Permission{PermPackagesCancel, PermPackagesRead},
	})
	assert.True(t, d.Allowed)

	d = guard.Evaluate(context.Background(), sub, Requirement{
		Permissions: []Permission{PermPackagesCancel, PermUsersManage},
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)
}

func TestEvaluateEmptyRequirementNeedsActiveUserOnly(t *testing.T) {
	guard := newTestGuard(nil)

	d := guard.Evaluate(context.Background(), activeSubject("unknown-role"), Requirement{})
	assert.True(t, d.Allowed)

	d = guard.Evaluate(context.Background(), nil, Requirement{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAuthRequired, d.Reason)
}

func TestEvaluateUnknownRoleResolvesToEmptySet(t *testing.T) {
	guard := newTestGuard(staticLookup{})
	sub := activeSubject("ghost")

	d := guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermPackagesTrack}})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingPermission, d.Reason)
}

func TestEvaluateRoleMembership(t *testing.T) {
	guard := newTestGuard(nil)

	d := guard.Evaluate(context.Background(), activeSubject(RoleDriver), Requirement{Roles: []string{RoleDriver, RoleAdmin}})
	assert.True(t, d.Allowed)

	d = guard.Evaluate(context.Background(), activeSubject(RoleOwner), Requirement{Roles: []string{RoleDriver, RoleAdmin}})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMissingRole, d.Reason)
}

func TestEvaluateChecksStatusBeforePermissions(t *testing.T) {
	guard := newTestGuard(nil)
	sub := activeSubject(RoleAdmin, All()...)
	sub.Status = StatusInactive

	d := guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermUsersRead}})
	assert.Equal(t, ReasonAccountNotActive, d.Reason)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	guard := newTestGuard(staticLookup{perms: map[string][]Permission{"courier": {PermDeliveriesClaim}}})
	sub := activeSubject("courier")
	req := Requirement{Permissions: []Permission{PermDeliveriesClaim}}

	first := guard.Evaluate(context.Background(), sub, req)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, guard.Evaluate(context.Background(), sub, req))
	}
}

func TestEvaluateRecordsDecisions(t *testing.T) {
	rec := &recordingRecorder{}
	guard := NewGuard(NewResolver(nil, nil), rec, nil)

	guard.Evaluate(context.Background(), nil, Requirement{})
	guard.Evaluate(context.Background(), activeSubject(RoleAdmin), Requirement{})

	require.Len(t, rec.allowed, 2)
	assert.False(t, rec.allowed[0])
	assert.Equal(t, ReasonAuthRequired, rec.reasons[0])
	assert.True(t, rec.allowed[1])
	assert.Equal(t, "allowed", rec.reasons[1])
}

func TestEvaluateRecoversFromPanic(t *testing.T) {
	rec := &recordingRecorder{}
	// A nil resolver makes the permission check panic.
	guard := NewGuard(nil, rec, nil)
	sub := activeSubject(RoleOwner)

	d := guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermPackagesRead}})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonEvaluationFailure, d.Reason)
	require.Len(t, rec.allowed, 1)
	assert.False(t, rec.allowed[0])
}

func TestEvaluateExplicitOverrideShadowsRole(t *testing.T) {
	lookup := staticLookup{perms: map[string][]Permission{RoleDriver: {PermDeliveriesClaim, PermDeliveriesUpdate}}}
	guard := newTestGuard(lookup)

	// Explicit set replaces the role set entirely, it does not union.
	sub := activeSubject(RoleDriver, PermPackagesTrack)

	d := guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermDeliveriesClaim}})
	assert.False(t, d.Allowed)

	d = guard.Evaluate(context.Background(), sub, Requirement{Permissions: []Permission{PermPackagesTrack}})
	assert.True(t, d.Allowed)
}
