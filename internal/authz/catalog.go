// Package authz implements the permission catalog, effective-permission
// resolution, and the authorization guard used by HTTP middleware.
package authz

import "sort"

// Permission is an atomic capability identifier, conventionally
// "<resource>:<action>". The catalog is a closed set fixed at compile time.
type Permission string

// Catalog of permissions grouped by resource.
const (
	PermUsersRead   Permission = "users:read"
	PermUsersCreate Permission = "users:create"
	PermUsersUpdate Permission = "users:update"
	PermUsersManage Permission = "users:manage"

	PermRolesRead   Permission = "roles:read"
	PermRolesCreate Permission = "roles:create"
	PermRolesUpdate Permission = "roles:update"
	PermRolesDelete Permission = "roles:delete"

	PermPermissionsRead Permission = "permissions:read"

	PermPackagesRead   Permission = "packages:read"
	PermPackagesCreate Permission = "packages:create"
	PermPackagesUpdate Permission = "packages:update"
	PermPackagesCancel Permission = "packages:cancel"
	PermPackagesTrack  Permission = "packages:track"

	PermDeliveriesRead   Permission = "deliveries:read"
	PermDeliveriesCreate Permission = "deliveries:create"
	PermDeliveriesClaim  Permission = "deliveries:claim"
	PermDeliveriesUpdate Permission = "deliveries:update"

	PermAdminAccess Permission = "admin:access"
)

// Built-in role names. Users carry exactly one role.
const (
	RoleOwner  = "owner"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Account status values carried by user records.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

var catalog = map[Permission]string{
	PermUsersRead:   "View user accounts",
	PermUsersCreate: "Create user accounts",
	PermUsersUpdate: "Update user profiles",
	PermUsersManage: "Change user status and role assignments",

	PermRolesRead:   "View roles and their permissions",
	PermRolesCreate: "Create roles",
	PermRolesUpdate: "Update roles",
	PermRolesDelete: "Delete roles",

	PermPermissionsRead: "View the permission catalog",

	PermPackagesRead:   "View packages",
	PermPackagesCreate: "Register packages for delivery",
	PermPackagesUpdate: "Update pending packages",
	PermPackagesCancel: "Cancel packages",
	PermPackagesTrack:  "Track packages by tracking number",

	PermDeliveriesRead:   "View deliveries",
	PermDeliveriesCreate: "Dispatch packages as deliveries",
	PermDeliveriesClaim:  "Claim open deliveries",
	PermDeliveriesUpdate: "Update delivery status",

	PermAdminAccess: "Access administrative endpoints",
}

// IsValid reports whether p exists in the catalog.
func IsValid(p Permission) bool {
	_, ok := catalog[p]
	return ok
}

// Describe returns a human-readable description for a catalog permission.
// Unknown permissions return the empty string.
func Describe(p Permission) string {
	return catalog[p]
}

// All returns every catalog permission sorted by identifier.
func All() []Permission {
	perms := make([]Permission, 0, len(catalog))
	for p := range catalog {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// DefaultPermissions maps built-in role names to their baseline permission
// sets. Used as the last resolution step when the role registry has no entry
// for a role name.
func DefaultPermissions(role string) ([]Permission, bool) {
	switch role {
	case RoleOwner:
		return []Permission{
			PermPackagesRead,
			PermPackagesCreate,
			PermPackagesUpdate,
			PermPackagesCancel,
			PermPackagesTrack,
			PermDeliveriesRead,
			PermDeliveriesCreate,
		}, true
	case RoleDriver:
		return []Permission{
			PermPackagesTrack,
			PermDeliveriesRead,
			PermDeliveriesClaim,
			PermDeliveriesUpdate,
		}, true
	case RoleAdmin:
		return All(), true
	default:
		return nil, false
	}
}
