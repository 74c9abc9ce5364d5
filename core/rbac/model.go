package rbac

import (
	"sort"
	"strings"
)

// Permission is an opaque token naming one allowed action on a resource,
// in "<action>:<resource>[:<scope>]" form.
type Permission string

type Role struct {
	Name        string
	Permissions []Permission
}

const (
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleSeller     = "SELLER"
	RoleAccountant = "ACCOUNTANT"
	RoleClient     = "CLIENT"
)

// Deliberately absent tokens encode hard business rules: there is no
// "delete:bribes" and no "delete:sales" for any role, admin included.
var permissions = []Permission{
	"view:dashboard", "view:admin",
	"view:products", "create:products", "edit:products", "delete:products",
	"view:clients", "edit:clients",
	"view:sales", "create:sales", "edit:sales",
	"view:zones", "edit:zones",
	"view:authorities", "manage:authorities",
	"view:bribes", "create:bribes", "edit:bribes",
	"view:decisions", "manage:decisions",
	"view:partners", "manage:partners",
	"view:distributors", "manage:distributors",
	"view:topics", "manage:topics",
	"view:monthly-reviews", "manage:monthly-reviews",
	"view:agreements", "manage:agreements",
	"view:council", "manage:council",
	"view:own:purchases", "view:own:profile", "edit:own:profile",
}

var knownPermissionSet = buildPermissionSet()

func buildPermissionSet() map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(permissions))
	for _, p := range permissions {
		out[p] = struct{}{}
	}
	return out
}

func AllPermissions() []Permission {
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	return out
}

func IsKnownPermission(p Permission) bool {
	_, ok := knownPermissionSet[p]
	return ok
}

func NormalizePermissionNames(in []string) ([]string, []string) {
	validSet := map[string]struct{}{}
	invalidSet := map[string]struct{}{}
	for _, raw := range in {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			continue
		}
		if IsKnownPermission(Permission(p)) {
			validSet[p] = struct{}{}
			continue
		}
		invalidSet[p] = struct{}{}
	}
	valid := make([]string, 0, len(validSet))
	for p := range validSet {
		valid = append(valid, p)
	}
	sort.Strings(valid)
	invalid := make([]string, 0, len(invalidSet))
	for p := range invalidSet {
		invalid = append(invalid, p)
	}
	sort.Strings(invalid)
	return valid, invalid
}

// Each role list is written out in full; a multi-role user's effective set is
// the union computed by Policy, never an inheritance chain.
var roles = []Role{
	{Name: RoleAdmin, Permissions: permissions},
	{Name: RoleManager, Permissions: []Permission{
		"view:dashboard", "view:admin",
		"view:products", "create:products", "edit:products", "delete:products",
		"view:clients", "edit:clients",
		"view:sales", "create:sales", "edit:sales",
		"view:zones", "edit:zones",
		"view:decisions", "manage:decisions",
		"view:partners", "manage:partners",
		"view:distributors", "manage:distributors",
		"view:topics", "manage:topics",
		"view:monthly-reviews", "manage:monthly-reviews",
		"view:own:profile", "edit:own:profile",
	}},
	{Name: RoleSeller, Permissions: []Permission{
		"view:dashboard",
		"view:products", "create:products",
		"view:clients",
		"view:sales", "create:sales",
		"view:zones",
		"view:own:profile", "edit:own:profile",
	}},
	{Name: RoleAccountant, Permissions: []Permission{
		"view:dashboard",
		"view:sales",
		"view:bribes", "create:bribes", "edit:bribes",
		"view:monthly-reviews",
		"view:own:profile", "edit:own:profile",
	}},
	{Name: RoleClient, Permissions: []Permission{
		"view:products",
		"view:own:purchases", "view:own:profile", "edit:own:profile",
	}},
}

func DefaultRoles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}
