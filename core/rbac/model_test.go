package rbac

import "testing"

// delete:bribes and delete:sales must never exist, for any role including
// admin. Regression guard for a hard business rule.
func TestForbiddenTokensAbsent(t *testing.T) {
	forbidden := []Permission{"delete:bribes", "delete:sales"}
	for _, f := range forbidden {
		if IsKnownPermission(f) {
			t.Fatalf("token %q must not be part of the permission model", f)
		}
		for _, role := range DefaultRoles() {
			for _, p := range role.Permissions {
				if p == f {
					t.Fatalf("role %s must not carry %q", role.Name, f)
				}
			}
		}
	}
}

func TestEveryRolePermissionIsKnown(t *testing.T) {
	for _, role := range DefaultRoles() {
		for _, p := range role.Permissions {
			if !IsKnownPermission(p) {
				t.Fatalf("role %s references unknown permission %q", role.Name, p)
			}
		}
	}
}

func TestNormalizePermissionNames(t *testing.T) {
	valid, invalid := NormalizePermissionNames([]string{" view:products ", "VIEW:SALES", "launder:money", "", "view:products"})
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid, got %v", valid)
	}
	if len(invalid) != 1 || invalid[0] != "launder:money" {
		t.Fatalf("expected launder:money invalid, got %v", invalid)
	}
}
