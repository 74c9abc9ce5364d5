package rbac

import "sync"

// UserPermissions is the resolved effective permission set for one user
// snapshot. It is immutable once built.
type UserPermissions struct {
	roles     []string
	effective map[Permission]struct{}
}

func (u *UserPermissions) Has(p Permission) bool {
	if u == nil {
		return false
	}
	_, ok := u.effective[p]
	return ok
}

func (u *UserPermissions) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !u.Has(p) {
			return false
		}
	}
	return true
}

func (u *UserPermissions) HasAny(perms []Permission) bool {
	for _, p := range perms {
		if u.Has(p) {
			return true
		}
	}
	return false
}

func (u *UserPermissions) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return HasRole(u.roles, role)
}

func (u *UserPermissions) HasAnyRole(roles []string) bool {
	if u == nil {
		return false
	}
	return HasAnyRole(u.roles, roles)
}

// Missing returns the subset of perms absent from the effective set, for
// guard diagnostics.
func (u *UserPermissions) Missing(perms []Permission) []Permission {
	var out []Permission
	for _, p := range perms {
		if !u.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Evaluator memoizes the effective permission union per session snapshot
// version, so repeated guard checks against an unchanged user cost a map
// lookup. Resolving is a pure function of (policy table, roles).
type Evaluator struct {
	policy *Policy

	mu      sync.Mutex
	version uint64
	cached  *UserPermissions
}

func NewEvaluator(policy *Policy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Resolve returns the effective permissions for the given snapshot version
// and role list, recomputing only when the version changes.
func (e *Evaluator) Resolve(version uint64, roles []string) *UserPermissions {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached != nil && e.version == version {
		return e.cached
	}
	set := map[Permission]struct{}{}
	for _, p := range e.policy.PermissionsForRoles(roles) {
		set[p] = struct{}{}
	}
	rs := make([]string, len(roles))
	copy(rs, roles)
	e.cached = &UserPermissions{roles: rs, effective: set}
	e.version = version
	return e.cached
}
