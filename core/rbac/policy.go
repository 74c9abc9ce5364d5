package rbac

import (
	"sort"
	"strings"
	"sync"
)

// Policy answers permission queries for role lists. Role names are
// case-insensitive.
type Policy struct {
	mu        sync.RWMutex
	rolePerms map[string]map[Permission]struct{}
}

func NewPolicy(roles []Role) *Policy {
	p := &Policy{rolePerms: map[string]map[Permission]struct{}{}}
	p.Replace(roles)
	return p
}

func (p *Policy) Allowed(userRoles []string, perm Permission) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range userRoles {
		if perms, ok := p.rolePerms[roleKey(r)]; ok {
			if _, ok := perms[perm]; ok {
				return true
			}
		}
	}
	return false
}

// AllowedAll is the AND-reduce over Allowed. An empty requirement list is
// vacuously satisfied.
func (p *Policy) AllowedAll(userRoles []string, perms []Permission) bool {
	for _, perm := range perms {
		if !p.Allowed(userRoles, perm) {
			return false
		}
	}
	return true
}

// AllowedAny is the OR-reduce over Allowed. An empty requirement list denies:
// an unspecified requirement must not vacuously allow.
func (p *Policy) AllowedAny(userRoles []string, perms []Permission) bool {
	for _, perm := range perms {
		if p.Allowed(userRoles, perm) {
			return true
		}
	}
	return false
}

func (p *Policy) Roles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.rolePerms))
	for k := range p.rolePerms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PermissionsForRoles returns the union of permissions over the given roles.
func (p *Policy) PermissionsForRoles(roles []string) []Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := map[Permission]struct{}{}
	for _, r := range roles {
		if perms, ok := p.rolePerms[roleKey(r)]; ok {
			for perm := range perms {
				set[perm] = struct{}{}
			}
		}
	}
	out := make([]Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Policy) Replace(roles []Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := make(map[string]map[Permission]struct{})
	for _, r := range roles {
		m := make(map[Permission]struct{})
		for _, perm := range r.Permissions {
			m[perm] = struct{}{}
		}
		rp[roleKey(r.Name)] = m
	}
	p.rolePerms = rp
}

func roleKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func HasRole(userRoles []string, role string) bool {
	for _, r := range userRoles {
		if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

func HasAnyRole(userRoles []string, roles []string) bool {
	for _, r := range roles {
		if HasRole(userRoles, r) {
			return true
		}
	}
	return false
}
