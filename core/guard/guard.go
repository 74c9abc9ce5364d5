package guard

import (
	"strings"
	"sync"

	"garrison-gate/core/rbac"
	"garrison-gate/core/session"
	"garrison-gate/core/utils"
)

const (
	LoginPath = "/login"
	RootPath  = "/"
)

// Decision is the admission verdict for one navigation. Denials carry
// a redirect target instead of an error: unauthenticated goes to the
// login view, unauthorized back to the root.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

func Allow() Decision { return Decision{Allowed: true} }

func RedirectTo(path string) Decision { return Decision{RedirectTo: path} }

// RouteMeta is the static admission configuration attached to a route.
// A nil RequireAll means all listed permissions are required.
type RouteMeta struct {
	Path        string
	Name        string
	Public      bool
	Roles       []string
	Permissions []rbac.Permission
	RequireAll  *bool
}

func (m RouteMeta) requireAll() bool {
	return m.RequireAll == nil || *m.RequireAll
}

// Authorizer decides whether a session may enter a route. Decisions
// use only the snapshot handed in; an authorizer never performs I/O.
type Authorizer interface {
	CanEnter(meta RouteMeta, snap session.Snapshot) Decision
}

// Gate composes the three admission checks in order: authentication,
// role membership, permission satisfaction. The first failing check
// decides the redirect.
type Gate struct {
	eval   *rbac.Evaluator
	logger *utils.Logger
	bypass bool

	mu      sync.Mutex
	denials map[string]uint64
}

// NewGate builds the admission gate. bypass admits anonymous sessions
// through the auth check and must only ever be true in development
// configurations; the config layer rejects it elsewhere.
func NewGate(eval *rbac.Evaluator, logger *utils.Logger, bypass bool) *Gate {
	return &Gate{
		eval:    eval,
		logger:  logger,
		bypass:  bypass,
		denials: make(map[string]uint64),
	}
}

func (g *Gate) CanEnter(meta RouteMeta, snap session.Snapshot) Decision {
	if meta.Public {
		return Allow()
	}

	if !snap.LoggedIn && !g.bypass {
		g.deny("auth")
		return RedirectTo(LoginPath)
	}

	userRoles := snap.Roles()

	if len(meta.Roles) > 0 {
		// The administrative role passes the role check for every
		// route, whether or not the route lists it.
		if !rbac.HasRole(userRoles, rbac.RoleAdmin) && !rbac.HasAnyRole(userRoles, meta.Roles) {
			g.deny("role")
			g.logger.Debugf("GUARD role denial route=%s have=%v want=%v", meta.Name, userRoles, meta.Roles)
			return RedirectTo(RootPath)
		}
	}

	if len(meta.Permissions) > 0 {
		perms := g.eval.Resolve(snap.Version, userRoles)
		ok := perms.HasAny(meta.Permissions)
		if meta.requireAll() {
			ok = perms.HasAll(meta.Permissions)
		}
		if !ok {
			g.deny("permission")
			g.logger.Debugf("GUARD permission denial route=%s missing=%s",
				meta.Name, joinPermissions(perms.Missing(meta.Permissions)))
			return RedirectTo(RootPath)
		}
	}

	return Allow()
}

func (g *Gate) deny(reason string) {
	g.mu.Lock()
	g.denials[reason]++
	g.mu.Unlock()
}

// DenialCounts reports denials by reason since construction, for the
// metrics collectors.
func (g *Gate) DenialCounts() map[string]uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]uint64, len(g.denials))
	for k, v := range g.denials {
		out[k] = v
	}
	return out
}

func joinPermissions(perms []rbac.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
