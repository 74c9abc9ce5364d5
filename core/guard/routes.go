package guard

import "garrison-gate/core/rbac"

var anyOf = false

// DefaultRoutes is the static admission table for the application's
// views. Public entries skip every check; everything else goes through
// the gate in declaration order.
func DefaultRoutes() []RouteMeta {
	return []RouteMeta{
		{Path: "/login", Name: "login", Public: true},
		{Path: "/", Name: "home", Public: true},

		{Path: "/profile", Name: "profile",
			Permissions: []rbac.Permission{"view:own:profile"}},
		{Path: "/purchases", Name: "purchases",
			Permissions: []rbac.Permission{"view:own:purchases"}},

		{Path: "/dashboard", Name: "dashboard",
			Permissions: []rbac.Permission{"view:dashboard"}},
		{Path: "/admin", Name: "admin", Roles: []string{rbac.RoleAdmin},
			Permissions: []rbac.Permission{"view:admin"}},

		{Path: "/products", Name: "products",
			Permissions: []rbac.Permission{"view:products"}},
		{Path: "/products/new", Name: "products-new",
			Permissions: []rbac.Permission{"view:products", "create:products"}},
		{Path: "/clients", Name: "clients",
			Permissions: []rbac.Permission{"view:clients"}},
		{Path: "/sales", Name: "sales",
			Permissions: []rbac.Permission{"view:sales"}},
		{Path: "/sales/new", Name: "sales-new",
			Permissions: []rbac.Permission{"view:sales", "create:sales"}},
		{Path: "/zones", Name: "zones",
			Permissions: []rbac.Permission{"view:zones"}},
		{Path: "/authorities", Name: "authorities",
			Permissions: []rbac.Permission{"view:authorities"}},
		{Path: "/bribes", Name: "bribes",
			Permissions: []rbac.Permission{"view:bribes"}},
		{Path: "/decisions", Name: "decisions",
			Permissions: []rbac.Permission{"view:decisions"}},
		{Path: "/partners", Name: "partners",
			Permissions: []rbac.Permission{"view:partners"}},
		{Path: "/distributors", Name: "distributors",
			Permissions: []rbac.Permission{"view:distributors"}},
		{Path: "/topics", Name: "topics",
			Permissions: []rbac.Permission{"view:topics"}},
		{Path: "/monthly-reviews", Name: "monthly-reviews",
			Permissions: []rbac.Permission{"view:monthly-reviews"}},
		{Path: "/agreements", Name: "agreements",
			Permissions: []rbac.Permission{"view:agreements"}},
		{Path: "/council", Name: "council", Roles: []string{rbac.RoleAdmin, rbac.RoleManager},
			Permissions: []rbac.Permission{"view:council"}},

		// Back-office entry reachable by any staff role.
		{Path: "/reports", Name: "reports", RequireAll: &anyOf,
			Permissions: []rbac.Permission{"view:sales", "view:monthly-reviews", "view:dashboard"}},
	}
}

// FindRoute returns the admission metadata for a path, or a
// non-public, authenticated-only default for unknown paths.
func FindRoute(routes []RouteMeta, path string) RouteMeta {
	for _, r := range routes {
		if r.Path == path {
			return r
		}
	}
	return RouteMeta{Path: path, Name: "unknown"}
}
