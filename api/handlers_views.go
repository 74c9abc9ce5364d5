package api

import (
	"net/http"

	"garrison-gate/core/guard"
)

// viewHandler answers for a view whose admission the gate already
// approved. The gateway serves view metadata, not markup; rendering
// belongs to the client behind it.
func (s *Server) viewHandler(meta guard.RouteMeta) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.sessions.Store().Snapshot()
		body := map[string]any{
			"view":      meta.Name,
			"path":      meta.Path,
			"logged_in": snap.LoggedIn,
		}
		if snap.User != nil {
			body["user"] = snap.User
		}
		writeJSON(w, http.StatusOK, body)
	}
}
