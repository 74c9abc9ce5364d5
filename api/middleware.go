package api

import (
	"net/http"
	"net/url"
	"time"

	"garrison-gate/core/guard"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debugf("HTTP %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// admit runs the route admission gate. Navigation waits for the first
// session hydration attempt to finish, so an early request is never
// misjudged as anonymous while the profile fetch is still in flight.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Store().WaitHydrated(r.Context()); err != nil {
			http.Error(w, "session not ready", http.StatusServiceUnavailable)
			return
		}
		meta := guard.FindRoute(s.routes, r.URL.Path)
		decision := s.gate.CanEnter(meta, s.sessions.Store().Snapshot())
		if !decision.Allowed {
			target := decision.RedirectTo
			if target == guard.LoginPath {
				// Carry the blocked destination along so the login (or a
				// later verification completion) can resume there.
				target += "?return_to=" + url.QueryEscape(r.URL.Path)
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
