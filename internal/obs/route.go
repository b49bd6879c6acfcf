package obs

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// routeLabel resolves the route template for r. chi fills the pattern while
// routing, so this is only meaningful once the request has been served.
func routeLabel(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}

// sessionLabel returns the quote session addressed by r, if any.
func sessionLabel(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "sessionID"))
}
