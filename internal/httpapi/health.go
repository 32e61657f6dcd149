// Package httpapi is the REST surface layered alongside the websocket
// gateway: a health probe plus read endpoints over the location history and
// current-position views, generalizing the teacher's api.SnapshotHandler/
// api.HealthHandler pattern (chi route params, httputil envelopes) onto the
// family-location domain.
package httpapi

import (
	"net/http"

	"familytether/internal/httputil"
	"familytether/internal/version"
)

// HealthHandler is a liveness/readiness probe for GET /healthz.
type HealthHandler struct{}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Success(map[string]string{
		"status":  "ok",
		"version": version.Version,
	}))
}
