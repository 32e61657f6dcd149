package middleware

import (
	"github.com/go-chi/chi/v5"
	chi_mw "github.com/go-chi/chi/v5/middleware"
)

// Setup registers the global middleware stack on the REST router. The
// websocket upgrade route is mounted through the same router but manages its
// own connection lifecycle past the upgrade.
func Setup(r *chi.Mux, behindProxy bool, requestsPerSecond int) {
	r.Use(CORS)
	// Recoverer ahead of the latency and rate-limit middleware so it catches
	// panics from them and from the handlers and converts them to 500
	// responses instead of crashing the process.
	r.Use(chi_mw.Recoverer)
	r.Use(APILatencyMiddleware())
	r.Use(RateLimitMiddleware(requestsPerSecond, behindProxy))
}
