package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"familytether/internal/cache"
	"familytether/internal/httputil"
	"familytether/internal/location"
	"familytether/internal/logging"
)

// HistoryHandler serves GET /v1/families/{familyID}/history, spec §4.5's
// history() exposed as a REST read path alongside the socket verbs.
type HistoryHandler struct {
	Cache    *cache.Cache
	Location *location.Service
}

func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")
	requester := userIDFromContext(r)

	if _, member, err := h.Cache.RoleOf(r.Context(), requester, familyID); err != nil || !member {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.Error("unauthorized family access"))
		return
	}

	q := r.URL.Query()
	limit := int64(100)
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	userFilter := q.Get("user_id")
	afterID := q.Get("after")

	result, err := h.Location.History(r.Context(), familyID, userFilter, limit, afterID)
	if err != nil {
		logging.Log.WithError(err).WithField("family_id", familyID).Warn("httpapi: history read failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.Error("transient backend failure, retry"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Success(result))
}

// CurrentHandler serves GET /v1/families/{familyID}/current, spec §4.5's
// all_current().
type CurrentHandler struct {
	Cache    *cache.Cache
	Location *location.Service
}

func (h CurrentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")
	requester := userIDFromContext(r)

	if _, member, err := h.Cache.RoleOf(r.Context(), requester, familyID); err != nil || !member {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.Error("unauthorized family access"))
		return
	}

	locations, err := h.Location.AllCurrent(r.Context(), familyID)
	if err != nil {
		logging.Log.WithError(err).WithField("family_id", familyID).Warn("httpapi: all_current read failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.Error("transient backend failure, retry"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Success(locations))
}
