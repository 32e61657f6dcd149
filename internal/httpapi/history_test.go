package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"familytether/internal/cache"
	"familytether/internal/kv"
	"familytether/internal/location"
	"familytether/internal/privacy"
	"familytether/internal/repository"
)

func newTestRouter(t *testing.T) (*chi.Mux, repository.Repository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	c := cache.New(kv.NewMemory(), repo, true)
	p := privacy.New(c, repo)
	loc := location.New(kv.NewMemory(), c, p)

	r := chi.NewRouter()
	r.Route("/v1/families/{familyID}", func(r chi.Router) {
		r.Get("/history", HistoryHandler{Cache: c, Location: loc}.ServeHTTP)
		r.Get("/current", CurrentHandler{Cache: c, Location: loc}.ServeHTTP)
	})
	return r, repo
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDCtxKey, userID))
}

func TestHistoryHandlerForbidsNonMember(t *testing.T) {
	router, _ := newTestRouter(t)
	req := withUser(httptest.NewRequest(http.MethodGet, "/v1/families/fam1/history", nil), "intruder")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHistoryHandlerReturnsSuccessForMember(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.(interface {
		Seed(string, repository.Member)
	}).Seed("fam1", repository.Member{UserID: "u1", Role: repository.RoleMember})

	req := withUser(httptest.NewRequest(http.MethodGet, "/v1/families/fam1/history", nil), "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
}

func TestCurrentHandlerForbidsNonMember(t *testing.T) {
	router, _ := newTestRouter(t)
	req := withUser(httptest.NewRequest(http.MethodGet, "/v1/families/fam1/current", nil), "intruder")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
