package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	token, ok := ExtractToken(r, "")
	if !ok || token != "abc123" {
		t.Fatalf("expected abc123, got %q, %v", token, ok)
	}
}

func TestExtractTokenFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=xyz", nil)

	token, ok := ExtractToken(r, "")
	if !ok || token != "xyz" {
		t.Fatalf("expected xyz, got %q, %v", token, ok)
	}
}

func TestExtractTokenFromPayload(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	token, ok := ExtractToken(r, "payload-token")
	if !ok || token != "payload-token" {
		t.Fatalf("expected payload-token, got %q, %v", token, ok)
	}
}

func TestExtractTokenAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := ExtractToken(r, "")
	if ok {
		t.Fatal("expected no token to be found")
	}
}
