package httpapi

import (
	"context"
	"net/http"

	"familytether/internal/auth"
	"familytether/internal/httputil"
)

type ctxKey int

const userIDCtxKey ctxKey = iota

// RequireAuth verifies the bearer token named in spec §6 (header or query
// string — there is no payload-field source on the REST surface) and stores
// the resulting user ID in the request context.
func RequireAuth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Error("no verifier configured"))
				return
			}
			token, ok := auth.ExtractToken(r, "")
			if !ok {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Error("missing bearer token"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Error("invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), userIDCtxKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFromContext(r *http.Request) string {
	v, _ := r.Context().Value(userIDCtxKey).(string)
	return v
}
