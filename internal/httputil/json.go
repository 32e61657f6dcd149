// Package httputil holds small REST response helpers shared by the HTTP
// surface (health check, history endpoints, websocket upgrade route).
package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard REST response shape: a success flag plus either
// data or an error.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes payload as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// Success wraps data in a success envelope.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Error wraps a message in a failure envelope.
func Error(msg string) Envelope {
	return Envelope{Success: false, Error: msg}
}

// NotFound is the canned 404 body for unknown routes.
func NotFound() Envelope {
	return Error("route does not exist")
}
