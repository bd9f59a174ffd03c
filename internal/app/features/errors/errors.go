// internal/app/features/errors/errors.go

// Package errors renders the API's error responses. Every feature funnels
// failures through here so clients see one shape:
//
//	{ "success": false, "error": "...", "fields": {"name": "..."} }
//
// The error taxonomy is fixed: validation (400 with fields), authorization
// (401/403 with the policy's reason), integrity (409 with the balancer's
// reason), and infrastructure (500, generic message, details only in logs).
package errors

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a 200 success envelope, with optional data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

// WriteError writes an error envelope with the given status and message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorResponse{Error: msg})
}

// WriteValidation writes a 400 with per-field messages.
func WriteValidation(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, errorResponse{
		Error:  "validation failed",
		Fields: fields,
	})
}

// WriteUnauthorized writes a 401 for requests with no valid session.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "sign in required")
}

// WriteForbidden writes a 403 carrying the policy's denial reason.
func WriteForbidden(w http.ResponseWriter, reason string) {
	if reason == "" {
		reason = "you don't have permission to do that"
	}
	WriteError(w, http.StatusForbidden, reason)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, what string) {
	if what == "" {
		what = "resource"
	}
	WriteError(w, http.StatusNotFound, what+" not found")
}

// WriteConflict writes a 409 for integrity failures (duplicates, invariant
// violations). The reason is safe for clients.
func WriteConflict(w http.ResponseWriter, reason string) {
	WriteError(w, http.StatusConflict, reason)
}
