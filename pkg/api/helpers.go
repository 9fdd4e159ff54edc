// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"net/http"
)

// Dialog icons understood by the front end.
const (
	IconSuccess = "success"
	IconError   = "error"
	IconWarning = "warning"
)

// Dialog is the modal payload shown by the front end.
type Dialog struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
}

// ErrorResponse is a standardized error body.
type ErrorResponse struct {
	Error       string            `json:"error"`
	Dialog      *Dialog           `json:"dialog,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Success sends a standardized successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error sends a standardized error response with consistent JSON format.
func Error(w http.ResponseWriter, statusCode int, message string) {
	Success(w, statusCode, ErrorResponse{Error: message})
}

// ErrorDialog sends an error body carrying a dialog and optional field errors.
func ErrorDialog(w http.ResponseWriter, statusCode int, dialog Dialog, fields map[string]string) {
	Success(w, statusCode, ErrorResponse{
		Error:       dialog.Text,
		Dialog:      &dialog,
		FieldErrors: fields,
	})
}

// Redirect sends a 303 so that browsers follow with a GET.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}
