package main

import (
	"encoding/json"
	"net/http"
)

// User-facing responses for the classified dispatch outcomes. Only these
// fixed strings ever reach the requester; handler error detail stays in logs
// and the activity record.
const (
	msgNotAuthorized      = "You are not authorized to use this bot."
	msgRateLimited        = "Rate limit exceeded. Please wait a moment."
	msgNotAdmin           = "This command is only available to administrators."
	msgAdminNotConfigured = "Admin access is not configured."
	msgHandlerFailed      = "An error occurred while processing your request."
	msgUnknownCommand     = "Unknown command. Type /help for the list of commands."
)

// APIError represents a structured error response on the webhook surface
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}
