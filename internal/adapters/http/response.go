package http

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess merges fields into the {success, message} envelope.
func writeSuccess(w http.ResponseWriter, statusCode int, message string, fields map[string]any) {
	body := map[string]any{
		"success": true,
		"message": message,
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, statusCode, body)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Success: false,
		Message: message,
		Code:    code,
	})
}
