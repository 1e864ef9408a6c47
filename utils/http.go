package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the stable error envelope: a machine-readable code, a
// human-readable message, and retry guidance on rate limits. Internal
// detail never travels in it.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes a 201 Created response with optional data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorCode writes the error envelope with the given status and code.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// WriteRateLimited writes the 429 envelope. retryAfterSeconds also goes out
// as the standard Retry-After header.
func WriteRateLimited(w http.ResponseWriter, code, message string, retryAfterSeconds int) error {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	return WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Code:       code,
		Message:    message,
		RetryAfter: retryAfterSeconds,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "resource not found"
	}
	return WriteErrorCode(w, http.StatusNotFound, "NOT_FOUND", message)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "internal server error"
	}
	return WriteErrorCode(w, http.StatusInternalServerError, "AUTH_SERVICE_ERROR", message)
}
