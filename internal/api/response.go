package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Error is the error member of a response envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Router-level errors. Resource handlers write their own.
var (
	ErrNotFound         = &Error{Code: "NOT_FOUND", Message: "Resource not found", Status: http.StatusNotFound}
	ErrMethodNotAllowed = &Error{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed", Status: http.StatusMethodNotAllowed}
)

// Response is the {data, error} envelope every endpoint returns.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// JSON writes data with status.
func JSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Response{Data: data})
}

// JSONError writes err with its status.
func JSONError(w http.ResponseWriter, err *Error) {
	writeEnvelope(w, err.Status, Response{Error: err})
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}
