// Package httpx holds the response helpers shared by the API handlers.
// Errors go to the client in the RFC 7807 problem-details shape.
package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
)

// ProblemDetail is the wire shape for error responses, after RFC 7807.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data as the response body with the given status. An encode
// failure after the status line is on the wire cannot reach the client, so
// it is dropped.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, contentTypeJSON, data)
}

// Problem reports an error to the client as a problem-details body.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	write(w, status, contentTypeProblem, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func write(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON reads the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
