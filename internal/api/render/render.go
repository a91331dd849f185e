// Package render writes the JSON response envelopes used by every D-Nothi
// endpoint. Errors are always {"message": ..., "errors": [...]}.
package render

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/json; charset=utf-8"

// ListDocument is the envelope for paginated collections.
type ListDocument[T any] struct {
	Data       []T         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes the page returned in a ListDocument.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes TotalPages for the given page window.
func NewPagination(page, limit int, total int64) *Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return &Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ErrorDocument is the body of every error response.
type ErrorDocument struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	Detail  string       `json:"error,omitempty"`
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes v to w with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// List writes a collection document. A nil slice renders as [].
func List[T any](w http.ResponseWriter, status int, data []T, p *Pagination) {
	if data == nil {
		data = []T{}
	}
	JSON(w, status, ListDocument[T]{Data: data, Pagination: p})
}

// Message writes {"message": msg}.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}

// Error writes an error document with no field errors.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorDocument{Message: msg})
}

// ErrorDetail writes an error document carrying an internal error string.
func ErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	JSON(w, status, ErrorDocument{Message: msg, Detail: detail})
}

// ValidationErrors writes a 400 with one entry per invalid field.
func ValidationErrors(w http.ResponseWriter, errs []FieldError) {
	JSON(w, http.StatusBadRequest, ErrorDocument{Message: "Validation failed", Errors: errs})
}
