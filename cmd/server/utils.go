package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/lychee-technology/eavsearch"
)

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// CountResponse is the body of /api/v1/search/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// CompileResponse is the body of /api/v1/compile.
type CompileResponse struct {
	Page  *eavsearch.QueryBuilderOutput `json:"page"`
	Count *eavsearch.QueryBuilderOutput `json:"count"`
}

// applyPagination fills an omitted page size with the default and caps it.
func applyPagination(req *eavsearch.SearchRequest, cfg eavsearch.SearchConfig) {
	if req.PageNumber <= 0 {
		req.PageNumber = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 && req.PageSize > cfg.MaxPageSize {
		req.PageSize = cfg.MaxPageSize
	}
}

// statusForError maps SearchError types onto HTTP status codes.
func statusForError(err error) int {
	var se *eavsearch.SearchError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Type {
	case eavsearch.ErrorTypeValidation, eavsearch.ErrorTypeReference,
		eavsearch.ErrorTypeInvalidArgument, eavsearch.ErrorTypeQuery:
		return http.StatusBadRequest
	case eavsearch.ErrorTypeNotFound:
		return http.StatusNotFound
	case eavsearch.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSearchError writes err with the code and field of a SearchError.
func writeSearchError(w http.ResponseWriter, err error) error {
	resp := APIResponse{Success: false, Error: err.Error()}
	var se *eavsearch.SearchError
	if errors.As(err, &se) {
		resp.Error = se.Message
		resp.Code = se.Code
		resp.Field = se.Field
	}
	return writeJSON(w, statusForError(err), resp)
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, data)
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
