package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/courier-forge/courier/pkg/models"
)

// errorResponse is the structured body every failure returns.
type errorResponse struct {
	Message string `json:"message"`
}

// decodeRequest decodes a JSON request body into reqStruct, rejecting
// unknown fields.
func decodeRequest(r *http.Request, reqStruct interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(&reqStruct)
}

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Encoding errors past this point can only be logged by the caller's
	// middleware; the status line is already written.
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes a structured error message.
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Message: message})
}

// statusForError maps the typed error taxonomy onto HTTP status codes:
// validation 400, not found 404, conflicts 400 (duplicate code, duplicate
// recipient, invalid transition), transient storage failures 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateCode),
		errors.Is(err, models.ErrDuplicateRecipient),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTransient):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// parsePathSegments splits the URL path after prefix into its non-empty
// segments.
func parsePathSegments(url, prefix string) []string {
	rest := strings.TrimPrefix(url, prefix)
	var segments []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// parseID parses a positive numeric path or form value.
func parseID(field, value string) (uint, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("valid %s is required", strcase.ToSnake(field))
	}
	return uint(id), nil
}
