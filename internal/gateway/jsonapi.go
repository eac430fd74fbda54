// ABOUTME: JSON:API envelope encoding and error responses for the REST surface
// ABOUTME: Maps internal sentinel errors to stable status codes and details

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/store"
)

// MediaType is the only content type the API speaks.
const MediaType = "application/vnd.api+json"

// ErrorObject is a single JSON:API error.
type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ErrorDocument is the JSON:API error envelope.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// DataDocument wraps a single resource or a resource list.
type DataDocument struct {
	Data any `json:"data"`
}

// MetaDocument wraps top-level meta, used by the authenticate response.
type MetaDocument struct {
	Meta map[string]any `json:"meta"`
}

// writeJSON encodes a document with the JSON:API media type.
func writeJSON(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// writeError emits a JSON:API error document with a single error object.
func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, ErrorDocument{
		Errors: []ErrorObject{{
			Status: strconv.Itoa(status),
			Title:  title,
			Detail: detail,
		}},
	})
}

// writeDomainError maps sentinel errors from the store and the authorization
// gate onto the error taxonomy. Anything unrecognized is an internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", "Conversation not found")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "You do not have access to this conversation")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid username or password")
	default:
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}

// acceptsMediaType reports whether the Accept header admits the JSON:API
// media type. An absent header accepts anything.
func acceptsMediaType(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaRange := strings.TrimSpace(part)
		if i := strings.Index(mediaRange, ";"); i >= 0 {
			mediaRange = strings.TrimSpace(mediaRange[:i])
		}
		switch mediaRange {
		case MediaType, "application/*", "*/*":
			return true
		}
	}
	return false
}

// contentTypeMatches reports whether the Content-Type header names the
// JSON:API media type, ignoring parameters.
func contentTypeMatches(contentType string) bool {
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(mediaType) == MediaType
}
