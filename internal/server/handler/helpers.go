// Package handler contains the HTTP handlers for the trade desk API. Each
// handler decodes the request, resolves the acting user from the request
// context, and delegates to a service; domain errors map onto HTTP statuses
// in one place.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openfloor/tradedesk/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain error types onto HTTP statuses: validation
// and illegal transitions are 400, permission failures 403, missing entities
// 404, a held lock 409, anything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err), domain.IsInvalidTransition(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsPermission(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "position is being modified, retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// actor resolves the authenticated actor placed in the context by the auth
// middleware. A missing actor is an auth-middleware wiring bug and is
// answered with a 401.
func actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := domain.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
	}
	return a, ok
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}
