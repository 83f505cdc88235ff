package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

const (
	defaultLimit = 40
	maxLimit     = 200
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &domain.APIError{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrTransient):
		respondError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondValidationErrors writes a JSON response for multiple validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"errors": errs,
	})
}

// parsePage reads limit and offset query parameters.
func parsePage(r *http.Request) (domain.Page, error) {
	page := domain.Page{Limit: defaultLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, domain.ErrInvalidInput
		}
		page.Limit = min(n, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, domain.ErrInvalidInput
		}
		page.Offset = n
	}
	return page, nil
}
